package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product and its inventory ledger value
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURLs   []string        `json:"image_urls"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FirstImage returns the primary image URL or an empty string
func (p *Product) FirstImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// ProductFilter narrows catalog listings
type ProductFilter struct {
	Search     string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Payment methods
const (
	PaymentMethodCOD = "COD"
)

// ShippingAddress is the delivery destination captured at checkout
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// OrderItem is an immutable snapshot of a cart line at checkout time
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

// StatusHistoryEntry records one status transition
type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status"`
	Comment   string      `json:"comment,omitempty"`
	ActorID   *int64      `json:"actor_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Order represents a placed customer order
type Order struct {
	ID              int64                `json:"id"`
	OrderNumber     string               `json:"order_number"`
	UserID          int64                `json:"user_id"`
	Items           []OrderItem          `json:"items"`
	TotalItems      int                  `json:"total_items"`
	TotalPrice      decimal.Decimal      `json:"total_price"`
	Currency        string               `json:"currency"`
	ShippingAddress ShippingAddress      `json:"shipping_address"`
	PaymentMethod   string               `json:"payment_method"`
	Status          OrderStatus          `json:"status"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	StatusHistory   []StatusHistoryEntry `json:"status_history"`
	Notes           string               `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// OrderFilter narrows order listings; a nil UserID lists all users
type OrderFilter struct {
	UserID *int64
	Status OrderStatus
	Search string
	Limit  int
	Offset int
}

// StatusCount is one row of the per-status aggregate
type StatusCount struct {
	Status     OrderStatus
	Count      int
	TotalPrice decimal.Decimal
}

// OrderStats summarises all orders for the admin dashboard
type OrderStats struct {
	Total        int             `json:"total"`
	Pending      int             `json:"pending"`
	Approved     int             `json:"approved"`
	Rejected     int             `json:"rejected"`
	Shipped      int             `json:"shipped"`
	Delivered    int             `json:"delivered"`
	Cancelled    int             `json:"cancelled"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// Page is a paginated result set
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPage builds a page with totalPages = ceil(total/limit)
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
