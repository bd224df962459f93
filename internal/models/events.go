package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when checkout creates an order
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalItems  int             `json:"total_items"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Currency    string          `json:"currency"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published on every status transition after creation
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID       int64       `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	UserID        int64       `json:"user_id"`
	From          OrderStatus `json:"from"`
	To            OrderStatus `json:"to"`
	Comment       string      `json:"comment,omitempty"`
	ActorID       *int64      `json:"actor_id,omitempty"`
	StockRestored bool        `json:"stock_restored"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OutboxEvent is an event persisted alongside the state change that produced it
type OutboxEvent struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	Topic     string     `json:"topic"`
	Key       string     `json:"key"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}
