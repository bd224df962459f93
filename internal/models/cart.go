package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one line of a cart; Price is the product price when the line was last touched.
// Product and Available reflect the catalog at read time and are not stored with the cart.
type CartItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Product   *CartProduct    `json:"product"`
	Available bool            `json:"available"`
}

// CartProduct is the catalog view of a cart line's product
type CartProduct struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ImageURLs []string        `json:"image_urls"`
	IsActive  bool            `json:"is_active"`
}

// Subtotal returns quantity × price
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the per-user staging area for items to purchase
type Cart struct {
	UserID     int64           `json:"user_id"`
	Items      []CartItem      `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewCart returns an empty cart for userID
func NewCart(userID int64) *Cart {
	return &Cart{
		UserID:     userID,
		Items:      []CartItem{},
		TotalPrice: decimal.Zero,
	}
}

// Find returns the index of productID in the cart or -1
func (c *Cart) Find(productID int64) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// QuantityOf returns the quantity of productID already in the cart
func (c *Cart) QuantityOf(productID int64) int {
	if i := c.Find(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// Upsert sets the line for productID, inserting it when absent
func (c *Cart) Upsert(productID int64, quantity int, price decimal.Decimal) {
	if i := c.Find(productID); i >= 0 {
		c.Items[i].Quantity = quantity
		c.Items[i].Price = price
	} else {
		c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity, Price: price})
	}
	c.Recalculate()
}

// Remove drops the line for productID if present
func (c *Cart) Remove(productID int64) {
	items := c.Items[:0]
	for _, item := range c.Items {
		if item.ProductID != productID {
			items = append(items, item)
		}
	}
	c.Items = items
	c.Recalculate()
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Recalculate()
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// AttachProducts sets each line's product view from products. A line is available when its
// product still exists, is active and has the line's quantity in stock; a deleted product
// leaves Product nil.
func (c *Cart) AttachProducts(products map[int64]Product) {
	for i := range c.Items {
		item := &c.Items[i]
		p, ok := products[item.ProductID]
		if !ok {
			item.Product = nil
			item.Available = false
			continue
		}
		item.Product = &CartProduct{
			ID:        p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			ImageURLs: append([]string{}, p.ImageURLs...),
			IsActive:  p.IsActive,
		}
		item.Available = p.IsActive && p.Stock >= item.Quantity
	}
}

// ProductIDs returns the product ID of every line, in cart order
func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

// Recalculate refreshes the denormalized totals from the lines
func (c *Cart) Recalculate() {
	totalItems := 0
	totalPrice := decimal.Zero
	for _, item := range c.Items {
		totalItems += item.Quantity
		totalPrice = totalPrice.Add(item.Subtotal())
	}
	c.TotalItems = totalItems
	c.TotalPrice = totalPrice
}
