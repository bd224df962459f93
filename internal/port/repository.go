package port

import (
	"context"
	"errors"

	"storefront/internal/models"
)

var (
	// ErrNotFound is returned by repositories when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with a unique key
	ErrDuplicate = errors.New("duplicate key")
)

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	// GetProducts returns the products that exist among ids without locking them
	GetProducts(ctx context.Context, ids []int64) ([]models.Product, error)
	// GetProductsForUpdate returns the products that exist among ids, locking them until the transaction ends
	GetProductsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	// DecrementStock subtracts amount only if stock >= amount; false means nothing changed
	DecrementStock(ctx context.Context, productID int64, amount int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, amount int) error
}

type CartRepository interface {
	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	GetCartForUpdate(ctx context.Context, userID int64) (*models.Cart, error)
	// CreateCart inserts an empty cart unless one exists and returns the stored cart
	CreateCart(ctx context.Context, userID int64) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	// AppendStatus persists order.Status and order.RejectionReason and appends entry to the history
	AppendStatus(ctx context.Context, order *models.Order, entry models.StatusHistoryEntry) error
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error)
	CountOrdersByStatus(ctx context.Context) ([]models.StatusCount, error)
}

type OutboxRepository interface {
	InsertOutbox(ctx context.Context, event *models.OutboxEvent) error
}

// Repository is the persistence layer consumed by the services
type Repository interface {
	ProductRepository
	CartRepository
	OrderRepository
	OutboxRepository

	// WithTx runs fn against a transactional repository, committing when fn returns nil.
	// Calling WithTx on a transactional repository reuses the open transaction.
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}

// IdempotencyStore remembers which checkout request produced which order
type IdempotencyStore interface {
	// ClaimCheckout reserves key; when the key already maps to an order its ID is returned with claimed=false
	ClaimCheckout(ctx context.Context, key string) (orderID int64, claimed bool, err error)
	CompleteCheckout(ctx context.Context, key string, orderID int64) error
	ReleaseCheckout(ctx context.Context, key string) error
}
