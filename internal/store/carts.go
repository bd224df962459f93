package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type cartRow struct {
	UserID     int64           `db:"user_id"`
	TotalItems int             `db:"total_items"`
	TotalPrice decimal.Decimal `db:"total_price"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

type cartItemRow struct {
	ProductID int64           `db:"product_id"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
}

// GetCart retrieves a user's cart with its items
func (s *Store) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return s.getCart(ctx, userID, false)
}

// GetCartForUpdate retrieves a user's cart and locks it for the rest of the transaction
func (s *Store) GetCartForUpdate(ctx context.Context, userID int64) (*models.Cart, error) {
	return s.getCart(ctx, userID, true)
}

func (s *Store) getCart(ctx context.Context, userID int64, forUpdate bool) (*models.Cart, error) {
	query := "SELECT user_id, total_items, total_price, created_at, updated_at FROM carts WHERE user_id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var row cartRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, userID); err != nil {
		return nil, notFound(err)
	}

	var itemRows []cartItemRow
	err := sqlx.SelectContext(ctx, s.q, &itemRows,
		"SELECT product_id, quantity, price FROM cart_items WHERE user_id = $1 ORDER BY position",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}

	items := make([]models.CartItem, 0, len(itemRows))
	for _, r := range itemRows {
		items = append(items, models.CartItem{
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
			Price:     r.Price,
		})
	}

	return &models.Cart{
		UserID:     row.UserID,
		Items:      items,
		TotalItems: row.TotalItems,
		TotalPrice: row.TotalPrice,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// CreateCart inserts an empty cart for userID if none exists
func (s *Store) CreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return s.getCart(ctx, userID, false)
}

// SaveCart replaces the cart's items and totals
func (s *Store) SaveCart(ctx context.Context, cart *models.Cart) error {
	return s.inTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx,
			"DELETE FROM cart_items WHERE user_id = $1", cart.UserID); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}

		for i, item := range cart.Items {
			_, err := tx.q.ExecContext(ctx,
				"INSERT INTO cart_items (user_id, product_id, position, quantity, price) VALUES ($1, $2, $3, $4, $5)",
				cart.UserID, item.ProductID, i, item.Quantity, item.Price)
			if err != nil {
				return fmt.Errorf("failed to insert cart item: %w", err)
			}
		}

		err := sqlx.GetContext(ctx, tx.q, &cart.UpdatedAt,
			"UPDATE carts SET total_items = $1, total_price = $2, updated_at = NOW() WHERE user_id = $3 RETURNING updated_at",
			cart.TotalItems, cart.TotalPrice, cart.UserID)
		if err != nil {
			return fmt.Errorf("failed to update cart totals: %w", notFound(err))
		}
		return nil
	})
}
