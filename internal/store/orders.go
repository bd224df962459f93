package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/port"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_id, total_items, total_price, currency,
	shipping_full_name, shipping_phone, shipping_address, shipping_city, shipping_postal_code,
	payment_method, status, rejection_reason, notes, created_at, updated_at`

type orderRow struct {
	ID                 int64           `db:"id"`
	OrderNumber        string          `db:"order_number"`
	UserID             int64           `db:"user_id"`
	TotalItems         int             `db:"total_items"`
	TotalPrice         decimal.Decimal `db:"total_price"`
	Currency           string          `db:"currency"`
	ShippingFullName   string          `db:"shipping_full_name"`
	ShippingPhone      string          `db:"shipping_phone"`
	ShippingAddress    string          `db:"shipping_address"`
	ShippingCity       string          `db:"shipping_city"`
	ShippingPostalCode string          `db:"shipping_postal_code"`
	PaymentMethod      string          `db:"payment_method"`
	Status             string          `db:"status"`
	RejectionReason    string          `db:"rejection_reason"`
	Notes              string          `db:"notes"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (r orderRow) toModel() models.Order {
	return models.Order{
		ID:          r.ID,
		OrderNumber: r.OrderNumber,
		UserID:      r.UserID,
		Items:       []models.OrderItem{},
		TotalItems:  r.TotalItems,
		TotalPrice:  r.TotalPrice,
		Currency:    r.Currency,
		ShippingAddress: models.ShippingAddress{
			FullName:   r.ShippingFullName,
			Phone:      r.ShippingPhone,
			Address:    r.ShippingAddress,
			City:       r.ShippingCity,
			PostalCode: r.ShippingPostalCode,
		},
		PaymentMethod:   r.PaymentMethod,
		Status:          models.OrderStatus(r.Status),
		RejectionReason: r.RejectionReason,
		StatusHistory:   []models.StatusHistoryEntry{},
		Notes:           r.Notes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type orderItemRow struct {
	OrderID   int64           `db:"order_id"`
	ProductID int64           `db:"product_id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Quantity  int             `db:"quantity"`
	Image     string          `db:"image"`
}

type historyRow struct {
	OrderID   int64         `db:"order_id"`
	Status    string        `db:"status"`
	Comment   string        `db:"comment"`
	ActorID   sql.NullInt64 `db:"actor_id"`
	CreatedAt time.Time     `db:"created_at"`
}

func (r historyRow) toModel() models.StatusHistoryEntry {
	entry := models.StatusHistoryEntry{
		Status:    models.OrderStatus(r.Status),
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
	if r.ActorID.Valid {
		actor := r.ActorID.Int64
		entry.ActorID = &actor
	}
	return entry
}

// CreateOrder inserts an order with its item snapshots and initial history
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.inTx(ctx, func(tx *Store) error {
		query := `
			INSERT INTO orders (order_number, user_id, total_items, total_price, currency,
				shipping_full_name, shipping_phone, shipping_address, shipping_city, shipping_postal_code,
				payment_method, status, rejection_reason, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id, created_at, updated_at`

		var created struct {
			ID        int64     `db:"id"`
			CreatedAt time.Time `db:"created_at"`
			UpdatedAt time.Time `db:"updated_at"`
		}
		addr := order.ShippingAddress
		err := sqlx.GetContext(ctx, tx.q, &created, query,
			order.OrderNumber, order.UserID, order.TotalItems, order.TotalPrice, order.Currency,
			addr.FullName, addr.Phone, addr.Address, addr.City, addr.PostalCode,
			order.PaymentMethod, string(order.Status), order.RejectionReason, order.Notes)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("order number %s: %w", order.OrderNumber, port.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}

		order.ID = created.ID
		order.CreatedAt = created.CreatedAt
		order.UpdatedAt = created.UpdatedAt

		for i, item := range order.Items {
			_, err := tx.q.ExecContext(ctx, `
				INSERT INTO order_items (order_id, position, product_id, name, price, quantity, image)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				order.ID, i, item.ProductID, item.Name, item.Price, item.Quantity, item.Image)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		for _, entry := range order.StatusHistory {
			if err := tx.insertHistory(ctx, order.ID, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertHistory(ctx context.Context, orderID int64, entry models.StatusHistoryEntry) error {
	var actor sql.NullInt64
	if entry.ActorID != nil {
		actor = sql.NullInt64{Int64: *entry.ActorID, Valid: true}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, status, comment, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		orderID, string(entry.Status), entry.Comment, actor, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}
	return nil
}

// GetOrder retrieves an order with items and status history
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, id, false)
}

// GetOrderForUpdate retrieves an order and locks it for the rest of the transaction
func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, id, true)
}

func (s *Store) getOrder(ctx context.Context, id int64, forUpdate bool) (*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var row orderRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, id); err != nil {
		return nil, notFound(err)
	}

	orders := []models.Order{row.toModel()}
	if err := s.attachDetails(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachDetails loads items and history for the given orders in two queries
func (s *Store) attachDetails(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	var items []orderItemRow
	err := sqlx.SelectContext(ctx, s.q, &items, `
		SELECT order_id, product_id, name, price, quantity, image
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	for _, it := range items {
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, models.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Image:     it.Image,
		})
	}

	var history []historyRow
	err = sqlx.SelectContext(ctx, s.q, &history, `
		SELECT order_id, status, comment, actor_id, created_at
		FROM order_status_history WHERE order_id = ANY($1) ORDER BY order_id, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to get status history: %w", err)
	}
	for _, h := range history {
		o := &orders[index[h.OrderID]]
		o.StatusHistory = append(o.StatusHistory, h.toModel())
	}

	return nil
}

// AppendStatus updates the order's status fields and appends a history entry
func (s *Store) AppendStatus(ctx context.Context, order *models.Order, entry models.StatusHistoryEntry) error {
	return s.inTx(ctx, func(tx *Store) error {
		err := sqlx.GetContext(ctx, tx.q, &order.UpdatedAt, `
			UPDATE orders SET status = $1, rejection_reason = $2, updated_at = NOW()
			WHERE id = $3 RETURNING updated_at`,
			string(order.Status), order.RejectionReason, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", notFound(err))
		}
		return tx.insertHistory(ctx, order.ID, entry)
	})
}

// ListOrders returns one page of orders, newest first, and the total match count
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	var where whereClause
	if filter.UserID != nil {
		where.add("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.Search != "" {
		where.add("order_number ILIKE ?", "%"+escapeLike(filter.Search)+"%")
	}

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total,
		"SELECT COUNT(*) FROM orders"+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := "SELECT " + orderColumns + " FROM orders" + where.String() +
		" ORDER BY created_at DESC, id DESC LIMIT " + where.next()
	args := append(where.args, filter.Limit)
	query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
	args = append(args, filter.Offset)

	var rows []orderRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toModel())
	}
	if err := s.attachDetails(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// CountOrdersByStatus groups all orders by status with count and summed total price
func (s *Store) CountOrdersByStatus(ctx context.Context) ([]models.StatusCount, error) {
	var rows []struct {
		Status     string          `db:"status"`
		Count      int             `db:"count"`
		TotalPrice decimal.Decimal `db:"total_price"`
	}
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_price), 0) AS total_price
		FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate orders: %w", err)
	}

	counts := make([]models.StatusCount, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, models.StatusCount{
			Status:     models.OrderStatus(r.Status),
			Count:      r.Count,
			TotalPrice: r.TotalPrice,
		})
	}
	return counts, nil
}
