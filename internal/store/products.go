package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/port"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, price, stock, image_urls, is_active, created_at, updated_at`

type productRow struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Stock       int             `db:"stock"`
	ImageURLs   pq.StringArray  `db:"image_urls"`
	IsActive    bool            `db:"is_active"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r productRow) toModel() models.Product {
	images := []string(r.ImageURLs)
	if images == nil {
		images = []string{}
	}
	return models.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		ImageURLs:   images,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// CreateProduct inserts a catalog product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, image_urls, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	var row productRow
	err := sqlx.GetContext(ctx, s.q, &row, query,
		product.Name, product.Description, product.Price, product.Stock,
		pq.StringArray(product.ImageURLs), product.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	product.ID = row.ID
	product.CreatedAt = row.CreatedAt
	product.UpdatedAt = row.UpdatedAt
	return nil
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, s.q, &row,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	product := row.toModel()
	return &product, nil
}

// GetProducts retrieves the listed products in id order
func (s *Store) GetProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	products, err := s.selectProducts(ctx, ids, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	return products, nil
}

// GetProductsForUpdate locks the listed products in id order
func (s *Store) GetProductsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error) {
	products, err := s.selectProducts(ctx, ids, " FOR UPDATE")
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	return products, nil
}

func (s *Store) selectProducts(ctx context.Context, ids []int64, suffix string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var rows []productRow
	err := sqlx.SelectContext(ctx, s.q, &rows,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1) ORDER BY id"+suffix,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toModel())
	}
	return products, nil
}

// ListProducts returns one page of products matching filter and the total match count
func (s *Store) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	var where whereClause
	if filter.ActiveOnly {
		where.addRaw("is_active")
	}
	if filter.Search != "" {
		where.add("name ILIKE ?", "%"+escapeLike(filter.Search)+"%")
	}
	if filter.MinPrice != nil {
		where.add("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where.add("price <= ?", *filter.MaxPrice)
	}

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total,
		"SELECT COUNT(*) FROM products"+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := "SELECT " + productColumns + " FROM products" + where.String() +
		" ORDER BY created_at DESC, id DESC LIMIT " + where.next()
	args := append(where.args, filter.Limit)
	query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
	args = append(args, filter.Offset)

	var rows []productRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	products := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toModel())
	}
	return products, total, nil
}

// DecrementStock atomically subtracts amount when enough stock is on hand
func (s *Store) DecrementStock(ctx context.Context, productID int64, amount int) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		amount, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// IncrementStock atomically adds amount to the product's stock
func (s *Store) IncrementStock(ctx context.Context, productID int64, amount int) error {
	result, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		amount, productID)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %d: %w", productID, port.ErrNotFound)
	}
	return nil
}
