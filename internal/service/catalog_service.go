package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
)

// CatalogService serves anonymous product browsing. Only active products are visible.
type CatalogService struct {
	products port.ProductRepository
	pageSize int
}

// NewCatalogService creates a catalog service with the given default page size
func NewCatalogService(products port.ProductRepository, pageSize int) *CatalogService {
	if pageSize <= 0 {
		pageSize = 12
	}
	return &CatalogService{products: products, pageSize: pageSize}
}

// ProductQuery filters the catalog listing
type ProductQuery struct {
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Page     int
	Limit    int
}

// ListProducts returns one page of active products, newest first
func (s *CatalogService) ListProducts(ctx context.Context, query ProductQuery) (models.Page[models.Product], error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	page, limit := normalizePage(query.Page, query.Limit, s.pageSize)
	products, total, err := s.products.ListProducts(ctx, models.ProductFilter{
		Search:     strings.TrimSpace(query.Search),
		MinPrice:   query.MinPrice,
		MaxPrice:   query.MaxPrice,
		ActiveOnly: true,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		return models.Page[models.Product]{}, fmt.Errorf("failed to list products: %w", err)
	}
	return models.NewPage(products, page, limit, total), nil
}

// GetProduct returns an active product
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	product, err := s.products.GetProduct(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}
