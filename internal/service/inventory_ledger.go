package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryLedger is the only mutator of product stock. Both operations are single
// conditional updates in the repository, never a read followed by a write.
type InventoryLedger struct {
	products port.ProductRepository
	logger   *zap.Logger
}

// NewInventoryLedger creates a ledger over products. Pass a transactional repository to
// make stock changes part of a larger unit of work.
func NewInventoryLedger(products port.ProductRepository) *InventoryLedger {
	return &InventoryLedger{
		products: products,
		logger:   util.Component("inventory"),
	}
}

// DecrementStock removes amount from the product's stock, failing with ErrInsufficientStock
// when less than amount is on hand
func (l *InventoryLedger) DecrementStock(ctx context.Context, productID int64, amount int) (err error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.DecrementStock",
		attribute.Int64("product_id", productID), attribute.Int("amount", amount))
	defer func() { util.EndSpan(span, err) }()

	if amount < 1 {
		return ErrInvalidQuantity
	}

	ok, err := l.products.DecrementStock(ctx, productID, amount)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	if !ok {
		util.StockShortagesTotal.WithLabelValues("ledger").Inc()
		return fmt.Errorf("%w: product %d has fewer than %d units", ErrInsufficientStock, productID, amount)
	}

	util.StockAdjustmentsTotal.WithLabelValues("decrement").Inc()
	return nil
}

// IncrementStock adds amount to the product's stock
func (l *InventoryLedger) IncrementStock(ctx context.Context, productID int64, amount int) (err error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.IncrementStock",
		attribute.Int64("product_id", productID), attribute.Int("amount", amount))
	defer func() { util.EndSpan(span, err) }()

	if amount < 1 {
		return ErrInvalidQuantity
	}

	if err := l.products.IncrementStock(ctx, productID, amount); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
		}
		return fmt.Errorf("failed to increment stock for product %d: %w", productID, err)
	}

	util.StockAdjustmentsTotal.WithLabelValues("increment").Inc()
	return nil
}

// RestoreItems returns each item's quantity to stock. Products deleted since the order was
// placed are skipped. Rows are locked and updated in product id order, the same order
// checkout locks them in.
func (l *InventoryLedger) RestoreItems(ctx context.Context, orderID int64, items []models.OrderItem) error {
	sorted := make([]models.OrderItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	ids := make([]int64, len(sorted))
	for i, item := range sorted {
		ids[i] = item.ProductID
	}
	if _, err := l.products.GetProductsForUpdate(ctx, ids); err != nil {
		return fmt.Errorf("failed to lock products for order %d: %w", orderID, err)
	}

	for _, item := range sorted {
		err := l.IncrementStock(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, ErrProductNotFound) {
			l.logger.Warn("Skipping stock restore for missing product",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity))
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
