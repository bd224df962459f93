package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CartService manages each user's cart. Stock is checked on every mutation but never reserved.
type CartService struct {
	repo   port.Repository
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo port.Repository) *CartService {
	return &CartService{
		repo:   repo,
		logger: util.Component("cart"),
	}
}

// GetCart returns the user's cart, creating an empty one on first access
func (s *CartService) GetCart(ctx context.Context, userID int64) (_ *models.Cart, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart", attribute.Int64("user_id", userID))
	defer func() { util.EndSpan(span, err) }()

	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, port.ErrNotFound) {
		cart, err = s.repo.CreateCart(ctx, userID)
		if err == nil {
			s.logger.Debug("Cart created", zap.Int64("user_id", userID))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return s.withProducts(ctx, cart)
}

// AddItem adds quantity of a product to the cart, merging with an existing line.
// The merged quantity must not exceed the product's stock; the line's price is
// refreshed to the current product price.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (_ *models.Cart, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem",
		attribute.Int64("user_id", userID), attribute.Int64("product_id", productID))
	defer func() { util.EndSpan(span, err) }()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var cart *models.Cart
	err = s.repo.WithTx(ctx, func(tx port.Repository) error {
		product, err := loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return ErrProductUnavailable
		}

		cart, err = lockOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		newQuantity := cart.QuantityOf(productID) + quantity
		if newQuantity > product.Stock {
			util.StockShortagesTotal.WithLabelValues("cart").Inc()
			return fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, product.Name, product.Stock)
		}

		cart.Upsert(productID, newQuantity, product.Price)
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	return s.withProducts(ctx, cart)
}

// UpdateItemQuantity sets the quantity of a product already in the cart
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID int64, quantity int) (_ *models.Cart, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItemQuantity",
		attribute.Int64("user_id", userID), attribute.Int64("product_id", productID))
	defer func() { util.EndSpan(span, err) }()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var cart *models.Cart
	err = s.repo.WithTx(ctx, func(tx port.Repository) error {
		var err error
		cart, err = lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if cart.Find(productID) < 0 {
			return ErrItemNotInCart
		}

		product, err := loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if quantity > product.Stock {
			util.StockShortagesTotal.WithLabelValues("cart").Inc()
			return fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, product.Name, product.Stock)
		}

		cart.Upsert(productID, quantity, product.Price)
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	return s.withProducts(ctx, cart)
}

// RemoveItem drops a product from the cart. Removing a product that is not in the cart is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem",
		attribute.Int64("user_id", userID), attribute.Int64("product_id", productID))
	defer span.End()

	cart, err := s.mutate(ctx, userID, func(cart *models.Cart) { cart.Remove(productID) })
	if err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return cart, nil
}

// ClearCart empties the cart and zeroes its totals
func (s *CartService) ClearCart(ctx context.Context, userID int64) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart", attribute.Int64("user_id", userID))
	defer span.End()

	cart, err := s.mutate(ctx, userID, (*models.Cart).Clear)
	if err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	return cart, nil
}

func (s *CartService) mutate(ctx context.Context, userID int64, fn func(cart *models.Cart)) (*models.Cart, error) {
	var cart *models.Cart
	err := s.repo.WithTx(ctx, func(tx port.Repository) error {
		var err error
		cart, err = lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		fn(cart)
		return tx.SaveCart(ctx, cart)
	})
	if err != nil {
		return nil, err
	}
	return s.withProducts(ctx, cart)
}

// withProducts fills in each line's current product in one read
func (s *CartService) withProducts(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart.IsEmpty() {
		return cart, nil
	}

	products, err := s.repo.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	cart.AttachProducts(byID)
	return cart, nil
}

func loadProduct(ctx context.Context, repo port.ProductRepository, productID int64) (*models.Product, error) {
	product, err := repo.GetProduct(ctx, productID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func lockCart(ctx context.Context, repo port.CartRepository, userID int64) (*models.Cart, error) {
	cart, err := repo.GetCartForUpdate(ctx, userID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

func lockOrCreateCart(ctx context.Context, repo port.CartRepository, userID int64) (*models.Cart, error) {
	cart, err := lockCart(ctx, repo, userID)
	if !errors.Is(err, ErrCartNotFound) {
		return cart, err
	}
	if _, err := repo.CreateCart(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return lockCart(ctx, repo, userID)
}
