package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

const (
	commentOrderPlaced         = "Order placed"
	commentCancelledByCustomer = "Cancelled by customer"

	maxNotesLength      = 500
	maxPageLimit        = 100
	orderNumberAttempts = 3
)

// OrderConfig holds the order service's tunables
type OrderConfig struct {
	Currency      currency.Unit
	EventsTopic   string
	UserPageSize  int
	AdminPageSize int
}

// OrderService turns carts into orders and drives them through the fulfillment workflow
type OrderService struct {
	repo        port.Repository
	idempotency port.IdempotencyStore
	cfg         OrderConfig
	logger      *zap.Logger
	now         func() time.Time
	orderNumber func(now time.Time) string
}

// NewOrderService creates a new order service. idempotency may be nil, in which case
// Idempotency-Key headers are ignored.
func NewOrderService(repo port.Repository, idempotency port.IdempotencyStore, cfg OrderConfig) *OrderService {
	if cfg.UserPageSize <= 0 {
		cfg.UserPageSize = 10
	}
	if cfg.AdminPageSize <= 0 {
		cfg.AdminPageSize = 20
	}
	return &OrderService{
		repo:        repo,
		idempotency: idempotency,
		cfg:         cfg,
		logger:      util.Component("orders"),
		now:         time.Now,
		orderNumber: newOrderNumber,
	}
}

// CreateOrderRequest represents a checkout request
type CreateOrderRequest struct {
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	Notes           string                 `json:"notes"`
	IdempotencyKey  string                 `json:"-"`
}

// CreateOrder converts the user's cart into a pending order. Validation covers the whole
// cart before anything changes; the order insert, stock decrements and cart reset commit
// together or not at all.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req CreateOrderRequest) (_ *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.Int64("user_id", userID))
	defer func() { util.EndSpan(span, err) }()

	address, notes, err := normalizeCheckout(req.ShippingAddress, req.Notes)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	if req.IdempotencyKey == "" || s.idempotency == nil {
		return s.checkout(ctx, userID, address, notes)
	}

	key := fmt.Sprintf("%d:%s", userID, req.IdempotencyKey)
	existingID, claimed, err := s.idempotency.ClaimCheckout(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency store unavailable, checking out without it",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return s.checkout(ctx, userID, address, notes)
	}

	if !claimed {
		if existingID == 0 {
			return nil, ErrCheckoutInProgress
		}
		s.logger.Info("Duplicate checkout request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existingID))
		util.IdempotentReplaysTotal.Inc()
		return s.GetUserOrder(ctx, existingID, userID)
	}

	order, err := s.checkout(ctx, userID, address, notes)
	if err != nil {
		if relErr := s.idempotency.ReleaseCheckout(ctx, key); relErr != nil {
			s.logger.Error("Failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		return nil, err
	}

	if err := s.idempotency.CompleteCheckout(ctx, key, order.ID); err != nil {
		s.logger.Error("Failed to record idempotency key",
			zap.String("key", key),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
	return order, nil
}

func (s *OrderService) checkout(ctx context.Context, userID int64, address models.ShippingAddress, notes string) (*models.Order, error) {
	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	var (
		order *models.Order
		err   error
	)
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		order, err = s.placeOrder(ctx, userID, address, notes)
		if !errors.Is(err, port.ErrDuplicate) {
			break
		}
		s.logger.Warn("Order number collision, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", userID),
		zap.String("total_price", order.TotalPrice.String()))
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, userID int64, address models.ShippingAddress, notes string) (*models.Order, error) {
	var order *models.Order
	err := s.repo.WithTx(ctx, func(tx port.Repository) error {
		cart, err := tx.GetCartForUpdate(ctx, userID)
		if errors.Is(err, port.ErrNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("failed to get cart: %w", err)
		}
		if cart.IsEmpty() {
			return ErrEmptyCart
		}

		products, err := s.lockCartProducts(ctx, tx, cart)
		if err != nil {
			return err
		}
		if err := validateCartStock(cart, products); err != nil {
			return err
		}

		now := s.now().UTC()
		order = &models.Order{
			OrderNumber:     s.orderNumber(now),
			UserID:          userID,
			Items:           snapshotItems(cart, products),
			TotalItems:      cart.TotalItems,
			TotalPrice:      cart.TotalPrice,
			Currency:        s.cfg.Currency.String(),
			ShippingAddress: address,
			PaymentMethod:   models.PaymentMethodCOD,
			Status:          models.OrderStatusPending,
			Notes:           notes,
			StatusHistory: []models.StatusHistoryEntry{{
				Status:    models.OrderStatusPending,
				Comment:   commentOrderPlaced,
				ActorID:   &userID,
				CreatedAt: now,
			}},
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		ledger := NewInventoryLedger(tx)
		for _, item := range cart.Items {
			if err := ledger.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		cart.Clear()
		if err := tx.SaveCart(ctx, cart); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		event := orderPlacedEvent(order, now)
		return s.recordEvent(ctx, tx, order.ID, event.BaseEvent, event)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) lockCartProducts(ctx context.Context, tx port.ProductRepository, cart *models.Cart) (map[int64]models.Product, error) {
	locked, err := tx.GetProductsForUpdate(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}

	products := make(map[int64]models.Product, len(locked))
	for _, p := range locked {
		products[p.ID] = p
	}
	return products, nil
}

// validateCartStock reports every missing, inactive or short-stocked line at once.
// Unavailable products take precedence over shortages.
func validateCartStock(cart *models.Cart, products map[int64]models.Product) error {
	var (
		unavailable []string
		shortages   []StockShortage
	)
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			unavailable = append(unavailable, "Unknown product")
			continue
		}
		if !product.IsActive {
			unavailable = append(unavailable, product.Name)
		}
		if product.Stock < item.Quantity {
			shortages = append(shortages, StockShortage{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: item.Quantity,
				Available: product.Stock,
			})
		}
	}

	if len(unavailable) > 0 {
		return &UnavailableProductsError{Products: unavailable}
	}
	if len(shortages) > 0 {
		util.StockShortagesTotal.WithLabelValues("checkout").Inc()
		return &StockShortageError{Shortages: shortages}
	}
	return nil
}

// snapshotItems copies each cart line into an order item; the price is the one held by the cart line
func snapshotItems(cart *models.Cart, products map[int64]models.Product) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		product := products[line.ProductID]
		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Name:      product.Name,
			Price:     line.Price,
			Quantity:  line.Quantity,
			Image:     product.FirstImage(),
		})
	}
	return items
}

// newOrderNumber returns ORD-<unix millis>-<9 upper-case base36 characters>
func newOrderNumber(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(new(big.Int).SetBytes(id[:]).Text(36))
	if len(suffix) < 9 {
		suffix = strings.Repeat("0", 9-len(suffix)) + suffix
	}
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix[len(suffix)-9:])
}

func normalizeCheckout(address models.ShippingAddress, notes string) (models.ShippingAddress, string, error) {
	address = models.ShippingAddress{
		FullName:   strings.TrimSpace(address.FullName),
		Phone:      strings.TrimSpace(address.Phone),
		Address:    strings.TrimSpace(address.Address),
		City:       strings.TrimSpace(address.City),
		PostalCode: strings.TrimSpace(address.PostalCode),
	}

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"full_name", address.FullName},
		{"phone", address.Phone},
		{"address", address.Address},
		{"city", address.City},
		{"postal_code", address.PostalCode},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return address, "", fmt.Errorf("%w: missing %s", ErrShippingAddressIncomplete, strings.Join(missing, ", "))
	}

	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return address, "", ErrNotesTooLong
	}
	return address, notes, nil
}

// UpdateOrderStatus moves an order along the fulfillment workflow on behalf of an admin.
// Cancelling through this path leaves stock untouched; only CancelOrder restores it.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus, actorID int64, comment string) (_ *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus",
		attribute.Int64("order_id", orderID), attribute.String("status", string(status)))
	defer func() { util.EndSpan(span, err) }()

	comment = strings.TrimSpace(comment)

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err = s.repo.WithTx(ctx, func(tx port.Repository) error {
		var err error
		order, err = lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		from = order.Status
		if !from.CanTransitionTo(status) {
			return fmt.Errorf("%w: cannot change status from %s to %s", ErrInvalidTransition, from, status)
		}
		if status == models.OrderStatusRejected && comment == "" {
			return ErrRejectionReasonRequired
		}

		order.Status = status
		if status == models.OrderStatusRejected {
			order.RejectionReason = comment
		}

		entry := models.StatusHistoryEntry{
			Status:    status,
			Comment:   comment,
			ActorID:   &actorID,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.AppendStatus(ctx, order, entry); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		order.StatusHistory = append(order.StatusHistory, entry)

		event := statusChangedEvent(order, from, entry, false)
		return s.recordEvent(ctx, tx, order.ID, event.BaseEvent, event)
	})
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(from), string(status), "admin").Inc()
	if status == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.WithLabelValues("admin").Inc()
		s.logger.Warn("Order cancelled by admin, stock not restored",
			zap.Int64("order_id", orderID),
			zap.Int64("actor_id", actorID))
	} else {
		s.logger.Info("Order status updated",
			zap.Int64("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(status)),
			zap.Int64("actor_id", actorID))
	}
	return order, nil
}

// CancelOrder cancels a pending order owned by userID and returns its items to stock
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID int64) (_ *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder",
		attribute.Int64("order_id", orderID), attribute.Int64("user_id", userID))
	defer func() { util.EndSpan(span, err) }()

	var order *models.Order
	err = s.repo.WithTx(ctx, func(tx port.Repository) error {
		var err error
		order, err = lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrOrderNotFound
		}
		if order.Status != models.OrderStatusPending {
			return ErrOnlyPendingCancellable
		}

		order.Status = models.OrderStatusCancelled
		entry := models.StatusHistoryEntry{
			Status:    models.OrderStatusCancelled,
			Comment:   commentCancelledByCustomer,
			ActorID:   &userID,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.AppendStatus(ctx, order, entry); err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		order.StatusHistory = append(order.StatusHistory, entry)

		if err := NewInventoryLedger(tx).RestoreItems(ctx, order.ID, order.Items); err != nil {
			return err
		}

		event := statusChangedEvent(order, models.OrderStatusPending, entry, true)
		return s.recordEvent(ctx, tx, order.ID, event.BaseEvent, event)
	})
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(models.OrderStatusPending), string(models.OrderStatusCancelled), "customer").Inc()
	util.OrdersCancelledTotal.WithLabelValues("customer").Inc()
	s.logger.Info("Order cancelled by customer",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", userID))
	return order, nil
}

// GetOrder retrieves any order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetUserOrder retrieves an order owned by userID; other users' orders are reported as not found
func (s *OrderService) GetUserOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListUserOrders returns one page of the user's orders, newest first
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, limit int) (models.Page[models.Order], error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListUserOrders", attribute.Int64("user_id", userID))
	defer span.End()

	page, limit = normalizePage(page, limit, s.cfg.UserPageSize)
	return s.listOrders(ctx, models.OrderFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, page)
}

// AdminOrderQuery filters the admin order listing
type AdminOrderQuery struct {
	Status models.OrderStatus
	Search string
	Page   int
	Limit  int
}

// ListOrders returns one page of all orders, optionally filtered by status and by a
// case-insensitive match on the order number
func (s *OrderService) ListOrders(ctx context.Context, query AdminOrderQuery) (models.Page[models.Order], error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	page, limit := normalizePage(query.Page, query.Limit, s.cfg.AdminPageSize)
	return s.listOrders(ctx, models.OrderFilter{
		Status: query.Status,
		Search: strings.TrimSpace(query.Search),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, page)
}

func (s *OrderService) listOrders(ctx context.Context, filter models.OrderFilter, page int) (models.Page[models.Order], error) {
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return models.Page[models.Order]{}, fmt.Errorf("failed to list orders: %w", err)
	}
	return models.NewPage(orders, page, filter.Limit, total), nil
}

// GetOrderStats counts orders per status. Revenue only includes approved, shipped and delivered orders.
func (s *OrderService) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrderStats")
	defer span.End()

	counts, err := s.repo.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order stats: %w", err)
	}

	stats := &models.OrderStats{}
	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case models.OrderStatusPending:
			stats.Pending = c.Count
		case models.OrderStatusApproved:
			stats.Approved = c.Count
		case models.OrderStatusRejected:
			stats.Rejected = c.Count
		case models.OrderStatusShipped:
			stats.Shipped = c.Count
		case models.OrderStatusDelivered:
			stats.Delivered = c.Count
		case models.OrderStatusCancelled:
			stats.Cancelled = c.Count
		}
		if c.Status.CountsTowardRevenue() {
			stats.TotalRevenue = stats.TotalRevenue.Add(c.TotalPrice)
		}
	}
	return stats, nil
}

func (s *OrderService) recordEvent(ctx context.Context, tx port.OutboxRepository, orderID int64, base models.BaseEvent, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return tx.InsertOutbox(ctx, &models.OutboxEvent{
		EventID: base.EventID,
		Topic:   s.cfg.EventsTopic,
		Key:     fmt.Sprintf("order-%d", orderID),
		Payload: payload,
	})
}

func orderPlacedEvent(order *models.Order, at time.Time) *models.OrderPlacedEvent {
	items := make([]models.OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		}
	}
	return &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: at,
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalItems:  order.TotalItems,
		TotalPrice:  order.TotalPrice,
		Currency:    order.Currency,
		Items:       items,
	}
}

func statusChangedEvent(order *models.Order, from models.OrderStatus, entry models.StatusHistoryEntry, stockRestored bool) *models.OrderStatusChangedEvent {
	return &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: entry.CreatedAt,
		},
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		From:          from,
		To:            entry.Status,
		Comment:       entry.Comment,
		ActorID:       entry.ActorID,
		StockRestored: stockRestored,
	}
}

func lockOrder(ctx context.Context, repo port.OrderRepository, orderID int64) (*models.Order, error) {
	order, err := repo.GetOrderForUpdate(ctx, orderID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func normalizePage(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductsUnavailable):
		return "products_unavailable"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, port.ErrDuplicate):
		return "order_number_collision"
	default:
		return "internal"
	}
}
