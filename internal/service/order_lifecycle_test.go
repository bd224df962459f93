package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

var namedErrors = map[string]error{
	"InsufficientStock":       ErrInsufficientStock,
	"ProductsUnavailable":     ErrProductsUnavailable,
	"InvalidTransition":       ErrInvalidTransition,
	"RejectionReasonRequired": ErrRejectionReasonRequired,
	"OnlyPendingCancellable":  ErrOnlyPendingCancellable,
	"OrderNotFound":           ErrOrderNotFound,
	"EmptyCart":               ErrEmptyCart,
}

// statuses visited on the way from pending to each status
var pathFromPending = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {},
	models.OrderStatusApproved:  {models.OrderStatusApproved},
	models.OrderStatusRejected:  {models.OrderStatusRejected},
	models.OrderStatusShipped:   {models.OrderStatusApproved, models.OrderStatusShipped},
	models.OrderStatusDelivered: {models.OrderStatusApproved, models.OrderStatusShipped, models.OrderStatusDelivered},
	models.OrderStatusCancelled: {models.OrderStatusCancelled},
}

const adminID = int64(900)

type lifecycleContext struct {
	env      *testEnv
	products map[string]int64
	order    *models.Order
	err      error
}

func (c *lifecycleContext) reset() {
	c.env = newTestEnv()
	c.products = make(map[string]int64)
	c.order = nil
	c.err = nil
}

func (c *lifecycleContext) product(name string) (models.Product, error) {
	id, ok := c.products[name]
	if !ok {
		return models.Product{}, fmt.Errorf("unknown product %q", name)
	}
	p, ok := c.env.repo.Product(id)
	if !ok {
		return models.Product{}, fmt.Errorf("product %q was deleted", name)
	}
	return p, nil
}

func (c *lifecycleContext) aProductPricedWithInStock(name, price string, stock int) error {
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	p := c.env.repo.AddProduct(models.Product{
		Name:      name,
		Price:     amount,
		Stock:     stock,
		ImageURLs: []string{gofakeit.URL()},
		IsActive:  true,
	})
	c.products[name] = p.ID
	return nil
}

func (c *lifecycleContext) customerHasInTheCart(userID int64, qty int, name string) error {
	p, err := c.product(name)
	if err != nil {
		return err
	}
	_, err = c.env.carts.AddItem(context.Background(), userID, p.ID, qty)
	return err
}

func (c *lifecycleContext) theStockOfDropsTo(name string, stock int) error {
	p, err := c.product(name)
	if err != nil {
		return err
	}
	p.Stock = stock
	c.env.repo.UpdateProduct(p)
	return nil
}

func (c *lifecycleContext) isTakenOffSale(name string) error {
	p, err := c.product(name)
	if err != nil {
		return err
	}
	p.IsActive = false
	c.env.repo.UpdateProduct(p)
	return nil
}

func (c *lifecycleContext) customerChecksOut(userID int64) error {
	order, err := c.env.orders.CreateOrder(context.Background(), userID, CreateOrderRequest{
		ShippingAddress: validAddress(),
	})
	c.err = err
	if err == nil {
		c.order = order
	}
	return nil
}

func (c *lifecycleContext) customerHasPlacedAnOrderFor(userID int64, qty int, name string) error {
	if err := c.customerHasInTheCart(userID, qty, name); err != nil {
		return err
	}
	if err := c.customerChecksOut(userID); err != nil {
		return err
	}
	return c.err
}

func (c *lifecycleContext) theOrderHasReached(status string) error {
	path, ok := pathFromPending[models.OrderStatus(status)]
	if !ok {
		return fmt.Errorf("no path to %q", status)
	}
	for _, step := range path {
		order, err := c.env.orders.UpdateOrderStatus(context.Background(), c.order.ID, step, adminID, "step")
		if err != nil {
			return err
		}
		c.order = order
	}
	return nil
}

func (c *lifecycleContext) theAdminMovesTheOrderTo(status, comment string) error {
	order, err := c.env.orders.UpdateOrderStatus(context.Background(), c.order.ID, models.OrderStatus(status), adminID, comment)
	c.err = err
	if err == nil {
		c.order = order
	}
	return nil
}

func (c *lifecycleContext) customerCancelsTheOrder(userID int64) error {
	order, err := c.env.orders.CancelOrder(context.Background(), c.order.ID, userID)
	c.err = err
	if err == nil {
		c.order = order
	}
	return nil
}

func (c *lifecycleContext) theOperationFailsWith(name string) error {
	want, ok := namedErrors[name]
	if !ok {
		return fmt.Errorf("unknown error name %q", name)
	}
	if !errors.Is(c.err, want) {
		return fmt.Errorf("expected %s, got %v", name, c.err)
	}
	return nil
}

func (c *lifecycleContext) storedOrder() (*models.Order, error) {
	if c.order == nil {
		return nil, errors.New("no order was placed")
	}
	return c.env.orders.GetOrder(context.Background(), c.order.ID)
}

func (c *lifecycleContext) theOrderTotalIsForItems(total string, items int) error {
	order, err := c.storedOrder()
	if err != nil {
		return err
	}
	if !order.TotalPrice.Equal(decimal.RequireFromString(total)) {
		return fmt.Errorf("expected total %s, got %s", total, order.TotalPrice)
	}
	if order.TotalItems != items {
		return fmt.Errorf("expected %d items, got %d", items, order.TotalItems)
	}
	return nil
}

func (c *lifecycleContext) theOrderStatusIs(status string) error {
	order, err := c.storedOrder()
	if err != nil {
		return err
	}
	if string(order.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, order.Status)
	}
	last := order.StatusHistory[len(order.StatusHistory)-1]
	if last.Status != order.Status {
		return fmt.Errorf("last history entry is %s but status is %s", last.Status, order.Status)
	}
	return nil
}

func (c *lifecycleContext) theOrderHasHistoryEntries(n int) error {
	order, err := c.storedOrder()
	if err != nil {
		return err
	}
	if len(order.StatusHistory) != n {
		return fmt.Errorf("expected %d history entries, got %d", n, len(order.StatusHistory))
	}
	return nil
}

func (c *lifecycleContext) theRejectionReasonIs(reason string) error {
	order, err := c.storedOrder()
	if err != nil {
		return err
	}
	if order.RejectionReason != reason {
		return fmt.Errorf("expected rejection reason %q, got %q", reason, order.RejectionReason)
	}
	return nil
}

func (c *lifecycleContext) theStockOfIs(name string, stock int) error {
	p, err := c.product(name)
	if err != nil {
		return err
	}
	if p.Stock != stock {
		return fmt.Errorf("expected %s stock %d, got %d", name, stock, p.Stock)
	}
	return nil
}

func (c *lifecycleContext) theCartOfCustomerIsEmpty(userID int64) error {
	return c.theCartOfCustomerHoldsItems(userID, 0)
}

func (c *lifecycleContext) theCartOfCustomerHoldsItems(userID int64, items int) error {
	cart, err := c.env.carts.GetCart(context.Background(), userID)
	if err != nil {
		return err
	}
	if cart.TotalItems != items {
		return fmt.Errorf("expected %d items in cart, got %d", items, cart.TotalItems)
	}
	if items == 0 && (len(cart.Items) != 0 || !cart.TotalPrice.IsZero()) {
		return fmt.Errorf("cart not emptied: %+v", cart)
	}
	return nil
}

func (c *lifecycleContext) thereAreOrders(n int) error {
	if got := c.env.repo.OrderCount(); got != n {
		return fmt.Errorf("expected %d orders, got %d", n, got)
	}
	return nil
}

func (c *lifecycleContext) theStatsShowOrdersWithRevenue(total int, revenue string) error {
	stats, err := c.env.orders.GetOrderStats(context.Background())
	if err != nil {
		return err
	}
	if stats.Total != total {
		return fmt.Errorf("expected %d orders, got %d", total, stats.Total)
	}
	if !stats.TotalRevenue.Equal(decimal.RequireFromString(revenue)) {
		return fmt.Errorf("expected revenue %s, got %s", revenue, stats.TotalRevenue)
	}
	return nil
}

func (c *lifecycleContext) theStatsShowStatusOrders(n int, status string) error {
	stats, err := c.env.orders.GetOrderStats(context.Background())
	if err != nil {
		return err
	}
	counts := map[string]int{
		"pending":   stats.Pending,
		"approved":  stats.Approved,
		"rejected":  stats.Rejected,
		"shipped":   stats.Shipped,
		"delivered": stats.Delivered,
		"cancelled": stats.Cancelled,
	}
	if counts[status] != n {
		return fmt.Errorf("expected %d %s orders, got %d", n, status, counts[status])
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	lc := &lifecycleContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		lc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" priced (\d+(?:\.\d+)?) with (\d+) in stock$`, lc.aProductPricedWithInStock)
	ctx.Step(`^customer (\d+) has (\d+) of "([^"]*)" in the cart$`, lc.customerHasInTheCart)
	ctx.Step(`^the stock of "([^"]*)" drops to (\d+)$`, lc.theStockOfDropsTo)
	ctx.Step(`^"([^"]*)" is taken off sale$`, lc.isTakenOffSale)
	ctx.Step(`^customer (\d+) has placed an order for (\d+) of "([^"]*)"$`, lc.customerHasPlacedAnOrderFor)
	ctx.Step(`^the order has reached "([^"]*)"$`, lc.theOrderHasReached)

	// When steps
	ctx.Step(`^customer (\d+) checks out$`, lc.customerChecksOut)
	ctx.Step(`^the admin moves the order to "([^"]*)"$`, func(status string) error {
		return lc.theAdminMovesTheOrderTo(status, "")
	})
	ctx.Step(`^the admin moves the order to "([^"]*)" with comment "([^"]*)"$`, lc.theAdminMovesTheOrderTo)
	ctx.Step(`^customer (\d+) cancels the order$`, lc.customerCancelsTheOrder)

	// Then steps
	ctx.Step(`^the operation fails with "([^"]*)"$`, lc.theOperationFailsWith)
	ctx.Step(`^the order total is (\d+(?:\.\d+)?) for (\d+) items$`, lc.theOrderTotalIsForItems)
	ctx.Step(`^the order status is "([^"]*)"$`, lc.theOrderStatusIs)
	ctx.Step(`^the order has (\d+) history entries$`, lc.theOrderHasHistoryEntries)
	ctx.Step(`^the rejection reason is "([^"]*)"$`, lc.theRejectionReasonIs)
	ctx.Step(`^the stock of "([^"]*)" is (\d+)$`, lc.theStockOfIs)
	ctx.Step(`^the cart of customer (\d+) is empty$`, lc.theCartOfCustomerIsEmpty)
	ctx.Step(`^the cart of customer (\d+) holds (\d+) items$`, lc.theCartOfCustomerHoldsItems)
	ctx.Step(`^there are (\d+) orders$`, lc.thereAreOrders)
	ctx.Step(`^the stats show (\d+) orders with revenue (\d+(?:\.\d+)?)$`, lc.theStatsShowOrdersWithRevenue)
	ctx.Step(`^the stats show (\d+) "([^"]*)" orders$`, lc.theStatsShowStatusOrders)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
