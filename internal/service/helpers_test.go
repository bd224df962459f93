package service

import (
	"context"
	"sync"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store/mocks"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

const testTopic = "order-events"

type testEnv struct {
	repo   *mocks.MemoryRepository
	carts  *CartService
	orders *OrderService
	idem   *fakeIdempotencyStore
}

func newTestEnv() *testEnv {
	repo := mocks.NewMemoryRepository()
	idem := newFakeIdempotencyStore()
	return &testEnv{
		repo:  repo,
		carts: NewCartService(repo),
		orders: NewOrderService(repo, idem, OrderConfig{
			Currency:    currency.USD,
			EventsTopic: testTopic,
		}),
		idem: idem,
	}
}

func (e *testEnv) addProduct(t *testing.T, price string, stock int) models.Product {
	t.Helper()
	return e.repo.AddProduct(models.Product{
		Name:      gofakeit.ProductName(),
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		ImageURLs: []string{gofakeit.URL(), gofakeit.URL()},
		IsActive:  true,
	})
}

func (e *testEnv) stockOf(t *testing.T, productID int64) int {
	t.Helper()
	p, ok := e.repo.Product(productID)
	require.True(t, ok, "product %d missing", productID)
	return p.Stock
}

func (e *testEnv) fillCart(t *testing.T, userID int64, lines map[int64]int) {
	t.Helper()
	for productID, qty := range lines {
		_, err := e.carts.AddItem(context.Background(), userID, productID, qty)
		require.NoError(t, err)
	}
}

func (e *testEnv) placeOrder(t *testing.T, userID int64, lines map[int64]int) *models.Order {
	t.Helper()
	e.fillCart(t, userID, lines)
	order, err := e.orders.CreateOrder(context.Background(), userID, CreateOrderRequest{
		ShippingAddress: validAddress(),
	})
	require.NoError(t, err)
	return order
}

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		FullName:   gofakeit.Name(),
		Phone:      gofakeit.Phone(),
		Address:    gofakeit.Street(),
		City:       gofakeit.City(),
		PostalCode: gofakeit.Zip(),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func assertCartTotals(t *testing.T, cart *models.Cart) {
	t.Helper()
	items := 0
	total := decimal.Zero
	for _, item := range cart.Items {
		items += item.Quantity
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	assert.Equal(t, items, cart.TotalItems)
	assert.True(t, total.Equal(cart.TotalPrice), "total price %s, lines sum to %s", cart.TotalPrice, total)
}

type idempotencyEntry struct {
	orderID int64
}

type fakeIdempotencyStore struct {
	mu       sync.Mutex
	entries  map[string]*idempotencyEntry
	err      error
	released []string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{entries: make(map[string]*idempotencyEntry)}
}

func (f *fakeIdempotencyStore) ClaimCheckout(ctx context.Context, key string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	if e, ok := f.entries[key]; ok {
		return e.orderID, false, nil
	}
	f.entries[key] = &idempotencyEntry{}
	return 0, true, nil
}

func (f *fakeIdempotencyStore) CompleteCheckout(ctx context.Context, key string, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = &idempotencyEntry{orderID: orderID}
	return nil
}

func (f *fakeIdempotencyStore) ReleaseCheckout(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	f.released = append(f.released, key)
	return nil
}
