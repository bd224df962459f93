package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/port"
	"storefront/internal/store"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.BasicWaitStrategies(),
		postgres.WithInitScripts("../../migrations/001_init.up.sql"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("pc.ConnectionString: %w", err)
	}

	return postgresContainer, connStr, nil
}

type storeSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	store     *store.Store
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	suite.Run(t, new(storeSuite))
}

func (s *storeSuite) SetupSuite() {
	ctx := context.Background()

	container, connStr, err := startPostgres(ctx)
	s.Require().NoError(err)
	s.container = container

	s.store, err = store.NewStore(connStr)
	s.Require().NoError(err)
}

func (s *storeSuite) TearDownSuite() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(context.Background()))
	}
}

func (s *storeSuite) product(price string, stock int) models.Product {
	p := models.Product{
		Name:        gofakeit.ProductName(),
		Description: gofakeit.ProductDescription(),
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		ImageURLs:   []string{gofakeit.URL(), gofakeit.URL()},
		IsActive:    true,
	}
	s.Require().NoError(s.store.CreateProduct(context.Background(), &p))
	return p
}

func (s *storeSuite) order(userID int64, p models.Product, qty int, status models.OrderStatus) models.Order {
	now := time.Now().UTC()
	total := p.Price.Mul(decimal.NewFromInt(int64(qty)))
	o := models.Order{
		OrderNumber: fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), gofakeit.LetterN(9)),
		UserID:      userID,
		Items: []models.OrderItem{{
			ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: qty, Image: p.ImageURLs[0],
		}},
		TotalItems: qty,
		TotalPrice: total,
		Currency:   "USD",
		ShippingAddress: models.ShippingAddress{
			FullName:   gofakeit.Name(),
			Phone:      gofakeit.Phone(),
			Address:    gofakeit.Street(),
			City:       gofakeit.City(),
			PostalCode: gofakeit.Zip(),
		},
		PaymentMethod: models.PaymentMethodCOD,
		Status:        status,
		StatusHistory: []models.StatusHistoryEntry{{
			Status: status, Comment: "Order placed", ActorID: &userID, CreatedAt: now,
		}},
	}
	s.Require().NoError(s.store.CreateOrder(context.Background(), &o))
	return o
}

func (s *storeSuite) TestProducts_GetAndLock() {
	ctx := context.Background()
	a := s.product("12.50", 4)
	b := s.product("3.00", 1)

	got, err := s.store.GetProduct(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.Name, got.Name)
	s.True(got.Price.Equal(a.Price))
	s.Equal(a.ImageURLs, got.ImageURLs)

	_, err = s.store.GetProduct(ctx, -1)
	s.ErrorIs(err, port.ErrNotFound)

	err = s.store.WithTx(ctx, func(repo port.Repository) error {
		locked, err := repo.GetProductsForUpdate(ctx, []int64{b.ID, a.ID, -1})
		s.Require().NoError(err)
		s.Require().Len(locked, 2)
		s.Equal(a.ID, locked[0].ID, "rows are locked in id order")
		s.Equal(b.ID, locked[1].ID)
		return nil
	})
	s.NoError(err)
}

func (s *storeSuite) TestProducts_ConditionalDecrement() {
	ctx := context.Background()
	p := s.product("1.00", 3)

	ok, err := s.store.DecrementStock(ctx, p.ID, 2)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.DecrementStock(ctx, p.ID, 2)
	s.Require().NoError(err)
	s.False(ok, "stock never goes negative")

	s.Require().NoError(s.store.IncrementStock(ctx, p.ID, 5))
	got, err := s.store.GetProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(6, got.Stock)

	s.ErrorIs(s.store.IncrementStock(ctx, -1, 1), port.ErrNotFound)
}

func (s *storeSuite) TestProducts_ConcurrentDecrementNeverOversells() {
	ctx := context.Background()
	p := s.product("1.00", 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.DecrementStock(ctx, p.ID, 1)
			if err == nil && ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := s.store.GetProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(10, succeeded)
	s.Equal(0, got.Stock)
}

func (s *storeSuite) TestProducts_ListFilters() {
	ctx := context.Background()
	tag := gofakeit.LetterN(12)
	cheap := models.Product{Name: tag + " cheap", Price: decimal.RequireFromString("5.00"), Stock: 1, IsActive: true}
	pricey := models.Product{Name: tag + " pricey", Price: decimal.RequireFromString("50.00"), Stock: 1, IsActive: true}
	hidden := models.Product{Name: tag + " hidden", Price: decimal.RequireFromString("20.00"), Stock: 1, IsActive: false}
	for _, p := range []*models.Product{&cheap, &pricey, &hidden} {
		s.Require().NoError(s.store.CreateProduct(ctx, p))
	}

	products, total, err := s.store.ListProducts(ctx, models.ProductFilter{Search: tag, ActiveOnly: true, Limit: 10})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal(pricey.ID, products[0].ID, "newest first")
	s.Empty(products[0].ImageURLs)
	s.NotNil(products[0].ImageURLs)

	min := decimal.RequireFromString("10")
	products, total, err = s.store.ListProducts(ctx, models.ProductFilter{Search: tag, MinPrice: &min, Limit: 10})
	s.Require().NoError(err)
	s.Equal(2, total)
	for _, p := range products {
		s.True(p.Price.GreaterThanOrEqual(min))
	}

	_, total, err = s.store.ListProducts(ctx, models.ProductFilter{Search: "%", Limit: 10})
	s.Require().NoError(err)
	s.Zero(total, "wildcards match literally")
}

func (s *storeSuite) TestCarts_CreateSaveReload() {
	ctx := context.Background()
	userID := gofakeit.Int64()
	a := s.product("10.00", 5)
	b := s.product("2.50", 5)

	_, err := s.store.GetCart(ctx, userID)
	s.ErrorIs(err, port.ErrNotFound)

	cart, err := s.store.CreateCart(ctx, userID)
	s.Require().NoError(err)
	s.Empty(cart.Items)

	again, err := s.store.CreateCart(ctx, userID)
	s.Require().NoError(err)
	s.True(cart.CreatedAt.Equal(again.CreatedAt), "creating twice keeps the first cart")

	cart.Upsert(b.ID, 2, b.Price)
	cart.Upsert(a.ID, 1, a.Price)
	s.Require().NoError(s.store.SaveCart(ctx, cart))

	stored, err := s.store.GetCart(ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(stored.Items, 2)
	s.Equal(b.ID, stored.Items[0].ProductID, "line order is preserved")
	s.Equal(3, stored.TotalItems)
	s.True(stored.TotalPrice.Equal(decimal.RequireFromString("15")))

	stored.Clear()
	s.Require().NoError(s.store.SaveCart(ctx, stored))
	cleared, err := s.store.GetCart(ctx, userID)
	s.Require().NoError(err)
	s.Empty(cleared.Items)
	s.True(cleared.TotalPrice.IsZero())
}

func (s *storeSuite) TestOrders_CreateAndRead() {
	ctx := context.Background()
	userID := gofakeit.Int64()
	p := s.product("25.00", 10)

	created := s.order(userID, p, 3, models.OrderStatusPending)

	got, err := s.store.GetOrder(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.OrderNumber, got.OrderNumber)
	s.Equal(created.ShippingAddress, got.ShippingAddress)
	s.Require().Len(got.Items, 1)
	s.Equal(p.ImageURLs[0], got.Items[0].Image)
	s.True(got.TotalPrice.Equal(decimal.RequireFromString("75")))
	s.Require().Len(got.StatusHistory, 1)
	s.Equal(userID, *got.StatusHistory[0].ActorID)

	_, err = s.store.GetOrder(ctx, -1)
	s.ErrorIs(err, port.ErrNotFound)
}

func (s *storeSuite) TestOrders_DuplicateNumber() {
	ctx := context.Background()
	p := s.product("1.00", 1)
	first := s.order(1, p, 1, models.OrderStatusPending)

	dup := first
	dup.ID = 0
	err := s.store.CreateOrder(ctx, &dup)

	s.ErrorIs(err, port.ErrDuplicate)
}

func (s *storeSuite) TestOrders_AppendStatus() {
	ctx := context.Background()
	p := s.product("1.00", 1)
	o := s.order(gofakeit.Int64(), p, 1, models.OrderStatusPending)
	admin := int64(900)

	err := s.store.WithTx(ctx, func(repo port.Repository) error {
		locked, err := repo.GetOrderForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		locked.Status = models.OrderStatusRejected
		locked.RejectionReason = "out of area"
		return repo.AppendStatus(ctx, locked, models.StatusHistoryEntry{
			Status: models.OrderStatusRejected, Comment: "out of area", ActorID: &admin, CreatedAt: time.Now(),
		})
	})
	s.Require().NoError(err)

	got, err := s.store.GetOrder(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusRejected, got.Status)
	s.Equal("out of area", got.RejectionReason)
	s.Require().Len(got.StatusHistory, 2)
	s.Equal(models.OrderStatusRejected, got.StatusHistory[1].Status)
}

func (s *storeSuite) TestOrders_ListAndCount() {
	ctx := context.Background()
	userID := gofakeit.Int64()
	p := s.product("10.00", 100)
	first := s.order(userID, p, 1, models.OrderStatusPending)
	second := s.order(userID, p, 2, models.OrderStatusPending)
	s.order(gofakeit.Int64(), p, 1, models.OrderStatusPending)

	orders, total, err := s.store.ListOrders(ctx, models.OrderFilter{UserID: &userID, Limit: 1})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(orders, 1)
	s.Equal(second.ID, orders[0].ID, "newest first")
	s.Len(orders[0].Items, 1)
	s.Len(orders[0].StatusHistory, 1)

	orders, _, err = s.store.ListOrders(ctx, models.OrderFilter{UserID: &userID, Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Equal(first.ID, orders[0].ID)

	orders, total, err = s.store.ListOrders(ctx, models.OrderFilter{Search: first.OrderNumber[len(first.OrderNumber)-9:], Limit: 10})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(first.ID, orders[0].ID)

	counts, err := s.store.CountOrdersByStatus(ctx)
	s.Require().NoError(err)
	var pending int
	for _, c := range counts {
		if c.Status == models.OrderStatusPending {
			pending = c.Count
		}
	}
	s.GreaterOrEqual(pending, 3)
}

func (s *storeSuite) TestWithTx_RollsBackOnError() {
	ctx := context.Background()
	p := s.product("1.00", 5)
	boom := errors.New("abort")

	err := s.store.WithTx(ctx, func(repo port.Repository) error {
		ok, err := repo.DecrementStock(ctx, p.ID, 5)
		s.Require().NoError(err)
		s.Require().True(ok)

		// nested calls join the open transaction
		return repo.WithTx(ctx, func(inner port.Repository) error {
			if err := inner.InsertOutbox(ctx, &models.OutboxEvent{
				EventID: gofakeit.UUID(), Topic: "order-events", Key: "order-1", Payload: []byte(`{}`),
			}); err != nil {
				return err
			}
			return boom
		})
	})
	s.ErrorIs(err, boom)

	got, err := s.store.GetProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(5, got.Stock)
}
