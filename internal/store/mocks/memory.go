package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/port"

	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-memory port.Repository for tests.
// WithTx works on a copy of the data that replaces the shared state only when fn succeeds,
// so a failing transaction leaves nothing behind. Transactions are serialized.
type MemoryRepository struct {
	shared *shared
	tx     *state
}

var _ port.Repository = (*MemoryRepository)(nil)

type shared struct {
	mu       sync.Mutex
	state    *state
	failures map[string]error
	calls    []string
}

type state struct {
	products      map[int64]models.Product
	carts         map[int64]models.Cart
	orders        map[int64]models.Order
	outbox        []models.OutboxEvent
	nextProductID int64
	nextOrderID   int64
	nextOutboxID  int64
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		shared: &shared{
			state: &state{
				products: make(map[int64]models.Product),
				carts:    make(map[int64]models.Cart),
				orders:   make(map[int64]models.Order),
			},
			failures: make(map[string]error),
		},
	}
}

// FailOn makes every later call of the named method return err; a nil err clears it
func (m *MemoryRepository) FailOn(method string, err error) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	if err == nil {
		delete(m.shared.failures, method)
		return
	}
	m.shared.failures[method] = err
}

// Calls returns the repository methods invoked so far, in order
func (m *MemoryRepository) Calls() []string {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	return append([]string(nil), m.shared.calls...)
}

// AddProduct stores p, assigning an ID when it has none
func (m *MemoryRepository) AddProduct(p models.Product) models.Product {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	st := m.shared.state
	if p.ID == 0 {
		st.nextProductID++
		p.ID = st.nextProductID
	} else if p.ID > st.nextProductID {
		st.nextProductID = p.ID
	}
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	st.products[p.ID] = copyProduct(p)
	return p
}

// Product returns the stored product
func (m *MemoryRepository) Product(id int64) (models.Product, bool) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	p, ok := m.shared.state.products[id]
	return copyProduct(p), ok
}

// UpdateProduct overwrites a stored product, as the catalog would
func (m *MemoryRepository) UpdateProduct(p models.Product) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.state.products[p.ID] = copyProduct(p)
}

// DeleteProduct removes a product from the catalog
func (m *MemoryRepository) DeleteProduct(id int64) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	delete(m.shared.state.products, id)
}

// Outbox returns every recorded outbox event
func (m *MemoryRepository) Outbox() []models.OutboxEvent {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	return append([]models.OutboxEvent(nil), m.shared.state.outbox...)
}

// OrderCount returns the number of stored orders
func (m *MemoryRepository) OrderCount() int {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	return len(m.shared.state.orders)
}

func (m *MemoryRepository) run(method string, fn func(st *state) error) error {
	if m.tx == nil {
		m.shared.mu.Lock()
		defer m.shared.mu.Unlock()
	}
	m.shared.calls = append(m.shared.calls, method)
	if err := m.shared.failures[method]; err != nil {
		return err
	}
	if m.tx != nil {
		return fn(m.tx)
	}
	return fn(m.shared.state)
}

// WithTx runs fn on a private copy of the data and publishes it when fn succeeds
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(repo port.Repository) error) error {
	if m.tx != nil {
		return fn(m)
	}

	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	if err := m.shared.failures["WithTx"]; err != nil {
		return err
	}

	working := m.shared.state.clone()
	if err := fn(&MemoryRepository{shared: m.shared, tx: working}); err != nil {
		return err
	}
	m.shared.state = working
	return nil
}

func (m *MemoryRepository) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var out *models.Product
	err := m.run("GetProduct", func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return port.ErrNotFound
		}
		cp := copyProduct(p)
		out = &cp
		return nil
	})
	return out, err
}

func (m *MemoryRepository) GetProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	return m.getProducts("GetProducts", ids)
}

func (m *MemoryRepository) GetProductsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error) {
	return m.getProducts("GetProductsForUpdate", ids)
}

func (m *MemoryRepository) getProducts(method string, ids []int64) ([]models.Product, error) {
	var out []models.Product
	err := m.run(method, func(st *state) error {
		out = []models.Product{}
		seen := make(map[int64]bool)
		for _, id := range ids {
			if p, ok := st.products[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, copyProduct(p))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (m *MemoryRepository) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	var (
		out   []models.Product
		total int
	)
	err := m.run("ListProducts", func(st *state) error {
		var matched []models.Product
		search := strings.ToLower(filter.Search)
		for _, p := range st.products {
			if filter.ActiveOnly && !p.IsActive {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
				continue
			}
			if filter.MinPrice != nil && p.Price.LessThan(*filter.MinPrice) {
				continue
			}
			if filter.MaxPrice != nil && p.Price.GreaterThan(*filter.MaxPrice) {
				continue
			}
			matched = append(matched, copyProduct(p))
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID > matched[j].ID
		})
		total = len(matched)
		out = paginate(matched, filter.Limit, filter.Offset)
		return nil
	})
	return out, total, err
}

func (m *MemoryRepository) DecrementStock(ctx context.Context, productID int64, amount int) (bool, error) {
	var ok bool
	err := m.run("DecrementStock", func(st *state) error {
		p, exists := st.products[productID]
		if !exists || p.Stock < amount {
			return nil
		}
		p.Stock -= amount
		p.UpdatedAt = time.Now()
		st.products[productID] = p
		ok = true
		return nil
	})
	return ok, err
}

func (m *MemoryRepository) IncrementStock(ctx context.Context, productID int64, amount int) error {
	return m.run("IncrementStock", func(st *state) error {
		p, exists := st.products[productID]
		if !exists {
			return fmt.Errorf("product %d: %w", productID, port.ErrNotFound)
		}
		p.Stock += amount
		p.UpdatedAt = time.Now()
		st.products[productID] = p
		return nil
	})
}

func (m *MemoryRepository) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return m.getCart("GetCart", userID)
}

func (m *MemoryRepository) GetCartForUpdate(ctx context.Context, userID int64) (*models.Cart, error) {
	return m.getCart("GetCartForUpdate", userID)
}

func (m *MemoryRepository) getCart(method string, userID int64) (*models.Cart, error) {
	var out *models.Cart
	err := m.run(method, func(st *state) error {
		c, ok := st.carts[userID]
		if !ok {
			return port.ErrNotFound
		}
		cp := copyCart(c)
		out = &cp
		return nil
	})
	return out, err
}

func (m *MemoryRepository) CreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var out *models.Cart
	err := m.run("CreateCart", func(st *state) error {
		c, ok := st.carts[userID]
		if !ok {
			c = *models.NewCart(userID)
			now := time.Now()
			c.CreatedAt, c.UpdatedAt = now, now
			st.carts[userID] = c
		}
		cp := copyCart(c)
		out = &cp
		return nil
	})
	return out, err
}

func (m *MemoryRepository) SaveCart(ctx context.Context, cart *models.Cart) error {
	return m.run("SaveCart", func(st *state) error {
		if _, ok := st.carts[cart.UserID]; !ok {
			return port.ErrNotFound
		}
		cart.UpdatedAt = time.Now()
		st.carts[cart.UserID] = copyCart(*cart)
		return nil
	})
}

func (m *MemoryRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	return m.run("CreateOrder", func(st *state) error {
		for _, existing := range st.orders {
			if existing.OrderNumber == order.OrderNumber {
				return fmt.Errorf("order number %s: %w", order.OrderNumber, port.ErrDuplicate)
			}
		}
		st.nextOrderID++
		now := time.Now()
		order.ID = st.nextOrderID
		order.CreatedAt, order.UpdatedAt = now, now
		st.orders[order.ID] = copyOrder(*order)
		return nil
	})
}

func (m *MemoryRepository) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return m.getOrder("GetOrder", id)
}

func (m *MemoryRepository) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return m.getOrder("GetOrderForUpdate", id)
}

func (m *MemoryRepository) getOrder(method string, id int64) (*models.Order, error) {
	var out *models.Order
	err := m.run(method, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return port.ErrNotFound
		}
		cp := copyOrder(o)
		out = &cp
		return nil
	})
	return out, err
}

func (m *MemoryRepository) AppendStatus(ctx context.Context, order *models.Order, entry models.StatusHistoryEntry) error {
	return m.run("AppendStatus", func(st *state) error {
		stored, ok := st.orders[order.ID]
		if !ok {
			return port.ErrNotFound
		}
		stored = copyOrder(stored)
		stored.Status = order.Status
		stored.RejectionReason = order.RejectionReason
		stored.StatusHistory = append(stored.StatusHistory, entry)
		stored.UpdatedAt = time.Now()
		order.UpdatedAt = stored.UpdatedAt
		st.orders[order.ID] = stored
		return nil
	})
}

func (m *MemoryRepository) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	var (
		out   []models.Order
		total int
	)
	err := m.run("ListOrders", func(st *state) error {
		var matched []models.Order
		search := strings.ToLower(filter.Search)
		for _, o := range st.orders {
			if filter.UserID != nil && o.UserID != *filter.UserID {
				continue
			}
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(o.OrderNumber), search) {
				continue
			}
			matched = append(matched, copyOrder(o))
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID > matched[j].ID
		})
		total = len(matched)
		out = paginate(matched, filter.Limit, filter.Offset)
		return nil
	})
	return out, total, err
}

func (m *MemoryRepository) CountOrdersByStatus(ctx context.Context) ([]models.StatusCount, error) {
	var out []models.StatusCount
	err := m.run("CountOrdersByStatus", func(st *state) error {
		byStatus := make(map[models.OrderStatus]*models.StatusCount)
		for _, o := range st.orders {
			sc, ok := byStatus[o.Status]
			if !ok {
				sc = &models.StatusCount{Status: o.Status, TotalPrice: decimal.Zero}
				byStatus[o.Status] = sc
			}
			sc.Count++
			sc.TotalPrice = sc.TotalPrice.Add(o.TotalPrice)
		}
		for _, sc := range byStatus {
			out = append(out, *sc)
		}
		return nil
	})
	return out, err
}

func (m *MemoryRepository) InsertOutbox(ctx context.Context, event *models.OutboxEvent) error {
	return m.run("InsertOutbox", func(st *state) error {
		st.nextOutboxID++
		event.ID = st.nextOutboxID
		event.CreatedAt = time.Now()
		cp := *event
		cp.Payload = append([]byte(nil), event.Payload...)
		st.outbox = append(st.outbox, cp)
		return nil
	})
}

func (s *state) clone() *state {
	c := &state{
		products:      make(map[int64]models.Product, len(s.products)),
		carts:         make(map[int64]models.Cart, len(s.carts)),
		orders:        make(map[int64]models.Order, len(s.orders)),
		outbox:        append([]models.OutboxEvent(nil), s.outbox...),
		nextProductID: s.nextProductID,
		nextOrderID:   s.nextOrderID,
		nextOutboxID:  s.nextOutboxID,
	}
	for id, p := range s.products {
		c.products[id] = copyProduct(p)
	}
	for id, cart := range s.carts {
		c.carts[id] = copyCart(cart)
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	return c
}

func copyProduct(p models.Product) models.Product {
	p.ImageURLs = append([]string{}, p.ImageURLs...)
	return p
}

// copyCart keeps only the stored columns of each line
func copyCart(c models.Cart) models.Cart {
	items := make([]models.CartItem, len(c.Items))
	for i, item := range c.Items {
		items[i] = models.CartItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}
	c.Items = items
	return c
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem{}, o.Items...)
	o.StatusHistory = append([]models.StatusHistoryEntry{}, o.StatusHistory...)
	return o
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
