package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	keys       map[string]bool
	reserveErr error
	mu         sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{keys: make(map[string]bool)}
}

func (m *mockCacheRepo) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reserveErr != nil {
		return false, m.reserveErr
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockCacheRepo) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *mockCacheRepo) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (p *mockPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.orders = append(p.orders, order)
	return nil
}

// failingStore wraps a store and makes selected repository writes fail.
type failingStore struct {
	*storage.MemoryAdapter
	failCreateOrder  bool
	failSaveCustomer bool
}

var errInjected = errors.New("injected failure")

func (s *failingStore) Atomically(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	return s.MemoryAdapter.Atomically(ctx, func(ctx context.Context, repos port.Repositories) error {
		return fn(ctx, port.Repositories{
			Catalog:   repos.Catalog,
			Customers: failingCustomers{CustomerRepository: repos.Customers, fail: s.failSaveCustomer},
			Orders:    failingOrders{OrderRepository: repos.Orders, fail: s.failCreateOrder},
		})
	})
}

type failingOrders struct {
	port.OrderRepository
	fail bool
}

func (f failingOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	if f.fail {
		return errInjected
	}
	return f.OrderRepository.CreateOrder(ctx, order)
}

type failingCustomers struct {
	port.CustomerRepository
	fail bool
}

func (f failingCustomers) SaveCustomer(ctx context.Context, c domain.Customer) error {
	if f.fail {
		return errInjected
	}
	return f.CustomerRepository.SaveCustomer(ctx, c)
}

func seedItem(t *testing.T, store *storage.MemoryAdapter, id, title, price string, stock int) {
	t.Helper()
	require.NoError(t, store.SaveItem(context.Background(), domain.ShopItem{
		ID:             id,
		Title:          title,
		Price:          decimal.RequireFromString(price),
		AvailableCount: stock,
	}))
}

func seedCustomer(t *testing.T, store *storage.MemoryAdapter, id string, lines ...domain.CartLine) {
	t.Helper()
	require.NoError(t, store.SaveCustomer(context.Background(), domain.Customer{
		ID:    id,
		Name:  "Customer " + id,
		Email: id + "@example.com",
		Cart:  domain.NewCart(lines...),
	}))
}

func stockOf(t *testing.T, store *storage.MemoryAdapter, id string) int {
	t.Helper()
	item, err := store.GetItem(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.AvailableCount
}
