package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MemoryAdapter keeps every collection in process memory. Units of work are
// serialized and rolled back from a snapshot when they fail. Repositories
// handed out by Repositories wait for a running unit of work, so they never
// observe writes that may still be rolled back.
type MemoryAdapter struct {
	txMu sync.RWMutex
	mu   sync.RWMutex

	items     map[string]domain.ShopItem
	customers map[string]domain.Customer
	orders    []domain.Order

	now func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items:     make(map[string]domain.ShopItem),
		customers: make(map[string]domain.Customer),
		now:       time.Now,
	}
}

func (m *MemoryAdapter) Repositories() port.Repositories {
	r := isolatedRepos{m: m}
	return port.Repositories{Catalog: r, Customers: r, Orders: r}
}

func (m *MemoryAdapter) Atomically(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := m.snapshot()
	committed := false
	defer func() {
		if !committed {
			m.restore(snap)
		}
	}()

	if err := fn(ctx, port.Repositories{Catalog: m, Customers: m, Orders: m}); err != nil {
		return err
	}
	committed = true
	return nil
}

type memorySnapshot struct {
	items     map[string]domain.ShopItem
	customers map[string]domain.Customer
	orders    int
}

func (m *MemoryAdapter) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		items:     make(map[string]domain.ShopItem, len(m.items)),
		customers: make(map[string]domain.Customer, len(m.customers)),
		orders:    len(m.orders),
	}
	for id, it := range m.items {
		snap.items[id] = it
	}
	for id, c := range m.customers {
		snap.customers[id] = c.Clone()
	}
	return snap
}

// restore relies on orders being append-only.
func (m *MemoryAdapter) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = snap.items
	m.customers = snap.customers
	m.orders = m.orders[:snap.orders]
}

func (m *MemoryAdapter) GetItem(_ context.Context, itemID string) (*domain.ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *MemoryAdapter) ListItems(_ context.Context) ([]domain.ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.ShopItem, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MemoryAdapter) SaveItem(_ context.Context, item domain.ShopItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.items[item.ID]; ok {
		item.CreatedAt = existing.CreatedAt
		item.Version = existing.Version + 1
	} else if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	m.items[item.ID] = item
	return nil
}

func (m *MemoryAdapter) DeductStock(_ context.Context, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok || item.AvailableCount < quantity {
		return port.ErrStockConflict
	}
	item.AvailableCount -= quantity
	item.Version++
	item.UpdatedAt = m.now()
	m.items[itemID] = item
	return nil
}

func (m *MemoryAdapter) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[customerID]
	if !ok {
		return nil, nil
	}
	clone := c.Clone()
	return &clone, nil
}

func (m *MemoryAdapter) SaveCustomer(_ context.Context, customer domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = m.now()
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = customer.CreatedAt
	}
	m.customers[customer.ID] = customer.Clone()
	return nil
}

func (m *MemoryAdapter) CreateOrder(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order.Items = append([]domain.OrderLine(nil), order.Items...)
	m.orders = append(m.orders, order)
	return nil
}

func (m *MemoryAdapter) ListOrdersByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			o.Items = append([]domain.OrderLine(nil), o.Items...)
			out = append(out, o)
		}
	}
	return out, nil
}

// isolatedRepos runs single operations outside a unit of work. Reads share
// txMu with each other; writes exclude units of work.
type isolatedRepos struct {
	m *MemoryAdapter
}

func (r isolatedRepos) GetItem(ctx context.Context, itemID string) (*domain.ShopItem, error) {
	r.m.txMu.RLock()
	defer r.m.txMu.RUnlock()
	return r.m.GetItem(ctx, itemID)
}

func (r isolatedRepos) ListItems(ctx context.Context) ([]domain.ShopItem, error) {
	r.m.txMu.RLock()
	defer r.m.txMu.RUnlock()
	return r.m.ListItems(ctx)
}

func (r isolatedRepos) SaveItem(ctx context.Context, item domain.ShopItem) error {
	r.m.txMu.Lock()
	defer r.m.txMu.Unlock()
	return r.m.SaveItem(ctx, item)
}

func (r isolatedRepos) DeductStock(ctx context.Context, itemID string, quantity int) error {
	r.m.txMu.Lock()
	defer r.m.txMu.Unlock()
	return r.m.DeductStock(ctx, itemID, quantity)
}

func (r isolatedRepos) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	r.m.txMu.RLock()
	defer r.m.txMu.RUnlock()
	return r.m.GetCustomer(ctx, customerID)
}

func (r isolatedRepos) SaveCustomer(ctx context.Context, customer domain.Customer) error {
	r.m.txMu.Lock()
	defer r.m.txMu.Unlock()
	return r.m.SaveCustomer(ctx, customer)
}

func (r isolatedRepos) CreateOrder(ctx context.Context, order domain.Order) error {
	r.m.txMu.Lock()
	defer r.m.txMu.Unlock()
	return r.m.CreateOrder(ctx, order)
}

func (r isolatedRepos) ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	r.m.txMu.RLock()
	defer r.m.txMu.RUnlock()
	return r.m.ListOrdersByCustomer(ctx, customerID)
}
