package port

import (
	"context"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

// ErrStockConflict is returned by DeductStock when the item is missing or
// holds fewer units than requested at the moment of the write.
var ErrStockConflict = errors.New("stock conflict")

type CatalogRepository interface {
	// GetItem retrieves a shop item by ID, returns nil if it does not exist
	GetItem(ctx context.Context, itemID string) (*domain.ShopItem, error)

	// ListItems returns every shop item
	ListItems(ctx context.Context) ([]domain.ShopItem, error)

	// SaveItem inserts or replaces a shop item
	SaveItem(ctx context.Context, item domain.ShopItem) error

	// DeductStock subtracts quantity only if enough stock is left, bumping the version
	DeductStock(ctx context.Context, itemID string, quantity int) error
}

type CustomerRepository interface {
	// GetCustomer retrieves a customer with its cart, returns nil if it does not exist
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)

	// SaveCustomer inserts or replaces a customer including its cart
	SaveCustomer(ctx context.Context, customer domain.Customer) error
}

type OrderRepository interface {
	// CreateOrder persists a new order
	CreateOrder(ctx context.Context, order domain.Order) error

	// ListOrdersByCustomer returns the customer's orders in creation order
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
}

type Repositories struct {
	Catalog   CatalogRepository
	Customers CustomerRepository
	Orders    OrderRepository
}

// Store hands out repositories and runs units of work.
type Store interface {
	Repositories() Repositories

	// Atomically runs fn so that its reads and writes commit together or not
	// at all. Returning an error from fn rolls everything back.
	Atomically(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
