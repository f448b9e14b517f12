package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

type CartService struct {
	store   port.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCartService(store port.Store, m *metrics.Metrics) *CartService {
	return &CartService{store: store, metrics: m, now: time.Now}
}

func (s *CartService) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	customer, err := loadCustomer(ctx, s.store.Repositories().Customers, customerID)
	if err != nil {
		return domain.Cart{}, err
	}
	return customer.Cart, nil
}

// GetCartDetails returns the cart lines joined with their catalog entries.
func (s *CartService) GetCartDetails(ctx context.Context, customerID string) ([]domain.ResolvedLine, error) {
	repos := s.store.Repositories()
	customer, err := loadCustomer(ctx, repos.Customers, customerID)
	if err != nil {
		return nil, err
	}
	lines := customer.Cart.Lines()
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	items, err := resolveItems(ctx, repos.Catalog, ids)
	if err != nil {
		return nil, err
	}
	return resolveLines(lines, items), nil
}

// maxLineQuantity bounds a cart line so it fits the stores' INT columns.
const maxLineQuantity = math.MaxInt32

// AddToCart merges quantity units of itemID into the customer's cart. Stock
// is not checked or reserved here; that happens at checkout.
func (s *CartService) AddToCart(ctx context.Context, customerID, itemID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 || quantity > maxLineQuantity {
		s.metrics.ObserveCartMutation("add", "invalid")
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	var cart domain.Cart
	err := s.store.Atomically(ctx, func(ctx context.Context, repos port.Repositories) error {
		customer, err := loadCustomer(ctx, repos.Customers, customerID)
		if err != nil {
			return err
		}
		item, err := repos.Catalog.GetItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("get item %s: %w", itemID, err)
		}
		if item == nil {
			return domain.ErrInvalidReference
		}

		if existing, _ := customer.Cart.Quantity(itemID); existing > maxLineQuantity-quantity {
			return domain.ErrInvalidQuantity
		}
		customer.Cart.Add(itemID, quantity)
		customer.UpdatedAt = s.now()
		if err := repos.Customers.SaveCustomer(ctx, *customer); err != nil {
			return fmt.Errorf("save customer: %w", err)
		}
		cart = customer.Cart
		return nil
	})
	s.metrics.ObserveCartMutation("add", outcome(err))
	if err != nil {
		return domain.Cart{}, err
	}

	logging.FromContext(ctx).Debug("cart_item_added",
		zap.String("customer_id", customerID),
		zap.String("item_id", itemID),
		zap.Int("quantity", quantity),
	)
	return cart, nil
}

// RemoveFromCart takes a single unit of itemID out of the cart.
func (s *CartService) RemoveFromCart(ctx context.Context, customerID, itemID string) (domain.Cart, error) {
	var cart domain.Cart
	err := s.store.Atomically(ctx, func(ctx context.Context, repos port.Repositories) error {
		customer, err := loadCustomer(ctx, repos.Customers, customerID)
		if err != nil {
			return err
		}
		if !customer.Cart.Remove(itemID) {
			return domain.ErrItemNotInCart
		}
		customer.UpdatedAt = s.now()
		if err := repos.Customers.SaveCustomer(ctx, *customer); err != nil {
			return fmt.Errorf("save customer: %w", err)
		}
		cart = customer.Cart
		return nil
	})
	s.metrics.ObserveCartMutation("remove", outcome(err))
	if err != nil {
		return domain.Cart{}, err
	}

	logging.FromContext(ctx).Debug("cart_item_removed",
		zap.String("customer_id", customerID),
		zap.String("item_id", itemID),
	)
	return cart, nil
}

// outcome turns an error into a low-cardinality metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, domain.ErrItemNotInCart):
		return "not_in_cart"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return "in_progress"
	default:
		return "error"
	}
}
