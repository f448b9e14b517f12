package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const (
	checkoutLockKeyPrefix        = "checkout:lock:"
	checkoutIdempotencyKeyPrefix = "checkout:idempotency:"
)

type CheckoutOptions struct {
	LockTTL        time.Duration
	IdempotencyTTL time.Duration
	// Timeout bounds the unit of work. It is kept below LockTTL.
	Timeout time.Duration
}

// CheckoutService turns a customer's cart into an order. The whole
// conversion runs as one unit of work on the store, so stock deduction,
// order creation and cart clearing commit together or not at all.
type CheckoutService struct {
	store   port.Store
	cache   port.CacheRepository
	events  port.EventPublisher
	metrics *metrics.Metrics
	opts    CheckoutOptions
	now     func() time.Time
	newID   func() string
}

func NewCheckoutService(store port.Store, cache port.CacheRepository, events port.EventPublisher, m *metrics.Metrics, opts CheckoutOptions) *CheckoutService {
	if events == nil {
		events = port.NopPublisher{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	// The unit of work must end before the checkout lock can expire, or a
	// late release would drop a lock taken by the next request.
	if opts.Timeout <= 0 || opts.Timeout >= opts.LockTTL {
		opts.Timeout = opts.LockTTL / 2
	}
	return &CheckoutService{
		store:   store,
		cache:   cache,
		events:  events,
		metrics: m,
		opts:    opts,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Checkout converts the cart into an order. idempotencyKey is optional; a
// key that was already used for a successful checkout yields
// ErrDuplicateRequest.
func (s *CheckoutService) Checkout(ctx context.Context, customerID, idempotencyKey string) (*domain.Order, error) {
	ctx, span := otel.Tracer("storefront/checkout").Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	start := time.Now()
	order, err := s.checkoutOnce(ctx, customerID, idempotencyKey)
	s.metrics.ObserveCheckout(outcome(err), time.Since(start))

	logger := logging.FromContext(ctx).With(zap.String("customer_id", customerID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Info("checkout_rejected", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	logger.Info("checkout_completed",
		zap.String("order_id", order.ID),
		zap.String("total_bill", order.TotalBill.String()),
		zap.Int("lines", len(order.Items)),
	)

	if err := s.events.PublishOrderPlaced(ctx, *order); err != nil {
		s.metrics.ObserveOrderEvent("failed")
		logger.Error("order_event_publish_failed", zap.String("order_id", order.ID), zap.Error(err))
	} else {
		s.metrics.ObserveOrderEvent("published")
	}
	return order, nil
}

func (s *CheckoutService) checkoutOnce(ctx context.Context, customerID, idempotencyKey string) (*domain.Order, error) {
	if s.cache != nil {
		lockKey := checkoutLockKeyPrefix + customerID
		ok, err := s.cache.Reserve(ctx, lockKey, s.opts.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire checkout lock: %w", err)
		}
		if !ok {
			return nil, domain.ErrCheckoutInProgress
		}
		defer s.release(ctx, lockKey)

		if idempotencyKey != "" {
			idemKey := checkoutIdempotencyKeyPrefix + customerID + ":" + idempotencyKey
			ok, err := s.cache.Reserve(ctx, idemKey, s.opts.IdempotencyTTL)
			if err != nil {
				return nil, fmt.Errorf("idempotency check failed: %w", err)
			}
			if !ok {
				return nil, domain.ErrDuplicateRequest
			}
			order, err := s.run(ctx, customerID)
			if err != nil {
				// A failed attempt must not burn the key.
				s.release(ctx, idemKey)
				return nil, err
			}
			return order, nil
		}
	}
	return s.run(ctx, customerID)
}

func (s *CheckoutService) release(ctx context.Context, key string) {
	if err := s.cache.Release(context.WithoutCancel(ctx), key); err != nil {
		logging.FromContext(ctx).Warn("cache_release_failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *CheckoutService) run(ctx context.Context, customerID string) (*domain.Order, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var order *domain.Order
	err := s.store.Atomically(ctx, func(ctx context.Context, repos port.Repositories) error {
		var err error
		order, err = s.convert(ctx, repos, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// convert performs the checkout steps against repositories bound to the
// current unit of work.
func (s *CheckoutService) convert(ctx context.Context, repos port.Repositories, customerID string) (*domain.Order, error) {
	customer, err := loadCustomer(ctx, repos.Customers, customerID)
	if err != nil {
		return nil, err
	}
	if customer.Cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	lines := customer.Cart.Lines()
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}

	// Prices are read once here and the total is computed from this snapshot.
	snapshot, err := resolveItems(ctx, repos.Catalog, ids)
	if err != nil {
		return nil, err
	}
	orderItems := make([]domain.OrderLine, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		item := snapshot[l.ItemID]
		if item == nil {
			return nil, &domain.InsufficientStockError{ItemID: l.ItemID}
		}
		orderItems = append(orderItems, domain.OrderLine{ItemID: l.ItemID, Quantity: l.Quantity})
		total = total.Add(item.LineTotal(l.Quantity))
	}

	visit := sortedByItem(lines)

	// Validation pass: nothing is deducted unless every line can be filled.
	for _, l := range visit {
		item, err := repos.Catalog.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, fmt.Errorf("get item %s: %w", l.ItemID, err)
		}
		if item == nil || !item.CanFulfil(l.Quantity) {
			return nil, &domain.InsufficientStockError{ItemID: l.ItemID, Title: snapshot[l.ItemID].Title}
		}
	}

	// Deduction pass. The conditional write still refuses to go below zero.
	for _, l := range visit {
		if err := repos.Catalog.DeductStock(ctx, l.ItemID, l.Quantity); err != nil {
			if errors.Is(err, port.ErrStockConflict) {
				return nil, &domain.InsufficientStockError{ItemID: l.ItemID, Title: snapshot[l.ItemID].Title}
			}
			return nil, fmt.Errorf("deduct stock %s: %w", l.ItemID, err)
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:         s.newID(),
		CustomerID: customer.ID,
		Items:      orderItems,
		TotalBill:  total,
		CreatedAt:  now,
	}
	if err := repos.Orders.CreateOrder(ctx, *order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	customer.Cart.Clear()
	customer.UpdatedAt = now
	if err := repos.Customers.SaveCustomer(ctx, *customer); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return order, nil
}
