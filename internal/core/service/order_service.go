package service

import (
	"context"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type OrderService struct {
	store port.Store
}

func NewOrderService(store port.Store) *OrderService {
	return &OrderService{store: store}
}

// GetCustomerOrders lists the customer's orders with item references
// resolved against the current catalog.
func (s *OrderService) GetCustomerOrders(ctx context.Context, customerID string) ([]domain.OrderDetails, error) {
	repos := s.store.Repositories()
	if _, err := loadCustomer(ctx, repos.Customers, customerID); err != nil {
		return nil, err
	}

	orders, err := repos.Orders.ListOrdersByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var ids []string
	for _, o := range orders {
		for _, l := range o.Items {
			ids = append(ids, l.ItemID)
		}
	}
	items, err := resolveItems(ctx, repos.Catalog, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.OrderDetails, 0, len(orders))
	for _, o := range orders {
		lines := make([]domain.ResolvedLine, 0, len(o.Items))
		for _, l := range o.Items {
			lines = append(lines, domain.ResolvedLine{ItemID: l.ItemID, Quantity: l.Quantity, Item: items[l.ItemID]})
		}
		out = append(out, domain.OrderDetails{
			ID:         o.ID,
			CustomerID: o.CustomerID,
			Items:      lines,
			TotalBill:  o.TotalBill,
			CreatedAt:  o.CreatedAt,
		})
	}
	return out, nil
}
