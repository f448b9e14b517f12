package storage

import (
	"context"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Seed inserts the given items and customers unless a record with the same
// ID already exists, so restarting never resets stock or carts.
func Seed(ctx context.Context, store port.Store, items []domain.ShopItem, customers []domain.Customer) error {
	return store.Atomically(ctx, func(ctx context.Context, repos port.Repositories) error {
		for _, item := range items {
			existing, err := repos.Catalog.GetItem(ctx, item.ID)
			if err != nil {
				return fmt.Errorf("seed item %s: %w", item.ID, err)
			}
			if existing != nil {
				continue
			}
			if err := repos.Catalog.SaveItem(ctx, item); err != nil {
				return fmt.Errorf("seed item %s: %w", item.ID, err)
			}
		}
		for _, c := range customers {
			existing, err := repos.Customers.GetCustomer(ctx, c.ID)
			if err != nil {
				return fmt.Errorf("seed customer %s: %w", c.ID, err)
			}
			if existing != nil {
				continue
			}
			if err := repos.Customers.SaveCustomer(ctx, c); err != nil {
				return fmt.Errorf("seed customer %s: %w", c.ID, err)
			}
		}
		return nil
	})
}
