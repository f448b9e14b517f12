package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// resolveItems loads each distinct item once. Missing items map to nil.
func resolveItems(ctx context.Context, catalog port.CatalogRepository, itemIDs []string) (map[string]*domain.ShopItem, error) {
	items := make(map[string]*domain.ShopItem, len(itemIDs))
	for _, id := range itemIDs {
		if _, seen := items[id]; seen {
			continue
		}
		item, err := catalog.GetItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get item %s: %w", id, err)
		}
		items[id] = item
	}
	return items, nil
}

func resolveLines(lines []domain.CartLine, items map[string]*domain.ShopItem) []domain.ResolvedLine {
	out := make([]domain.ResolvedLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.ResolvedLine{ItemID: l.ItemID, Quantity: l.Quantity, Item: items[l.ItemID]})
	}
	return out
}

// sortedByItem returns a copy of lines ordered by item ID. Units of work
// visit items in this order so that row locks are always taken in the same
// sequence.
func sortedByItem(lines []domain.CartLine) []domain.CartLine {
	out := append([]domain.CartLine(nil), lines...)
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func loadCustomer(ctx context.Context, customers port.CustomerRepository, customerID string) (*domain.Customer, error) {
	customer, err := customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if customer == nil {
		return nil, domain.ErrNotFound
	}
	return customer, nil
}
