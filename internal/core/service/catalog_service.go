package service

import (
	"context"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// CatalogService is the read-only public view of the shop items.
type CatalogService struct {
	store port.Store
}

func NewCatalogService(store port.Store) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) ListItems(ctx context.Context) ([]domain.ShopItem, error) {
	items, err := s.store.Repositories().Catalog.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *CatalogService) GetItem(ctx context.Context, itemID string) (*domain.ShopItem, error) {
	item, err := s.store.Repositories().Catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	if item == nil {
		return nil, domain.ErrInvalidReference
	}
	return item, nil
}
