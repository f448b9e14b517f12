package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CustomerService struct {
	store port.Store
	now   func() time.Time
}

func NewCustomerService(store port.Store) *CustomerService {
	return &CustomerService{store: store, now: time.Now}
}

func (s *CustomerService) GetProfile(ctx context.Context, customerID string) (*domain.Customer, error) {
	return loadCustomer(ctx, s.store.Repositories().Customers, customerID)
}

// UpdateProfile applies the set fields of p. The cart is left untouched.
func (s *CustomerService) UpdateProfile(ctx context.Context, customerID string, p domain.Profile) (*domain.Customer, error) {
	var updated *domain.Customer
	err := s.store.Atomically(ctx, func(ctx context.Context, repos port.Repositories) error {
		customer, err := loadCustomer(ctx, repos.Customers, customerID)
		if err != nil {
			return err
		}
		p.Apply(customer)
		customer.UpdatedAt = s.now()
		if err := repos.Customers.SaveCustomer(ctx, *customer); err != nil {
			return fmt.Errorf("save customer: %w", err)
		}
		updated = customer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
