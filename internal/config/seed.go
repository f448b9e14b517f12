package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Seed is the initial catalog and customer set loaded at startup.
type Seed struct {
	Items     []SeedItem     `yaml:"items"`
	Customers []SeedCustomer `yaml:"customers"`
}

type SeedItem struct {
	ID             string `yaml:"id"`
	Title          string `yaml:"title"`
	Price          string `yaml:"price"`
	AvailableCount int    `yaml:"available_count"`
}

type SeedCustomer struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Address string `yaml:"address"`
}

func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return s, nil
}

func (s Seed) ShopItems() ([]domain.ShopItem, error) {
	items := make([]domain.ShopItem, 0, len(s.Items))
	for _, it := range s.Items {
		if it.ID == "" {
			return nil, fmt.Errorf("seed item %q: missing id", it.Title)
		}
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return nil, fmt.Errorf("seed item %s: price: %w", it.ID, err)
		}
		if price.IsNegative() || it.AvailableCount < 0 {
			return nil, fmt.Errorf("seed item %s: price and available_count must not be negative", it.ID)
		}
		items = append(items, domain.ShopItem{
			ID:             it.ID,
			Title:          it.Title,
			Price:          price,
			AvailableCount: it.AvailableCount,
		})
	}
	return items, nil
}

func (s Seed) CustomerRecords() []domain.Customer {
	customers := make([]domain.Customer, 0, len(s.Customers))
	for _, c := range s.Customers {
		customers = append(customers, domain.Customer{
			ID:      c.ID,
			Name:    c.Name,
			Email:   c.Email,
			Phone:   c.Phone,
			Address: c.Address,
		})
	}
	return customers
}
