package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ShopItem struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	AvailableCount int             `json:"availableCount"`
	Version        int             `json:"-"` // optimistic locking
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// CanFulfil reports whether quantity units can be taken from stock.
func (i ShopItem) CanFulfil(quantity int) bool {
	return quantity > 0 && i.AvailableCount >= quantity
}

// LineTotal is price times quantity.
func (i ShopItem) LineTotal(quantity int) decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(quantity)))
}
