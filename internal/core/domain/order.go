package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ItemID   string `json:"itemId" bson:"itemId"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// Order is created once by a successful checkout and never modified.
type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Items      []OrderLine     `json:"items"`
	TotalBill  decimal.Decimal `json:"totalBill"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ResolvedLine is a cart or order line joined with the current catalog
// entry. Item is nil when the item no longer exists.
type ResolvedLine struct {
	ItemID   string    `json:"itemId"`
	Quantity int       `json:"quantity"`
	Item     *ShopItem `json:"item"`
}

// OrderDetails is an order whose lines carry resolved item data.
type OrderDetails struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Items      []ResolvedLine  `json:"items"`
	TotalBill  decimal.Decimal `json:"totalBill"`
	CreatedAt  time.Time       `json:"createdAt"`
}
