package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("customer not found")
	ErrInvalidReference   = errors.New("item not found")
	ErrItemNotInCart      = errors.New("item not found in cart")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// InsufficientStockError names the cart line that cannot be fulfilled.
type InsufficientStockError struct {
	ItemID string
	Title  string
}

func (e *InsufficientStockError) Error() string {
	name := e.Title
	if name == "" {
		name = e.ItemID
	}
	return fmt.Sprintf("item %s not available in sufficient quantity", name)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
