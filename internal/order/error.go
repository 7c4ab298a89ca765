package order

import "errors"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrEmptyOrder       = errors.New("order has no items")
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrConflictingState = errors.New("order already resolved to a different terminal state")
	ErrInvalidAction    = errors.New("invalid override action")
)
