package models

import (
	"errors"
	"fmt"
)

// Domain errors shared by the store, service and api layers.
// Callers match with errors.Is; wrapping adds context.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrProductNotFound    = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound      = fmt.Errorf("order %w", ErrNotFound)
	ErrProductInactive    = errors.New("product is not active")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrDiscountInvalid    = errors.New("discount code is invalid or expired")
	ErrDiscountExhausted  = errors.New("discount code has no remaining uses")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutInProgress = errors.New("checkout with this idempotency key is in progress")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)
