package service

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a domain error for the caller
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a domain error with a kind and a human-readable message
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrProductNotFound = newError(KindNotFound, "product not found")
	ErrCartNotFound    = newError(KindNotFound, "cart not found")
	ErrItemNotInCart   = newError(KindNotFound, "product not in cart")
	ErrOrderNotFound   = newError(KindNotFound, "order not found")

	ErrProductUnavailable     = newError(KindConflict, "product is not available")
	ErrProductsUnavailable    = newError(KindConflict, "products unavailable")
	ErrInsufficientStock      = newError(KindConflict, "insufficient stock")
	ErrEmptyCart              = newError(KindConflict, "cart is empty")
	ErrInvalidTransition      = newError(KindConflict, "invalid status transition")
	ErrOnlyPendingCancellable = newError(KindConflict, "only pending orders can be cancelled")
	ErrCheckoutInProgress     = newError(KindConflict, "checkout with this idempotency key is in progress")

	ErrInvalidQuantity           = newError(KindValidation, "quantity must be at least 1")
	ErrRejectionReasonRequired   = newError(KindValidation, "rejection reason is required")
	ErrShippingAddressIncomplete = newError(KindValidation, "shipping address is incomplete")
	ErrNotesTooLong              = newError(KindValidation, "notes must be at most 500 characters")
)

// KindOf returns the kind of the first domain error in err's chain
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// UnavailableProductsError names every cart line whose product is missing or inactive
type UnavailableProductsError struct {
	Products []string
}

func (e *UnavailableProductsError) Error() string {
	return fmt.Sprintf("Products unavailable: %s", strings.Join(e.Products, ", "))
}

func (e *UnavailableProductsError) Unwrap() error {
	return ErrProductsUnavailable
}

// StockShortage is one cart line that asks for more than is on hand
type StockShortage struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockShortageError lists every short-stocked line of a checkout
type StockShortageError struct {
	Shortages []StockShortage
}

func (e *StockShortageError) Error() string {
	details := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		details[i] = fmt.Sprintf("%s (requested: %d, available: %d)", s.Name, s.Requested, s.Available)
	}
	return fmt.Sprintf("Insufficient stock: %s", strings.Join(details, ", "))
}

func (e *StockShortageError) Unwrap() error {
	return ErrInsufficientStock
}
