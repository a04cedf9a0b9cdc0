package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMixedSellerCart   = errors.New("cart contains products from more than one seller")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("order not found")
	ErrTransactionFailed = errors.New("transaction failed")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// StockError is returned both by the pre-check and by the locked re-check
// inside the creation transaction.
type StockError struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type MixedSellerError struct {
	SellerIDs []string
}

func (e *MixedSellerError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMixedSellerCart, strings.Join(e.SellerIDs, ", "))
}

func (e *MixedSellerError) Unwrap() error { return ErrMixedSellerCart }

// TransitionError wraps either ErrIllegalTransition or ErrForbidden.
type TransitionError struct {
	From Status
	To   Status
	Role Role
	err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s requested by %s", e.err, e.From, e.To, e.Role)
}

func (e *TransitionError) Unwrap() error { return e.err }

func txFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransactionFailed, op, err)
}
