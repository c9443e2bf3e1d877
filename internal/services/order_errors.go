package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided malformed or out-of-range data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order, item, product or promo code could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderIllegalTransition indicates the status machine rejected the requested change.
	ErrOrderIllegalTransition = errors.New("order: illegal status transition")
	// ErrOrderConflict indicates a business rule conflict such as archived products or insufficient stock.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderInvariantViolation indicates the caller used an operation outside its contract.
	ErrOrderInvariantViolation = errors.New("order: invariant violation")
	// ErrOrderUnavailable indicates the storage backend is temporarily unavailable.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
	// ErrOrderForbidden indicates the actor's role may not perform the requested change.
	ErrOrderForbidden = errors.New("order: forbidden")
)

// FieldError reports one malformed request field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrOrderInvalidInput }

func invalidField(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError carries the context of a rejected status change.
type TransitionError struct {
	From   domain.OrderStatus
	To     domain.OrderStatus
	Role   domain.ActorRole
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s as %s: %s", e.From, e.To, e.Role, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrOrderIllegalTransition }

// StockShortageError names the product whose live stock cannot cover an item.
type StockShortageError struct {
	ProductID   string
	ProductName string
	Available   int
	Required    int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, required %d", e.ProductName, e.Available, e.Required)
}

func (e *StockShortageError) Unwrap() error { return ErrOrderConflict }

// ArchivedProductsError lists products archived since the order was placed.
type ArchivedProductsError struct {
	ProductIDs []string
	Names      []string
}

func (e *ArchivedProductsError) Error() string {
	return fmt.Sprintf("order references archived products: %s", strings.Join(e.Names, ", "))
}

func (e *ArchivedProductsError) Unwrap() error { return ErrOrderConflict }

// PromoRejectedError carries the promo validation message.
type PromoRejectedError struct {
	Code   string
	Reason string
}

func (e *PromoRejectedError) Error() string {
	return fmt.Sprintf("promo code %q rejected: %s", e.Code, e.Reason)
}

func (e *PromoRejectedError) Unwrap() error { return ErrOrderConflict }

// DiscountExceedsSubtotalError rejects an admin discount larger than the order subtotal.
type DiscountExceedsSubtotalError struct {
	Discount decimal.Decimal
	Subtotal decimal.Decimal
}

func (e *DiscountExceedsSubtotalError) Error() string {
	return fmt.Sprintf("admin discount %s exceeds subtotal %s", e.Discount.StringFixed(2), e.Subtotal.StringFixed(2))
}

func (e *DiscountExceedsSubtotalError) Unwrap() error { return ErrOrderInvalidInput }

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	// Already classified by the service layer.
	for _, sentinel := range []error{ErrOrderInvalidInput, ErrOrderNotFound, ErrOrderIllegalTransition, ErrOrderConflict, ErrOrderInvariantViolation, ErrOrderUnavailable, ErrOrderForbidden} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	// Both errors stay in the chain so stores can still see driver errors and retry.
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
		}
	}
	return err
}
