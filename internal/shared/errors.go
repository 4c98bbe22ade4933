package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrFranchiseRequired indicates a call without franchise scope.
	ErrFranchiseRequired = &DomainError{Kind: KindInvalidInput, Message: "franchise id required"}
)

// ErrorKind classifies domain failures so callers can react without parsing messages.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "INVALID_INPUT"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	KindOverReturn        ErrorKind = "OVER_RETURN"
	KindWindowExpired     ErrorKind = "WINDOW_EXPIRED"
	KindMissingAssignment ErrorKind = "MISSING_ASSIGNMENT"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindConflict          ErrorKind = "CONFLICT"
)

// ShortItem describes a SKU that could not be fulfilled.
type ShortItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	Shortfall int64  `json:"shortfall"`
}

// DomainError is a recoverable, typed business failure. State is never
// mutated when one is returned.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Items   []ShortItem
}

func (e *DomainError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d items)", e.Kind, e.Message, len(e.Items))
}

// Is matches another DomainError with the same kind, so sentinel-style
// comparisons like errors.Is(err, shared.ErrInvalidInput) work.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && other.Message == ""
}

// Kind sentinels for errors.Is checks.
var (
	ErrInvalidInput      = &DomainError{Kind: KindInvalidInput}
	ErrInsufficientStock = &DomainError{Kind: KindInsufficientStock}
	ErrInvalidTransition = &DomainError{Kind: KindInvalidTransition}
	ErrOverReturn        = &DomainError{Kind: KindOverReturn}
	ErrWindowExpired     = &DomainError{Kind: KindWindowExpired}
	ErrMissingAssignment = &DomainError{Kind: KindMissingAssignment}
	ErrConflict          = &DomainError{Kind: KindConflict}
)

// NewError builds a DomainError with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput is shorthand for NewError(KindInvalidInput, ...).
func InvalidInput(format string, args ...any) *DomainError {
	return NewError(KindInvalidInput, format, args...)
}

// InsufficientStock reports the SKUs that blocked a movement.
func InsufficientStock(items []ShortItem) *DomainError {
	return &DomainError{Kind: KindInsufficientStock, Message: "insufficient stock", Items: items}
}

// KindOf extracts the kind from err, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return ""
}
