package orders

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindForbidden          Kind = "forbidden"
	KindInvalidRequest     Kind = "invalid_request"
	KindProductUnavailable Kind = "product_unavailable"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindNotFound           Kind = "not_found"
	KindStoreFailure       Kind = "store_failure"
)

// Error is returned by every Service operation. Callers branch on Kind
// (or errors.Is against the Err* sentinels), never on Message.
type Error struct {
	Kind      Kind
	Message   string
	ProductID int64
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrProductUnavailable = &Error{Kind: KindProductUnavailable}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStoreFailure       = &Error{Kind: KindStoreFailure}
)

// KindOf returns the kind of err, or KindStoreFailure for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreFailure
}

func forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

func invalid(msg string) error { return &Error{Kind: KindInvalidRequest, Message: msg} }

func invalidf(format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func unavailable(productID int64) error {
	return &Error{
		Kind:      KindProductUnavailable,
		Message:   fmt.Sprintf("product %d does not exist or is inactive", productID),
		ProductID: productID,
	}
}

func insufficient(productID int64, requested, available int) error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("product %d: requested %d, available %d", productID, requested, available),
		ProductID: productID,
	}
}

func notFound(orderID int64) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("order %d not found", orderID)}
}

var storeFailure = &Error{Kind: KindStoreFailure, Message: "storage failure"}
