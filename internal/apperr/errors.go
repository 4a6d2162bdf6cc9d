// Package apperr holds the error taxonomy shared by the stock, reservation
// and order layers. Transport code maps a Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindStockUnavailable Kind = "stock_unavailable"
	KindPriceMismatch    Kind = "price_mismatch"
	KindConflict         Kind = "conflict"
	KindInternal         Kind = "internal"
)

// Error is a classified failure. Code is a stable machine readable string,
// Details carries structured context such as expected and received values.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns e after setting key in its details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, code, msg string) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, msg string) *Error { return newError(KindValidation, code, msg) }

func NotFound(code, msg string) *Error { return newError(KindNotFound, code, msg) }

func Forbidden(code, msg string) *Error { return newError(KindForbidden, code, msg) }

func StockUnavailable(msg string) *Error {
	return newError(KindStockUnavailable, string(KindStockUnavailable), msg)
}

func PriceMismatch(msg string) *Error {
	return newError(KindPriceMismatch, string(KindPriceMismatch), msg)
}

func Conflict(code, msg string) *Error { return newError(KindConflict, code, msg) }

// Internal wraps an unexpected failure, usually from storage.
func Internal(msg string, err error) *Error {
	e := newError(KindInternal, "internal_error", msg)
	e.Err = err
	return e
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
