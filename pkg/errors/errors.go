// Package errors carries typed, code-tagged errors from services to the HTTP
// envelope. Each Code maps to one status and public message.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeEmptyCart             Code = "EMPTY_CART"
	CodeInvalidShippingMethod Code = "INVALID_SHIPPING_METHOD"
	CodeInvalidAddress        Code = "INVALID_ADDRESS"
	CodeSignatureInvalid      Code = "SIGNATURE_INVALID"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeForbidden             Code = "FORBIDDEN"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeDuplicateOrderNumber  Code = "DUPLICATE_ORDER_NUMBER"
	CodeIllegalTransition     Code = "ILLEGAL_TRANSITION"
	CodeIdempotency           Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit             Code = "RATE_LIMIT_EXCEEDED"
	CodePersistence           Code = "PERSISTENCE_FAILURE"
	CodeInternal              Code = "INTERNAL_ERROR"
	CodeDependency            Code = "DEPENDENCY_ERROR"
)

// Metadata drives how an error code is rendered over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// PassMessage exposes the typed message to clients instead of PublicMessage.
	PassMessage bool
}

const (
	retryable = 1 << iota
	withDetails
	passMessage
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
		PassMessage:    flags&passMessage != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:            meta(http.StatusBadRequest, "validation failed", withDetails|passMessage),
	CodeEmptyCart:             meta(http.StatusBadRequest, "cart is empty", passMessage),
	CodeInvalidShippingMethod: meta(http.StatusBadRequest, "invalid shipping method", passMessage),
	CodeInvalidAddress:        meta(http.StatusBadRequest, "invalid address", passMessage),
	CodeSignatureInvalid:      meta(http.StatusBadRequest, "invalid signature", 0),
	CodeUnauthorized:          meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:             meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:              meta(http.StatusNotFound, "resource not found", passMessage),
	CodeConflict:              meta(http.StatusConflict, "conflict detected", passMessage),
	CodeInsufficientStock:     meta(http.StatusConflict, "insufficient stock", withDetails|passMessage),
	CodeDuplicateOrderNumber:  meta(http.StatusConflict, "order number collision", retryable),
	CodeIllegalTransition:     meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails|passMessage),
	CodeIdempotency:           meta(http.StatusUnprocessableEntity, "idempotency key reused", withDetails),
	CodeRateLimit:             meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodePersistence:           meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeInternal:              meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:            meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap tags err with code. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := string(e.code) + ": " + e.message
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the first *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code()
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
