package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeInvalidQuantity       Code = "INVALID_QUANTITY"
	CodeInvalidLocation       Code = "INVALID_LOCATION"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeMissingStockReference Code = "MISSING_STOCK_REFERENCE"
	CodeConflict              Code = "CONFLICT"
	CodeStateConflict         Code = "STATE_CONFLICT"
	CodeIdempotency           Code = "IDEMPOTENCY_KEY_REUSED"
	CodeBusy                  Code = "BUSY"
	CodeInternal              Code = "INTERNAL_ERROR"
	CodeDependency            Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP. ExposeMessage lets the error's
// own message replace PublicMessage; DetailsAllowed does the same for details.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

const (
	retryable = 1 << iota
	exposeMessage
	detailsAllowed
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		ExposeMessage:  flags&exposeMessage != 0,
		DetailsAllowed: flags&detailsAllowed != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:            meta(http.StatusBadRequest, "validation failed", exposeMessage|detailsAllowed),
	CodeInvalidQuantity:       meta(http.StatusBadRequest, "quantity must be a positive number of kilograms", exposeMessage|detailsAllowed),
	CodeInvalidLocation:       meta(http.StatusBadRequest, "location is inconsistent with the site hierarchy", exposeMessage|detailsAllowed),
	CodeNotFound:              meta(http.StatusNotFound, "resource not found", exposeMessage),
	CodeInsufficientStock:     meta(http.StatusUnprocessableEntity, "insufficient stock", exposeMessage|detailsAllowed),
	CodeMissingStockReference: meta(http.StatusBadRequest, "a stock reference is required to deduct from stock", exposeMessage),
	CodeConflict:              meta(http.StatusConflict, "conflict detected", exposeMessage),
	CodeStateConflict:         meta(http.StatusUnprocessableEntity, "state transition disallowed", exposeMessage|detailsAllowed),
	CodeIdempotency:           meta(http.StatusConflict, "idempotency key reused", exposeMessage|detailsAllowed),
	CodeBusy:                  meta(http.StatusServiceUnavailable, "stock item is busy, retry shortly", retryable),
	CodeInternal:              meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:            meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|detailsAllowed),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried from services to the HTTP layer.
type Error struct {
	code       Code
	message    string
	details    any
	retryAfter time.Duration
	cause      error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err as the cause. A nil err behaves like New.
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

// RetryAfter is a hint for the Retry-After header; zero means none was set.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if e != nil && d > 0 {
		e.retryAfter = d
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost typed error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	for typed := As(err); typed != nil; typed = As(typed.cause) {
		if typed.code == code {
			return true
		}
	}
	return false
}
