// Package errors defines the typed errors services return and how each code
// is rendered over HTTP.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// CodeInsufficientCredits is returned when a spend exceeds the company balance.
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	// CodeGateway covers payment gateway failures and timeouts.
	CodeGateway Code = "GATEWAY_ERROR"
)

// Metadata describes how a code is presented to API callers.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed lets Error.Details reach the response body.
	DetailsAllowed bool
	// ShowMessage replaces PublicMessage with the error's own message.
	ShowMessage bool
}

var catalog = map[Code]Metadata{
	CodeValidation:          {http.StatusBadRequest, false, "validation failed", true, true},
	CodeUnauthorized:        {http.StatusUnauthorized, false, "authentication required", false, true},
	CodeForbidden:           {http.StatusForbidden, false, "access denied", false, true},
	CodeNotFound:            {http.StatusNotFound, false, "resource not found", false, true},
	CodeConflict:            {http.StatusConflict, false, "conflict detected", false, true},
	CodeStateConflict:       {http.StatusBadRequest, false, "state transition disallowed", true, true},
	CodeIdempotency:         {http.StatusConflict, false, "idempotency key reused", true, true},
	CodeInsufficientCredits: {http.StatusBadRequest, false, "insufficient credits", true, true},
	CodeGateway:             {http.StatusBadGateway, true, "payment gateway unavailable", true, true},
	CodeInternal:            {http.StatusInternalServerError, true, "internal server error", false, false},
	CodeDependency:          {http.StatusServiceUnavailable, true, "dependency unavailable", true, false},
}

// MetadataFor returns the presentation rules for code. Unknown codes are
// treated as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error is a coded error with an optional cause and response details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
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
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// PublicMessage is the text callers see for this error.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	if meta.ShowMessage && e.Message() != "" {
		return e.message
	}
	return meta.PublicMessage
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries a typed error with the given code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether a caller may retry the operation that produced err.
// Untyped errors are treated as internal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}
