// Package errors is the typed error vocabulary shared by services and the
// HTTP layer. Each Code maps to one HTTP status and public message.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	CodeInsufficientCredit Code = "INSUFFICIENT_CREDIT"
	CodeDuplicateQuote     Code = "DUPLICATE_QUOTE"
	CodeRFQClosed          Code = "RFQ_CLOSED"
	CodeAlreadyProcessed   Code = "ALREADY_PROCESSED"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeAmountMismatch     Code = "AMOUNT_MISMATCH"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type metaFlag uint8

const (
	retryable metaFlag = 1 << iota
	withDetails
)

func meta(status int, public string, flags metaFlag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized: meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:    meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:     meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:     meta(http.StatusConflict, "conflict detected", 0),
	CodeIdempotency:  meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeInternal:     meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:   meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),

	CodeInsufficientCredit: meta(http.StatusPaymentRequired, "insufficient credit", withDetails),
	CodeDuplicateQuote:     meta(http.StatusConflict, "quote already submitted for this rfq", 0),
	CodeRFQClosed:          meta(http.StatusConflict, "rfq is not accepting quotes", 0),
	CodeAlreadyProcessed:   meta(http.StatusConflict, "already processed", withDetails),
	CodeInvalidTransition:  meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeAmountMismatch:     meta(http.StatusUnprocessableEntity, "payment amount does not match order total", withDetails),
}

// MetadataFor treats unknown codes as internal.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
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

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap with a nil err is New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// InsufficientCredit reports the amount a hold needed and the balance it found.
func InsufficientCredit(required, current int64) *Error {
	return New(CodeInsufficientCredit, "credit balance below required hold").
		WithDetails(map[string]int64{"required": required, "current": current})
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

// WithDetails returns a copy carrying details; e itself is not modified, so
// package-level error values stay safe to share.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.details = details
	return &cp
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

// As returns the outermost typed error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any typed error in the chain carries code, not
// only the outermost one.
func IsCode(err error, code Code) bool {
	for err != nil {
		typed := As(err)
		if typed == nil {
			return false
		}
		if typed.code == code {
			return true
		}
		err = typed.cause
	}
	return false
}

// Retryable reports whether the outermost code is marked retryable. Untyped
// errors are treated as internal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}
