package services

import (
	"errors"
	"fmt"
)

// Kind classifies service failures so handlers can map them to responses.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error is the error type returned across the service boundary.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	// ResourceID identifies the conflicting or missing row when known.
	ResourceID string
	Err        error
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

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func conflictError(msg, resourceID string) *Error {
	return &Error{Kind: KindConflict, Message: msg, ResourceID: resourceID}
}

func externalError(msg string, err error, retryable bool) *Error {
	return &Error{Kind: KindExternal, Message: msg, Err: err, Retryable: retryable}
}

// KindOf returns the Kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Sentinel errors matched with errors.Is by callers and tests.
var (
	ErrAlreadyCompleted  = conflictError("mission already completed", "")
	ErrMissionNotFound   = notFoundError("mission not found")
	ErrProfileNotFound   = notFoundError("profile not found")
	ErrPaymentNotFound   = notFoundError("payment transaction not found")
	ErrPasswordMismatch  = validationError("passwords do not match")
	ErrWeakPassword      = validationError("please use a stronger password")
	ErrInvalidTransition = validationError("invalid onboarding transition")
	ErrInsufficientFunds = validationError("insufficient balance")
)

// ErrUnauthenticated wraps session verification failures.
var ErrUnauthenticated = errors.New("unauthenticated")

// Is lets errors.Is match a sentinel against a copy carrying extra context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}
