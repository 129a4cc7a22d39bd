// Package apperr defines the failure kinds every service operation reports.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers. Each kind maps to one client-visible failure.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindAccountInactive
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidTransition
	KindValidationFailed
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAccountInactive:
		return "account_inactive"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindValidationFailed:
		return "validation_failed"
	default:
		return "internal"
	}
}

// Error is a classified failure. Details carries data a client needs to
// correct the request (e.g. the permitted targets of a transition).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInternal          = &Error{Kind: KindInternal}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrAccountInactive   = &Error{Kind: KindAccountInactive}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidationFailed  = &Error{Kind: KindValidationFailed}
)

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func AccountInactive() *Error {
	return &Error{Kind: KindAccountInactive, Message: "account is deactivated"}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// NotFound reports an absent entity of the named kind.
func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: entity + " not found",
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// InvalidTransition echoes the rejected pair and what current permits.
func InvalidTransition(from, to string, allowed []string) *Error {
	if allowed == nil {
		allowed = []string{}
	}
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("invalid transition %s -> %s, allowed: [%s]", from, to, strings.Join(allowed, ", ")),
		Details: map[string]any{"from": from, "to": to, "allowed": allowed},
	}
}

func ValidationFailed(msg string, details map[string]any) *Error {
	return &Error{Kind: KindValidationFailed, Message: msg, Details: details}
}

// Internal wraps an unexpected failure; its cause is logged, never shown.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}
