package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is a root error kind. Every error returned by the core wraps exactly one kind,
// so callers classify failures with errors.Is(err, domain.ErrInsufficientFunds).
type Error struct {
	code string
	desc string
}

func (e *Error) Error() string {
	return e.desc
}

// Code returns a stable machine-readable identifier of the kind.
func (e *Error) Code() string {
	return e.code
}

// New wraps the kind with a description.
func (e *Error) New(description string) error {
	return errors.Wrap(e, description)
}

// Newf is New with formatting.
func (e *Error) Newf(format string, args ...interface{}) error {
	return e.New(fmt.Sprintf(format, args...))
}

var (
	// ErrValidation malformed input; nothing was mutated.
	ErrValidation = &Error{code: "validation_error", desc: "validation error"}

	// ErrInsufficientFunds wallet balance too low for a debit.
	ErrInsufficientFunds = &Error{code: "insufficient_funds", desc: "insufficient funds"}

	// ErrUserNotFound counterparty cannot be resolved.
	ErrUserNotFound = &Error{code: "user_not_found", desc: "user not found"}

	// ErrEvidenceValidation dispute evidence violates count, size or type limits.
	ErrEvidenceValidation = &Error{code: "evidence_validation_error", desc: "evidence validation error"}

	// ErrInvalidStateTransition operation is not permitted in the current status.
	ErrInvalidStateTransition = &Error{code: "invalid_state_transition", desc: "invalid state transition"}

	// ErrUnauthorizedActor actor is not entitled to perform the operation.
	ErrUnauthorizedActor = &Error{code: "unauthorized_actor", desc: "unauthorized actor"}

	// ErrNotFound requested record does not exist.
	ErrNotFound = &Error{code: "not_found", desc: "not found"}
)

var kinds = []*Error{
	ErrValidation,
	ErrInsufficientFunds,
	ErrUserNotFound,
	ErrEvidenceValidation,
	ErrInvalidStateTransition,
	ErrUnauthorizedActor,
	ErrNotFound,
}

// KindOf returns the root kind of err, or nil when err was not produced by the core.
func KindOf(err error) *Error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
