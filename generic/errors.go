/*
errors.go - Centralized error taxonomy

PURPOSE:
  Every rule violation in the leave core is reported as one of six kinds.
  Callers branch on the kind (errors.Is against a sentinel, or KindOf),
  never on message text.

ERROR KINDS:
  not_found            Referenced record missing or archived
  conflict             State-machine violation
  invalid_argument     Field validation failed
  insufficient_balance Requested days exceed remaining
  overlapping_request  Employee already booked an intersecting window
  persistence_failure  A write touched zero rows after a successful read

USAGE:
  if errors.Is(err, generic.ErrConflict) { ... }
  switch generic.KindOf(err) { case generic.KindNotFound: ... }

SEE ALSO:
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverlappingRequest  = errors.New("overlapping request")

	// ErrPersistenceFailure signals a race or corrupted state, not a business outcome.
	ErrPersistenceFailure = errors.New("persistence failure")
)

type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInvalidArgument     Kind = "invalid_argument"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindOverlappingRequest  Kind = "overlapping_request"
	KindPersistenceFailure  Kind = "persistence_failure"
)

var sentinels = map[Kind]error{
	KindNotFound:            ErrNotFound,
	KindConflict:            ErrConflict,
	KindInvalidArgument:     ErrInvalidArgument,
	KindInsufficientBalance: ErrInsufficientBalance,
	KindOverlappingRequest:  ErrOverlappingRequest,
	KindPersistenceFailure:  ErrPersistenceFailure,
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Error is the general carrier: a kind, the entity or field involved and a
// human-readable reason.
type Error struct {
	Kind   Kind
	Entity string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Entity != "" {
		msg += ": " + e.Entity
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and any wrapped cause.
func (e *Error) Unwrap() []error {
	errs := []error{sentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func NotFound(entity string, id any) error {
	return &Error{Kind: KindNotFound, Entity: entity, Reason: fmt.Sprintf("id %v does not exist", id)}
}

func Conflict(entity, reason string) error {
	return &Error{Kind: KindConflict, Entity: entity, Reason: reason}
}

func Invalid(field, reason string) error {
	return &Error{Kind: KindInvalidArgument, Entity: field, Reason: reason}
}

// PersistenceFailure wraps a write that reported no affected rows, or a store error.
func PersistenceFailure(op string, cause error) error {
	return &Error{Kind: KindPersistenceFailure, Entity: op, Reason: "write did not complete", Err: cause}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	BalanceID string
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: available %v, requested %v",
		e.BalanceID, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Shortfall is how many days are missing.
func (e *InsufficientBalanceError) Shortfall() Amount {
	return e.Requested.Sub(e.Available)
}

// OverlappingRequestError names the request that already holds the window.
type OverlappingRequestError struct {
	EmployeeID        string
	ExistingRequestID string
	Existing          Period
	Requested         Period
}

func (e *OverlappingRequestError) Error() string {
	return fmt.Sprintf("employee %s already has request %s for %s which overlaps %s",
		e.EmployeeID, e.ExistingRequestID, e.Existing, e.Requested)
}

func (e *OverlappingRequestError) Unwrap() error { return ErrOverlappingRequest }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf classifies err. Errors from outside the taxonomy are treated as
// persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range []Kind{
		KindNotFound, KindConflict, KindInvalidArgument,
		KindInsufficientBalance, KindOverlappingRequest, KindPersistenceFailure,
	} {
		if errors.Is(err, sentinels[k]) {
			return k
		}
	}
	return KindPersistenceFailure
}

// Reason returns the human-readable part of a taxonomy error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsClientError returns true if the caller can fix the input and retry.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindPersistenceFailure
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
