// Package cerrors declares the error categories shared by every package in
// the ledger. Callers branch on the category with errors.Is rather than
// matching message strings, which stay human-readable and may change.
package cerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input: zero amounts, empty batch
	// lists, serial strings of the wrong shape.
	ErrValidation = errors.New("creditledger: validation error")

	// ErrState marks an operation attempted from a disallowed status,
	// including a second finalize/revert on a consumed request.
	ErrState = errors.New("creditledger: state error")

	// ErrConsistency marks internal bookkeeping mismatches: split
	// arithmetic that does not reconstruct the source range, serial
	// round-trip failures, uniqueness violations.
	ErrConsistency = errors.New("creditledger: consistency error")

	// ErrAuthorization marks a caller lacking the required role.
	ErrAuthorization = errors.New("creditledger: authorization error")

	// ErrCapacity marks a deposit that would exceed a vintage's cap.
	ErrCapacity = errors.New("creditledger: capacity error")

	// ErrNotFound marks an unknown batch, request, or vintage id.
	ErrNotFound = errors.New("creditledger: not found")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Statef wraps ErrState with a formatted detail message.
func Statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// Consistencyf wraps ErrConsistency with a formatted detail message.
func Consistencyf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConsistency, fmt.Sprintf(format, args...))
}

// Authorizationf wraps ErrAuthorization with a formatted detail message.
func Authorizationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthorization, fmt.Sprintf(format, args...))
}

// Capacityf wraps ErrCapacity with a formatted detail message.
func Capacityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCapacity, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
