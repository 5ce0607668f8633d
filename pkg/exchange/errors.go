package exchange

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation, authorization and balance errors are
// rejected before any state mutation and the action can simply be
// resubmitted. A ConsistencyError means an engine invariant broke
// mid-action: the action's batch is dropped and the in-memory working
// set is rebuilt from the last committed state before the next action
// runs, so the abort leaves no trace.

type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

type AuthorizationError struct{ msg string }

func (e *AuthorizationError) Error() string { return e.msg }

type InsufficientBalanceError struct{ msg string }

func (e *InsufficientBalanceError) Error() string { return e.msg }

type ConsistencyError struct{ msg string }

func (e *ConsistencyError) Error() string { return e.msg }

func errValidation(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func errAuthorization(format string, args ...any) error {
	return &AuthorizationError{msg: fmt.Sprintf(format, args...)}
}

func errInsufficient(format string, args ...any) error {
	return &InsufficientBalanceError{msg: fmt.Sprintf(format, args...)}
}

func errConsistency(format string, args ...any) error {
	return &ConsistencyError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

func IsInsufficientBalance(err error) bool {
	var e *InsufficientBalanceError
	return errors.As(err, &e)
}

func IsConsistency(err error) bool {
	var e *ConsistencyError
	return errors.As(err, &e)
}
