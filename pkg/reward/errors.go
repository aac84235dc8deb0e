package reward

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the reward engine.
var (
	ErrNoRewardsConfigured   = errors.New("no rewards configured")
	ErrQuotaExceeded         = errors.New("daily spin quota exceeded")
	ErrNumberAlreadyTaken    = errors.New("number already taken")
	ErrAlreadyRegistered     = errors.New("already registered for event")
	ErrEventNotOpen          = errors.New("event not open")
	ErrEventNotClosed        = errors.New("event not closed")
	ErrEventNotDrawn         = errors.New("event not drawn")
	ErrUnknownEvent          = errors.New("unknown event")
	ErrUnknownReward         = errors.New("unknown reward")
	ErrUnknownSpin           = errors.New("unknown spin")
	ErrSpinNotPending        = errors.New("spin not pending contact")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	ErrInvalidRewardType     = errors.New("invalid reward type")
	ErrInvalidEventStatus    = errors.New("invalid event status")
	ErrInvalidSpinStatus     = errors.New("invalid spin status")
	ErrInvalidNumber         = errors.New("invalid chosen number")
	ErrInvalidDrawResults    = errors.New("invalid draw results")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
