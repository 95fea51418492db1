package apperr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers branch with errors.Is; handlers map them to
// HTTP statuses. All of them are recoverable by the caller.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrAlreadyDistributed = errors.New("profits already distributed")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func InsufficientFundsf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInsufficientFunds}, args...)...)
}

// Transitionf names the entity, its current status, and the attempted
// operation so an operator can see why a call was rejected.
func Transitionf(entity string, current string, attempted string) error {
	return fmt.Errorf("%w: %s cannot %s from status %q", ErrInvalidTransition, entity, attempted, current)
}

func AlreadyDistributedf(cycleRef string) error {
	return fmt.Errorf("%w: cycle %s", ErrAlreadyDistributed, cycleRef)
}
