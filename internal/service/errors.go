package service

import (
	"errors"
	"fmt"
)

// Error kinds returned by every service operation. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrValidation        = errors.New("validation error")
	ErrForbidden         = errors.New("authorization error")
	ErrNotFound          = errors.New("not found")
	ErrScheduleConflict  = errors.New("schedule conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrFeedbackExists    = errors.New("feedback already exists")
	ErrPersistence       = errors.New("persistence error")
	ErrUnavailable       = errors.New("feature unavailable")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// persistence wraps a store failure unless it already carries a domain kind.
func persistence(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

func isDomainError(err error) bool {
	for _, kind := range []error{ErrValidation, ErrForbidden, ErrNotFound, ErrScheduleConflict, ErrInvalidTransition, ErrFeedbackExists, ErrPersistence, ErrUnavailable} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
