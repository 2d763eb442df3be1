package errors

import (
	"errors"
	"fmt"
)

// Sentinels for the error taxonomy. Constructors wrap them so callers can
// classify with errors.Is regardless of the message.
var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("transient")
)

func NewValidation(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

func NewNotFound(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, a...))
}

func NewConflict(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, a...))
}

func NewTransient(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, a...))
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsTransient reports whether err is worth retrying. Validation, not-found
// and conflict failures are deterministic and never are.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
