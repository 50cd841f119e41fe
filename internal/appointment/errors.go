package appointment

import (
	"errors"
	"fmt"

	"github.com/hackgods/clinic-appointment-booking/internal/directory"
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", directory.ErrNotFound)
	ErrInvalidRelationship = errors.New("doctor does not belong to the given clinic")
	ErrSlotUnavailable     = errors.New("requested time overlaps an existing appointment")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrValidation          = errors.New("validation failed")
	ErrConcurrencyConflict = errors.New("concurrent booking conflict")
	ErrForbidden           = errors.New("operation not allowed for this caller")
	ErrNotDeletable        = errors.New("completed appointments cannot be deleted")
)

// TransitionError names the rejected move; errors.Is matches ErrInvalidTransition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError reports a bad input field; errors.Is matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
