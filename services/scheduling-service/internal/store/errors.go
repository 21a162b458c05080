package store

import (
	"errors"
	"fmt"
	"time"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// ValidationError marks malformed booking input. Recoverable client-side,
// never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DateUnavailableError means the date is blacked out or not on the
// allow-list at commit time. The client should refresh bookable dates.
type DateUnavailableError struct {
	Date string
}

func (e *DateUnavailableError) Error() string {
	return fmt.Sprintf("date %s is not bookable", e.Date)
}

// SlotConflictError means the requested interval is no longer free. The
// client should refresh candidate slots and pick another.
type SlotConflictError struct {
	StartAt         time.Time
	DurationMinutes int
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot %s (%d min) overlaps an existing appointment",
		e.StartAt.Format(time.RFC3339), e.DurationMinutes)
}

// InvalidTransitionError marks an illegal status change attempt.
type InvalidTransitionError struct {
	Status string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an appointment in status %q", e.Action, e.Status)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsDateUnavailable(err error) bool {
	var de *DateUnavailableError
	return errors.As(err, &de)
}

func IsSlotConflict(err error) bool {
	var ce *SlotConflictError
	return errors.As(err, &ce)
}

func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
