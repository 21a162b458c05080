package store

import (
	"context"
	"time"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
)

// Store is the persistence contract for the scheduling core. The Postgres
// implementation lives in store/postgres; store/memory backs tests.
type Store interface {
	// CreateAppointment atomically re-checks date availability and interval
	// overlap against all active appointments, then inserts the appointment
	// in pending status. Concurrent callers racing for overlapping intervals
	// are serialized: exactly one insert wins and the rest receive
	// *SlotConflictError. A non-bookable date yields *DateUnavailableError.
	// No partial writes survive a failed attempt.
	CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)

	// TransitionAppointment applies a lifecycle action (approve, reject,
	// complete, cancel). Illegal transitions yield *InvalidTransitionError;
	// unknown ids yield ErrAppointmentNotFound.
	TransitionAppointment(ctx context.Context, id, action, actor string) (model.Appointment, error)

	// ActiveOnDate returns appointments with active status whose interval
	// starts on the given calendar day, ordered by start time.
	ActiveOnDate(ctx context.Context, day time.Time) ([]model.Appointment, error)

	// ListOnDate returns all appointments on the day regardless of status.
	ListOnDate(ctx context.Context, day time.Time) ([]model.Appointment, error)

	ListByRequester(ctx context.Context, requesterID string, limit int) ([]model.Appointment, error)

	// GetAvailableDate fetches the explicit record for a day, if any.
	GetAvailableDate(ctx context.Context, day time.Time) (model.AvailableDate, bool, error)

	// HasExplicitAvailable reports whether any explicit available record
	// exists system-wide (the allow-list switch).
	HasExplicitAvailable(ctx context.Context) (bool, error)

	// UpsertAvailableDate creates or replaces the record for rec.Date and
	// returns the number of active appointments still on that date.
	UpsertAvailableDate(ctx context.Context, rec model.AvailableDate) (int, error)

	ListAvailableDates(ctx context.Context, from time.Time, days int) ([]model.AvailableDate, error)
}
