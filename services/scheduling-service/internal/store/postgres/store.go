package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/memberhub/memberhub/libs/db"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/outbox"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/slots"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store"
)

// Store is the Postgres-backed scheduling store. The appointments table
// carries a partial exclusion constraint over active-status intervals, so
// even when two transactions pass the in-transaction overlap check
// concurrently, at most one commit succeeds; the loser's constraint
// violation is translated to the same *SlotConflictError the pre-check
// returns.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
	step   time.Duration
	loc    *time.Location
}

type Options struct {
	// Step is the booking grid step, used as the assumed length of legacy
	// appointments with no recorded duration.
	Step time.Duration
	// Location is the portal timezone calendar days are evaluated in.
	Location *time.Location
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository, opts Options) *Store {
	if opts.Step <= 0 {
		opts.Step = 30 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Store{
		pool:   pool,
		outbox: outboxRepo,
		step:   opts.Step,
		loc:    opts.Location,
	}
}

func (s *Store) CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	day := startOfDay(appt.StartAt.In(s.loc))

	bookable, err := s.dateBookableTx(ctx, tx, day)
	if err != nil {
		return model.Appointment{}, err
	}
	if !bookable {
		return model.Appointment{}, &store.DateUnavailableError{Date: day.Format(model.DateKey)}
	}

	// Authoritative re-check: client-side slot filtering is advisory only.
	active, err := s.activeOnDateTx(ctx, tx, day)
	if err != nil {
		return model.Appointment{}, err
	}
	busy := slots.BusyFromAppointments(active, s.step)
	duration := time.Duration(appt.DurationMinutes) * time.Minute
	if slots.Overlaps(appt.StartAt, duration, busy) {
		return model.Appointment{}, &store.SlotConflictError{
			StartAt:         appt.StartAt,
			DurationMinutes: appt.DurationMinutes,
		}
	}

	appt.ID = uuid.NewString()
	appt.Status = model.StatusPending
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, requester_id, kind, start_at, duration_minutes, purpose, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, appt.ID, appt.RequesterID, appt.Kind, appt.StartAt, appt.DurationMinutes, appt.Purpose, appt.Status).
		Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return model.Appointment{}, &store.SlotConflictError{
				StartAt:         appt.StartAt,
				DurationMinutes: appt.DurationMinutes,
			}
		}
		return model.Appointment{}, err
	}

	if err := s.insertStatusEvent(ctx, tx, appt, "", appt.RequesterID); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(s.pool.QueryRow(ctx, `
		SELECT id, requester_id, kind, start_at, duration_minutes, purpose, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id))
}

func (s *Store) TransitionAppointment(ctx context.Context, id, action, actor string) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT id, requester_id, kind, start_at, duration_minutes, purpose, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, err
	}

	if !store.ValidTransition(action, appt.Status) {
		return model.Appointment{}, &store.InvalidTransitionError{Status: appt.Status, Action: action}
	}

	prev := appt.Status
	appt.Status = store.NextStatus(action)
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, appt.Status).Scan(&appt.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}

	if err := s.insertStatusEvent(ctx, tx, appt, prev, actor); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) ActiveOnDate(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	dayStart, dayEnd := s.dayRange(day)
	return s.listRange(ctx, `
		SELECT id, requester_id, kind, start_at, duration_minutes, purpose, status, created_at, updated_at
		FROM appointments
		WHERE start_at >= $1 AND start_at < $2
			AND status = ANY($3)
		ORDER BY start_at
	`, dayStart, dayEnd, model.ActiveStatuses)
}

func (s *Store) ListOnDate(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	dayStart, dayEnd := s.dayRange(day)
	return s.listRange(ctx, `
		SELECT id, requester_id, kind, start_at, duration_minutes, purpose, status, created_at, updated_at
		FROM appointments
		WHERE start_at >= $1 AND start_at < $2
		ORDER BY start_at
	`, dayStart, dayEnd)
}

func (s *Store) ListByRequester(ctx context.Context, requesterID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listRange(ctx, `
		SELECT id, requester_id, kind, start_at, duration_minutes, purpose, status, created_at, updated_at
		FROM appointments
		WHERE requester_id = $1
		ORDER BY start_at DESC
		LIMIT $2
	`, requesterID, limit)
}

func (s *Store) GetAvailableDate(ctx context.Context, day time.Time) (model.AvailableDate, bool, error) {
	var rec model.AvailableDate
	err := s.pool.QueryRow(ctx, `
		SELECT date, is_available, set_by, created_at, updated_at
		FROM available_dates
		WHERE date = $1
	`, day.Format(model.DateKey)).Scan(&rec.Date, &rec.IsAvailable, &rec.SetBy, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AvailableDate{}, false, nil
	}
	if err != nil {
		return model.AvailableDate{}, false, err
	}
	return rec, true, nil
}

func (s *Store) HasExplicitAvailable(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM available_dates WHERE is_available)
	`).Scan(&exists)
	return exists, err
}

func (s *Store) UpsertAvailableDate(ctx context.Context, rec model.AvailableDate) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	dateKey := rec.Date.Format(model.DateKey)
	_, err = tx.Exec(ctx, `
		INSERT INTO available_dates (date, is_available, set_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (date) DO UPDATE
		SET is_available = EXCLUDED.is_available,
			set_by = EXCLUDED.set_by,
			updated_at = now()
	`, dateKey, rec.IsAvailable, rec.SetBy)
	if err != nil {
		return 0, err
	}

	// Existing active appointments are never cancelled by a blackout; the
	// count is surfaced so staff can review them.
	dayStart, dayEnd := s.dayRange(rec.Date)
	var activeCount int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE start_at >= $1 AND start_at < $2 AND status = ANY($3)
	`, dayStart, dayEnd, model.ActiveStatuses).Scan(&activeCount)
	if err != nil {
		return 0, err
	}

	action := "sync_available_date"
	if !rec.IsAvailable {
		action = "remove_available_date"
	}
	payload, err := json.Marshal(map[string]any{
		"date":         dateKey,
		"is_available": rec.IsAvailable,
		"action":       action,
		"set_by":       rec.SetBy,
	})
	if err != nil {
		return 0, err
	}
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "available_date",
		AggregateID:   dateKey,
		EventType:     outbox.EventAvailabilityChanged,
		Payload:       payload,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return activeCount, nil
}

func (s *Store) ListAvailableDates(ctx context.Context, from time.Time, days int) ([]model.AvailableDate, error) {
	if days <= 0 {
		days = 30
	}
	to := from.AddDate(0, 0, days)
	rows, err := s.pool.Query(ctx, `
		SELECT date, is_available, set_by, created_at, updated_at
		FROM available_dates
		WHERE date >= $1 AND date < $2
		ORDER BY date
	`, from.Format(model.DateKey), to.Format(model.DateKey))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.AvailableDate
	for rows.Next() {
		var rec model.AvailableDate
		if err := rows.Scan(&rec.Date, &rec.IsAvailable, &rec.SetBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

// dateBookableTx resolves the availability policy inside the booking
// transaction: an explicit record wins; otherwise the date is bookable only
// while no explicit available record exists anywhere (allow-list switch).
func (s *Store) dateBookableTx(ctx context.Context, tx pgx.Tx, day time.Time) (bool, error) {
	var bookable bool
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT is_available FROM available_dates WHERE date = $1),
			NOT EXISTS (SELECT 1 FROM available_dates WHERE is_available)
		)
	`, day.Format(model.DateKey)).Scan(&bookable)
	return bookable, err
}

func (s *Store) activeOnDateTx(ctx context.Context, tx pgx.Tx, day time.Time) ([]model.Appointment, error) {
	dayStart, dayEnd := s.dayRange(day)
	rows, err := tx.Query(ctx, `
		SELECT id, requester_id, kind, start_at, duration_minutes, purpose, status, created_at, updated_at
		FROM appointments
		WHERE start_at >= $1 AND start_at < $2
			AND status = ANY($3)
		ORDER BY start_at
	`, dayStart, dayEnd, model.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *Store) insertStatusEvent(ctx context.Context, tx pgx.Tx, appt model.Appointment, prevStatus, actor string) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":   appt.ID,
		"requester_id":     appt.RequesterID,
		"kind":             appt.Kind,
		"start_at":         appt.StartAt.UTC().Format(time.RFC3339),
		"duration_minutes": appt.DurationMinutes,
		"prev_status":      prevStatus,
		"status":           appt.Status,
		"actor":            actor,
	})
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentStatusChanged,
		Payload:       payload,
	})
}

func (s *Store) listRange(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *Store) dayRange(day time.Time) (time.Time, time.Time) {
	start := startOfDay(day.In(s.loc))
	return start, start.AddDate(0, 0, 1)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.RequesterID, &a.Kind, &a.StartAt, &a.DurationMinutes, &a.Purpose, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.RequesterID, &a.Kind, &a.StartAt, &a.DurationMinutes, &a.Purpose, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, store.ErrAppointmentNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
