package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/directory"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/slots"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store"
)

const maxPurposeLen = 2000

// Service orchestrates booking attempts end to end. The checks it runs
// before calling the store are advisory fast paths; the store re-runs
// availability and overlap inside one atomic write, so a stale client can
// never double-book.
type Service struct {
	store     store.Store
	directory directory.Provider
	logger    *slog.Logger
	grid      slots.Grid
	loc       *time.Location
	now       func() time.Time
}

type Config struct {
	Grid     slots.Grid
	Location *time.Location
	// Now overrides the clock; tests set it, production leaves it nil.
	Now func() time.Time
}

func NewService(st store.Store, dir directory.Provider, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Grid.Step <= 0 {
		cfg.Grid = slots.DefaultGrid()
	}
	return &Service{
		store:     st,
		directory: dir,
		logger:    logger,
		grid:      cfg.Grid,
		loc:       cfg.Location,
		now:       cfg.Now,
	}
}

type BookRequest struct {
	RequesterID     string
	Kind            string
	Date            string // YYYY-MM-DD in the portal timezone
	Time            string // HH:MM
	DurationMinutes int
	Purpose         string
}

// Book validates the request, re-checks availability and conflicts, and
// inserts the appointment in pending status. Returns *ValidationError,
// *DateUnavailableError or *SlotConflictError for client-recoverable
// failures.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	start, err := s.validate(&req)
	if err != nil {
		return model.Appointment{}, err
	}

	if s.directory != nil {
		member, err := s.directory.GetMember(ctx, req.RequesterID)
		if err != nil {
			return model.Appointment{}, fmt.Errorf("member directory lookup: %w", err)
		}
		if member.Standing != directory.StandingActive {
			return model.Appointment{}, &store.ValidationError{Field: "requesterId", Reason: "member is not in good standing"}
		}
	}

	day := startOfDay(start)
	bookable, err := s.IsDateBookable(ctx, day)
	if err != nil {
		return model.Appointment{}, err
	}
	if !bookable {
		return model.Appointment{}, &store.DateUnavailableError{Date: req.Date}
	}

	// Advisory pre-check for a deterministic conflict error without paying
	// for a transaction; the store repeats it authoritatively.
	active, err := s.store.ActiveOnDate(ctx, day)
	if err != nil {
		return model.Appointment{}, err
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if slots.Overlaps(start, duration, slots.BusyFromAppointments(active, s.grid.Step)) {
		return model.Appointment{}, &store.SlotConflictError{StartAt: start, DurationMinutes: req.DurationMinutes}
	}

	appt, err := s.store.CreateAppointment(ctx, model.Appointment{
		RequesterID:     req.RequesterID,
		Kind:            req.Kind,
		StartAt:         start,
		DurationMinutes: req.DurationMinutes,
		Purpose:         req.Purpose,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"requester_id", appt.RequesterID,
		"start_at", appt.StartAt.UTC().Format(time.RFC3339),
		"duration_minutes", appt.DurationMinutes,
	)
	return appt, nil
}

// CandidateSlots returns the free grid start times for the date. Advisory:
// the authoritative check happens again inside Book.
func (s *Service) CandidateSlots(ctx context.Context, date string, durationMinutes int) ([]time.Time, error) {
	if !model.IsAllowedDuration(durationMinutes) {
		return nil, &store.ValidationError{Field: "durationMinutes", Reason: "must be one of 30, 60, 90, 120"}
	}
	day, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	if day.Before(startOfDay(s.now().In(s.loc))) {
		return nil, &store.ValidationError{Field: "date", Reason: "is in the past"}
	}

	bookable, err := s.IsDateBookable(ctx, day)
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, &store.DateUnavailableError{Date: date}
	}

	active, err := s.store.ActiveOnDate(ctx, day)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(durationMinutes) * time.Minute
	candidates := s.grid.Candidates(day, duration)
	free := slots.FilterFree(candidates, duration, slots.BusyFromAppointments(active, s.grid.Step))

	// Same-day requests should not offer starts that have already passed.
	now := s.now().In(s.loc)
	out := free[:0]
	for _, t := range free {
		if !t.Before(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

// BookableDates resolves the availability policy over a date window.
func (s *Service) BookableDates(ctx context.Context, from time.Time, days int) ([]time.Time, error) {
	if days <= 0 {
		days = 30
	}
	hasAllowList, err := s.store.HasExplicitAvailable(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListAvailableDates(ctx, from, days)
	if err != nil {
		return nil, err
	}
	explicit := make(map[string]bool, len(recs))
	for _, rec := range recs {
		explicit[rec.Date.Format(model.DateKey)] = rec.IsAvailable
	}

	today := startOfDay(s.now().In(s.loc))
	var out []time.Time
	for i := 0; i < days; i++ {
		day := startOfDay(from.In(s.loc)).AddDate(0, 0, i)
		if day.Before(today) {
			continue
		}
		if avail, ok := explicit[day.Format(model.DateKey)]; ok {
			if avail {
				out = append(out, day)
			}
			continue
		}
		if !hasAllowList {
			out = append(out, day)
		}
	}
	return out, nil
}

// ListForRequester returns the requester's appointments, newest first.
func (s *Service) ListForRequester(ctx context.Context, requesterID string, limit int) ([]model.Appointment, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, &store.ValidationError{Field: "requesterId", Reason: "is required"}
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByRequester(ctx, requesterID, limit)
}

// IsDateBookable applies the availability policy for one day: an explicit
// record wins; otherwise unlisted days are bookable only while no explicit
// available record exists anywhere.
func (s *Service) IsDateBookable(ctx context.Context, day time.Time) (bool, error) {
	rec, ok, err := s.store.GetAvailableDate(ctx, day)
	if err != nil {
		return false, err
	}
	if ok {
		return rec.IsAvailable, nil
	}
	hasAllowList, err := s.store.HasExplicitAvailable(ctx)
	if err != nil {
		return false, err
	}
	return !hasAllowList, nil
}

// SetAvailability records a staff decision for one calendar day and
// returns the count of active appointments already on it. Marking a day
// unavailable does not touch existing appointments; staff cancel those
// individually using the returned count as their cue.
func (s *Service) SetAvailability(ctx context.Context, date string, isAvailable bool, setBy string) (model.AvailableDate, int, error) {
	day, err := s.parseDay(date)
	if err != nil {
		return model.AvailableDate{}, 0, err
	}
	rec := model.AvailableDate{Date: day, IsAvailable: isAvailable, SetBy: setBy}
	activeCount, err := s.store.UpsertAvailableDate(ctx, rec)
	if err != nil {
		return model.AvailableDate{}, 0, err
	}
	s.logger.Info("availability updated",
		"date", date,
		"is_available", isAvailable,
		"set_by", setBy,
		"active_appointments", activeCount,
	)
	return rec, activeCount, nil
}

// ListAvailability returns the explicit availability records in a window.
func (s *Service) ListAvailability(ctx context.Context, from time.Time, days int) ([]model.AvailableDate, error) {
	if days <= 0 {
		days = 30
	}
	return s.store.ListAvailableDates(ctx, from, days)
}

// AppointmentsOnDate returns every appointment on the day regardless of
// status, for the staff schedule view.
func (s *Service) AppointmentsOnDate(ctx context.Context, date string) ([]model.Appointment, error) {
	day, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	return s.store.ListOnDate(ctx, day)
}

// Decide applies a staff approval decision (approve or reject).
func (s *Service) Decide(ctx context.Context, id, action, actor string) (model.Appointment, error) {
	if action != store.ActionApprove && action != store.ActionReject {
		return model.Appointment{}, &store.ValidationError{Field: "action", Reason: "must be approve or reject"}
	}
	return s.transition(ctx, id, action, actor)
}

// Complete marks an approved appointment as having taken place.
func (s *Service) Complete(ctx context.Context, id, actor string) (model.Appointment, error) {
	return s.transition(ctx, id, store.ActionComplete, actor)
}

// CancelByRequester cancels the requester's own appointment; the interval
// becomes bookable again immediately.
func (s *Service) CancelByRequester(ctx context.Context, id, requesterID string) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.RequesterID != requesterID {
		return model.Appointment{}, store.ErrAppointmentNotFound
	}
	return s.transition(ctx, id, store.ActionCancel, requesterID)
}

// CancelByStaff cancels on behalf of staff (either party may cancel).
func (s *Service) CancelByStaff(ctx context.Context, id, actor string) (model.Appointment, error) {
	return s.transition(ctx, id, store.ActionCancel, actor)
}

func (s *Service) transition(ctx context.Context, id, action, actor string) (model.Appointment, error) {
	appt, err := s.store.TransitionAppointment(ctx, id, action, actor)
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment transitioned",
		"appointment_id", appt.ID,
		"action", action,
		"status", appt.Status,
		"actor", actor,
	)
	return appt, nil
}

func (s *Service) validate(req *BookRequest) (time.Time, error) {
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	req.Purpose = strings.TrimSpace(req.Purpose)

	if req.RequesterID == "" {
		return time.Time{}, &store.ValidationError{Field: "requesterId", Reason: "is required"}
	}
	if !model.IsKnownKind(req.Kind) {
		return time.Time{}, &store.ValidationError{Field: "kind", Reason: "must be in-person or virtual"}
	}
	if !model.IsAllowedDuration(req.DurationMinutes) {
		return time.Time{}, &store.ValidationError{Field: "durationMinutes", Reason: "must be one of 30, 60, 90, 120"}
	}
	if req.Purpose == "" {
		return time.Time{}, &store.ValidationError{Field: "purpose", Reason: "is required"}
	}
	if utf8.RuneCountInString(req.Purpose) > maxPurposeLen {
		return time.Time{}, &store.ValidationError{Field: "purpose", Reason: "must be at most 2000 characters"}
	}

	day, err := s.parseDay(req.Date)
	if err != nil {
		return time.Time{}, err
	}
	if day.Before(startOfDay(s.now().In(s.loc))) {
		return time.Time{}, &store.ValidationError{Field: "date", Reason: "is in the past"}
	}

	clock, err := time.Parse("15:04", req.Time)
	if err != nil {
		return time.Time{}, &store.ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, s.loc)
	if start.Before(s.now().In(s.loc)) {
		return time.Time{}, &store.ValidationError{Field: "time", Reason: "is in the past"}
	}
	if !s.grid.Contains(start, time.Duration(req.DurationMinutes)*time.Minute) {
		return time.Time{}, &store.ValidationError{Field: "time", Reason: "is outside booking hours"}
	}
	return start, nil
}

func (s *Service) parseDay(date string) (time.Time, error) {
	day, err := time.ParseInLocation(model.DateKey, date, s.loc)
	if err != nil {
		return time.Time{}, &store.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return day, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
