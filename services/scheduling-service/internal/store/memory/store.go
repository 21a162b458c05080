package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/slots"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store"
)

// Store is a mutex-guarded in-memory implementation of store.Store. It backs
// unit tests and local development without Postgres; CreateAppointment holds
// the lock across check and insert, which gives it the same
// exactly-one-winner behavior the database exclusion constraint provides.
type Store struct {
	mu           sync.Mutex
	step         time.Duration
	loc          *time.Location
	appointments map[string]*model.Appointment
	dates        map[string]*model.AvailableDate
}

func NewStore(step time.Duration, loc *time.Location) *Store {
	if step <= 0 {
		step = 30 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		step:         step,
		loc:          loc,
		appointments: map[string]*model.Appointment{},
		dates:        map[string]*model.AvailableDate{},
	}
}

func (s *Store) CreateAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := startOfDay(appt.StartAt.In(s.loc))
	if !s.dateBookableLocked(day) {
		return model.Appointment{}, &store.DateUnavailableError{Date: day.Format(model.DateKey)}
	}

	busy := slots.BusyFromAppointments(s.activeOnDateLocked(day), s.step)
	duration := time.Duration(appt.DurationMinutes) * time.Minute
	if slots.Overlaps(appt.StartAt, duration, busy) {
		return model.Appointment{}, &store.SlotConflictError{
			StartAt:         appt.StartAt,
			DurationMinutes: appt.DurationMinutes,
		}
	}

	now := time.Now().UTC()
	appt.ID = uuid.NewString()
	appt.Status = model.StatusPending
	appt.CreatedAt = now
	appt.UpdatedAt = now
	stored := appt
	s.appointments[appt.ID] = &stored
	return appt, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, store.ErrAppointmentNotFound
	}
	return *appt, nil
}

func (s *Store) TransitionAppointment(_ context.Context, id, action, _ string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, store.ErrAppointmentNotFound
	}
	if !store.ValidTransition(action, appt.Status) {
		return model.Appointment{}, &store.InvalidTransitionError{Status: appt.Status, Action: action}
	}
	appt.Status = store.NextStatus(action)
	appt.UpdatedAt = time.Now().UTC()
	return *appt, nil
}

func (s *Store) ActiveOnDate(_ context.Context, day time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appts := s.activeOnDateLocked(startOfDay(day.In(s.loc)))
	sortByStart(appts)
	return appts, nil
}

func (s *Store) ListOnDate(_ context.Context, day time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dayStart := startOfDay(day.In(s.loc))
	dayEnd := dayStart.AddDate(0, 0, 1)
	var appts []model.Appointment
	for _, a := range s.appointments {
		if !a.StartAt.Before(dayStart) && a.StartAt.Before(dayEnd) {
			appts = append(appts, *a)
		}
	}
	sortByStart(appts)
	return appts, nil
}

func (s *Store) ListByRequester(_ context.Context, requesterID string, limit int) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var appts []model.Appointment
	for _, a := range s.appointments {
		if a.RequesterID == requesterID {
			appts = append(appts, *a)
		}
	}
	sort.Slice(appts, func(i, j int) bool { return appts[j].StartAt.Before(appts[i].StartAt) })
	if len(appts) > limit {
		appts = appts[:limit]
	}
	return appts, nil
}

func (s *Store) GetAvailableDate(_ context.Context, day time.Time) (model.AvailableDate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dates[day.In(s.loc).Format(model.DateKey)]
	if !ok {
		return model.AvailableDate{}, false, nil
	}
	return *rec, true, nil
}

func (s *Store) HasExplicitAvailable(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasExplicitAvailableLocked(), nil
}

func (s *Store) UpsertAvailableDate(_ context.Context, rec model.AvailableDate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Date.In(s.loc).Format(model.DateKey)
	now := time.Now().UTC()
	if existing, ok := s.dates[key]; ok {
		existing.IsAvailable = rec.IsAvailable
		existing.SetBy = rec.SetBy
		existing.UpdatedAt = now
	} else {
		stored := rec
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.dates[key] = &stored
	}

	return len(s.activeOnDateLocked(startOfDay(rec.Date.In(s.loc)))), nil
}

func (s *Store) ListAvailableDates(_ context.Context, from time.Time, days int) ([]model.AvailableDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if days <= 0 {
		days = 30
	}
	start := startOfDay(from.In(s.loc))
	end := start.AddDate(0, 0, days)
	var recs []model.AvailableDate
	for _, rec := range s.dates {
		if !rec.Date.Before(start) && rec.Date.Before(end) {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
	return recs, nil
}

func (s *Store) dateBookableLocked(day time.Time) bool {
	if rec, ok := s.dates[day.Format(model.DateKey)]; ok {
		return rec.IsAvailable
	}
	return !s.hasExplicitAvailableLocked()
}

func (s *Store) hasExplicitAvailableLocked() bool {
	for _, rec := range s.dates {
		if rec.IsAvailable {
			return true
		}
	}
	return false
}

func (s *Store) activeOnDateLocked(dayStart time.Time) []model.Appointment {
	dayEnd := dayStart.AddDate(0, 0, 1)
	var appts []model.Appointment
	for _, a := range s.appointments {
		if !model.IsActiveStatus(a.Status) {
			continue
		}
		if !a.StartAt.Before(dayStart) && a.StartAt.Before(dayEnd) {
			appts = append(appts, *a)
		}
	}
	return appts
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartAt.Before(appts[j].StartAt) })
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
