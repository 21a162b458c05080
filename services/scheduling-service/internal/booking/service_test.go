package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/slots"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store/memory"
)

var testNow = time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memory.Store) {
	st := memory.NewStore(30*time.Minute, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(st, nil, logger, Config{
		Grid:     slots.DefaultGrid(),
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	return svc, st
}

func mustBook(t *testing.T, svc *Service, requester, date, at string) model.Appointment {
	t.Helper()
	appt, err := svc.Book(context.Background(), BookRequest{
		RequesterID:     requester,
		Kind:            model.KindInPerson,
		Date:            date,
		Time:            at,
		DurationMinutes: 30,
		Purpose:         "quarterly membership review",
	})
	if err != nil {
		t.Fatalf("Book(%s %s) failed: %v", date, at, err)
	}
	return appt
}

func TestBook_Succeeds(t *testing.T) {
	svc, _ := newTestService()

	appt := mustBook(t, svc, "member-1", "2026-09-15", "10:00")
	if appt.Status != model.StatusPending {
		t.Fatalf("new appointment should be pending, got %q", appt.Status)
	}
	if appt.ID == "" {
		t.Fatal("expected an id")
	}
	want := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	if !appt.StartAt.Equal(want) {
		t.Fatalf("start = %s, want %s", appt.StartAt, want)
	}
}

func TestBook_ValidationFailures(t *testing.T) {
	svc, _ := newTestService()
	base := BookRequest{
		RequesterID:     "member-1",
		Kind:            model.KindVirtual,
		Date:            "2026-09-15",
		Time:            "10:00",
		DurationMinutes: 60,
		Purpose:         "discuss renewal",
	}

	tests := []struct {
		name   string
		mutate func(*BookRequest)
	}{
		{"missing requester", func(r *BookRequest) { r.RequesterID = " " }},
		{"unknown kind", func(r *BookRequest) { r.Kind = "phone" }},
		{"duration off the menu", func(r *BookRequest) { r.DurationMinutes = 45 }},
		{"empty purpose", func(r *BookRequest) { r.Purpose = "  " }},
		{"malformed date", func(r *BookRequest) { r.Date = "15-09-2026" }},
		{"past date", func(r *BookRequest) { r.Date = "2026-09-13" }},
		{"malformed time", func(r *BookRequest) { r.Time = "10am" }},
		{"same-day time already elapsed", func(r *BookRequest) { r.Date = "2026-09-14"; r.Time = "07:30" }},
		{"before opening", func(r *BookRequest) { r.Time = "08:00" }},
		{"runs past closing", func(r *BookRequest) { r.Time = "16:30" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := svc.Book(context.Background(), req)
			if !store.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestBook_PastDateAcrossClocks(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		past   string
		future string
	}{
		{"weekday morning", time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC), "2026-09-13", "2026-09-15"},
		{"late evening", time.Date(2026, 12, 31, 23, 30, 0, 0, time.UTC), "2026-12-30", "2027-01-04"},
		{"stroke of midnight", time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC), "2027-02-28", "2027-03-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.NewStore(30*time.Minute, time.UTC)
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			svc := NewService(st, nil, logger, Config{
				Grid:     slots.DefaultGrid(),
				Location: time.UTC,
				Now:      func() time.Time { return tt.now },
			})

			_, err := svc.Book(context.Background(), BookRequest{
				RequesterID: "member-1", Kind: model.KindInPerson,
				Date: tt.past, Time: "10:00", DurationMinutes: 30, Purpose: "x",
			})
			if !store.IsValidation(err) {
				t.Fatalf("past date %s at now=%s: expected ValidationError, got %v", tt.past, tt.now, err)
			}
			mustBook(t, svc, "member-1", tt.future, "10:00")
		})
	}
}

func TestBook_OverlapRejected(t *testing.T) {
	svc, _ := newTestService()
	mustBook(t, svc, "member-1", "2026-09-15", "10:00")

	// Same slot, a straddling slot, then the adjacent slot.
	_, err := svc.Book(context.Background(), BookRequest{
		RequesterID: "member-2", Kind: model.KindInPerson,
		Date: "2026-09-15", Time: "10:00", DurationMinutes: 30, Purpose: "x",
	})
	if !store.IsSlotConflict(err) {
		t.Fatalf("identical slot: expected SlotConflictError, got %v", err)
	}

	_, err = svc.Book(context.Background(), BookRequest{
		RequesterID: "member-2", Kind: model.KindInPerson,
		Date: "2026-09-15", Time: "09:30", DurationMinutes: 60, Purpose: "x",
	})
	if !store.IsSlotConflict(err) {
		t.Fatalf("straddling slot: expected SlotConflictError, got %v", err)
	}

	mustBook(t, svc, "member-2", "2026-09-15", "10:30")
}

func TestBook_BlackedOutDate(t *testing.T) {
	svc, _ := newTestService()

	if _, _, err := svc.SetAvailability(context.Background(), "2026-09-16", false, "Dana Staff"); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}

	_, err := svc.Book(context.Background(), BookRequest{
		RequesterID: "member-1", Kind: model.KindInPerson,
		Date: "2026-09-16", Time: "10:00", DurationMinutes: 30, Purpose: "x",
	})
	if !store.IsDateUnavailable(err) {
		t.Fatalf("expected DateUnavailableError, got %v", err)
	}
	if _, err := svc.CandidateSlots(context.Background(), "2026-09-16", 30); !store.IsDateUnavailable(err) {
		t.Fatalf("CandidateSlots on blacked-out date: expected DateUnavailableError, got %v", err)
	}
}

func TestSetAvailability_ReportsActiveAppointments(t *testing.T) {
	svc, _ := newTestService()
	mustBook(t, svc, "member-1", "2026-09-15", "10:00")
	mustBook(t, svc, "member-2", "2026-09-15", "11:00")

	_, count, err := svc.SetAvailability(context.Background(), "2026-09-15", false, "Dana Staff")
	if err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active appointments reported, got %d", count)
	}

	// The blackout does not cancel them.
	appts, err := svc.AppointmentsOnDate(context.Background(), "2026-09-15")
	if err != nil {
		t.Fatalf("AppointmentsOnDate: %v", err)
	}
	for _, a := range appts {
		if a.Status != model.StatusPending {
			t.Fatalf("appointment %s should stay pending, got %q", a.ID, a.Status)
		}
	}
}

func TestAvailability_AllowListSwitch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// Default-open: an unlisted date is bookable.
	mustBook(t, svc, "member-1", "2026-09-15", "10:00")

	// The first explicit available record flips the policy to allow-list.
	if _, _, err := svc.SetAvailability(ctx, "2026-09-20", true, "Dana Staff"); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}

	_, err := svc.Book(ctx, BookRequest{
		RequesterID: "member-1", Kind: model.KindInPerson,
		Date: "2026-09-17", Time: "10:00", DurationMinutes: 30, Purpose: "x",
	})
	if !store.IsDateUnavailable(err) {
		t.Fatalf("unlisted date under allow-list: expected DateUnavailableError, got %v", err)
	}
	mustBook(t, svc, "member-1", "2026-09-20", "10:00")

	dates, err := svc.BookableDates(ctx, testNow, 14)
	if err != nil {
		t.Fatalf("BookableDates: %v", err)
	}
	if len(dates) != 1 || dates[0].Format(model.DateKey) != "2026-09-20" {
		t.Fatalf("expected only 2026-09-20 bookable, got %v", dates)
	}
}

func TestCancel_FreesTheSlot(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	appt := mustBook(t, svc, "member-1", "2026-09-15", "10:00")

	cancelled, err := svc.CancelByRequester(ctx, appt.ID, "member-1")
	if err != nil {
		t.Fatalf("CancelByRequester: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}

	free, err := svc.CandidateSlots(ctx, "2026-09-15", 30)
	if err != nil {
		t.Fatalf("CandidateSlots: %v", err)
	}
	found := false
	for _, s := range free {
		if s.Equal(time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)) {
			found = true
		}
	}
	if !found {
		t.Fatal("cancelled slot should be offered again")
	}
	mustBook(t, svc, "member-2", "2026-09-15", "10:00")
}

func TestReject_FreesTheSlot(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	appt := mustBook(t, svc, "member-1", "2026-09-15", "10:00")
	if _, err := svc.Decide(ctx, appt.ID, store.ActionReject, "Dana Staff"); err != nil {
		t.Fatalf("Decide reject: %v", err)
	}
	mustBook(t, svc, "member-2", "2026-09-15", "10:00")
}

func TestCancel_OwnershipEnforced(t *testing.T) {
	svc, _ := newTestService()
	appt := mustBook(t, svc, "member-1", "2026-09-15", "10:00")

	_, err := svc.CancelByRequester(context.Background(), appt.ID, "member-2")
	if !errors.Is(err, store.ErrAppointmentNotFound) {
		t.Fatalf("expected not found for foreign appointment, got %v", err)
	}
}

func TestLifecycle_ApproveThenComplete(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	appt := mustBook(t, svc, "member-1", "2026-09-15", "10:00")
	approved, err := svc.Decide(ctx, appt.ID, store.ActionApprove, "Dana Staff")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.StatusApproved {
		t.Fatalf("expected approved, got %q", approved.Status)
	}

	if _, err := svc.Decide(ctx, appt.ID, store.ActionApprove, "Dana Staff"); !store.IsInvalidTransition(err) {
		t.Fatalf("double approve: expected InvalidTransitionError, got %v", err)
	}

	completed, err := svc.Complete(ctx, appt.ID, "Dana Staff")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %q", completed.Status)
	}

	// A completed appointment keeps occupying its interval.
	if _, err := svc.Book(ctx, BookRequest{
		RequesterID: "member-2", Kind: model.KindInPerson,
		Date: "2026-09-15", Time: "10:00", DurationMinutes: 30, Purpose: "x",
	}); !store.IsSlotConflict(err) {
		t.Fatalf("expected SlotConflictError over completed appointment, got %v", err)
	}
}

func TestDecide_UnknownAction(t *testing.T) {
	svc, _ := newTestService()
	appt := mustBook(t, svc, "member-1", "2026-09-15", "10:00")

	if _, err := svc.Decide(context.Background(), appt.ID, "archive", "Dana Staff"); !store.IsValidation(err) {
		t.Fatalf("expected ValidationError for unknown action, got %v", err)
	}
}

func TestCandidateSlots_ExcludesBusyAndPast(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mustBook(t, svc, "member-1", "2026-09-14", "10:00")

	// Today at 08:00: everything from 09:00 on is still in the future.
	free, err := svc.CandidateSlots(ctx, "2026-09-14", 30)
	if err != nil {
		t.Fatalf("CandidateSlots: %v", err)
	}
	if len(free) != 15 {
		t.Fatalf("expected 15 free slots (16 minus the booked one), got %d", len(free))
	}
	for _, s := range free {
		if s.Equal(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)) {
			t.Fatal("booked slot must not be offered")
		}
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	svc, _ := newTestService()
	const attempts = 20

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), BookRequest{
				RequesterID:     "member-1",
				Kind:            model.KindInPerson,
				Date:            "2026-09-15",
				Time:            "10:00",
				DurationMinutes: 30,
				Purpose:         "racing for the same slot",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case store.IsSlotConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if conflicts != attempts-1 {
		t.Fatalf("expected %d conflicts, got %d", attempts-1, conflicts)
	}
}

func TestListForRequester(t *testing.T) {
	svc, _ := newTestService()
	mustBook(t, svc, "member-1", "2026-09-15", "10:00")
	mustBook(t, svc, "member-1", "2026-09-16", "11:00")
	mustBook(t, svc, "member-2", "2026-09-15", "12:00")

	appts, err := svc.ListForRequester(context.Background(), "member-1", 50)
	if err != nil {
		t.Fatalf("ListForRequester: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
	if appts[0].StartAt.Before(appts[1].StartAt) {
		t.Fatal("expected newest first")
	}
}
