package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/booking"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/slots"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store/memory"
)

func newTestHandlers() (*BookingHandler, *AdminHandler) {
	st := memory.NewStore(30*time.Minute, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(st, nil, logger, booking.Config{
		Grid:     slots.DefaultGrid(),
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC) },
	})
	return NewBookingHandler(svc, logger), NewAdminHandler(svc, logger)
}

func postJSON(h http.HandlerFunc, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestBook_HTTPCreated(t *testing.T) {
	bh, _ := newTestHandlers()

	rec := postJSON(bh.Book, "/api/v1/booking/appointments", "member-1",
		`{"kind":"in-person","date":"2026-09-15","time":"10:00","duration_minutes":30,"purpose":"renewal chat"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
		StartAt       string `json:"start_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.AppointmentID == "" || resp.Status != "pending" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.StartAt != "2026-09-15T10:00:00Z" {
		t.Fatalf("start_at = %q", resp.StartAt)
	}
}

func TestBook_HTTPStatusMapping(t *testing.T) {
	bh, ah := newTestHandlers()

	// Seed a booking and a blacked-out date.
	rec := postJSON(bh.Book, "/", "member-1",
		`{"kind":"in-person","date":"2026-09-15","time":"10:00","duration_minutes":30,"purpose":"x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed booking failed: %d", rec.Code)
	}
	rec = postJSON(ah.SetAvailability, "/", "staff-1", `{"date":"2026-09-16","is_available":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed blackout failed: %d", rec.Code)
	}

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"conflict", `{"kind":"in-person","date":"2026-09-15","time":"10:00","duration_minutes":30,"purpose":"x"}`, http.StatusConflict, "slot_conflict"},
		{"unavailable date", `{"kind":"in-person","date":"2026-09-16","time":"10:00","duration_minutes":30,"purpose":"x"}`, http.StatusUnprocessableEntity, "date_unavailable"},
		{"validation", `{"kind":"in-person","date":"2026-09-15","time":"10:00","duration_minutes":45,"purpose":"x"}`, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(bh.Book, "/", "member-2", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			var resp struct {
				Kind string `json:"kind"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if resp.Kind != tt.wantKind {
				t.Fatalf("kind = %q, want %q", resp.Kind, tt.wantKind)
			}
		})
	}
}

func TestBook_Unauthenticated(t *testing.T) {
	bh, _ := newTestHandlers()
	rec := postJSON(bh.Book, "/", "",
		`{"kind":"in-person","date":"2026-09-15","time":"10:00","duration_minutes":30,"purpose":"x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSlots_HTTP(t *testing.T) {
	bh, _ := newTestHandlers()

	rec := postJSON(bh.Book, "/", "member-1",
		`{"kind":"in-person","date":"2026-09-15","time":"10:00","duration_minutes":30,"purpose":"x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed booking failed: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/booking/slots?date=2026-09-15&duration_minutes=30", nil)
	out := httptest.NewRecorder()
	bh.Slots(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", out.Code, out.Body.String())
	}

	var resp struct {
		Slots []struct {
			StartTime string `json:"start_time"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(out.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(resp.Slots) != 15 {
		t.Fatalf("expected 15 free slots, got %d", len(resp.Slots))
	}
	for _, s := range resp.Slots {
		if s.StartTime == "2026-09-15T10:00:00Z" {
			t.Fatal("booked slot leaked into the free list")
		}
	}
}

func TestCancel_HTTPFlow(t *testing.T) {
	bh, _ := newTestHandlers()

	rec := postJSON(bh.Book, "/", "member-1",
		`{"kind":"virtual","date":"2026-09-15","time":"11:00","duration_minutes":60,"purpose":"x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed booking failed: %d", rec.Code)
	}
	var created struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid body: %v", err)
	}

	// Another member cannot cancel it.
	rec = postJSON(bh.Cancel, "/", "member-2", `{"appointment_id":"`+created.AppointmentID+`"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign cancel: expected 404, got %d", rec.Code)
	}

	rec = postJSON(bh.Cancel, "/", "member-1", `{"appointment_id":"`+created.AppointmentID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var cancelled struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if cancelled.Status != "cancelled" {
		t.Fatalf("status = %q", cancelled.Status)
	}
}

func TestAdminDecide_HTTPFlow(t *testing.T) {
	bh, ah := newTestHandlers()

	rec := postJSON(bh.Book, "/", "member-1",
		`{"kind":"in-person","date":"2026-09-15","time":"14:00","duration_minutes":30,"purpose":"x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed booking failed: %d", rec.Code)
	}
	var created struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid body: %v", err)
	}

	rec = postJSON(ah.Decide, "/", "staff-1", `{"appointment_id":"`+created.AppointmentID+`","action":"approve"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Approving twice is an invalid transition.
	rec = postJSON(ah.Decide, "/", "staff-1", `{"appointment_id":"`+created.AppointmentID+`","action":"approve"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double approve: expected 409, got %d", rec.Code)
	}

	rec = postJSON(ah.Complete, "/", "staff-1", `{"appointment_id":"`+created.AppointmentID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
