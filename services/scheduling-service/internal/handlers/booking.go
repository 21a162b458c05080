package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/booking"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store"
)

// BookingHandler serves the member-facing booking API. Client contract on
// errors: kind "slot_conflict" or "date_unavailable" means re-query
// /dates and /slots and resubmit with a fresh slot; "validation" errors are
// terminal for the request as submitted.
type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type bookRequest struct {
	Kind            string `json:"kind"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Purpose         string `json:"purpose"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	RequesterID     string `json:"requester_id"`
	Kind            string `json:"kind"`
	StartAt         string `json:"start_at"`
	EndAt           string `json:"end_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Purpose         string `json:"purpose,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *BookingHandler) Dates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from := time.Now()
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse(model.DateKey, raw)
		if err != nil {
			writeError(w, &store.ValidationError{Field: "from", Reason: "must be YYYY-MM-DD"})
			return
		}
		from = parsed
	}
	days := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 180 {
			days = n
		}
	}

	dates, err := h.svc.BookableDates(r.Context(), from, days)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(model.DateKey))
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": out})
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, &store.ValidationError{Field: "date", Reason: "is required"})
		return
	}
	duration := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, &store.ValidationError{Field: "durationMinutes", Reason: "must be an integer"})
			return
		}
		duration = n
	}

	starts, err := h.svc.CandidateSlots(r.Context(), date, duration)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		items = append(items, slotItem{
			StartTime: s.UTC().Format(time.RFC3339),
			EndTime:   s.Add(time.Duration(duration) * time.Minute).UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requesterID := requesterFrom(r)
	if requesterID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		RequesterID:     requesterID,
		Kind:            strings.TrimSpace(req.Kind),
		Date:            strings.TrimSpace(req.Date),
		Time:            strings.TrimSpace(req.Time),
		DurationMinutes: req.DurationMinutes,
		Purpose:         req.Purpose,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requesterID := requesterFrom(r)
	if requesterID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, &store.ValidationError{Field: "appointmentId", Reason: "is required"})
		return
	}

	appt, err := h.svc.CancelByRequester(r.Context(), req.AppointmentID, requesterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requesterID := requesterFrom(r)
	if requesterID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.svc.ListForRequester(r.Context(), requesterID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func requesterFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func toItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID:   a.ID,
		RequesterID:     a.RequesterID,
		Kind:            a.Kind,
		StartAt:         a.StartAt.UTC().Format(time.RFC3339),
		EndAt:           a.EndAt().UTC().Format(time.RFC3339),
		DurationMinutes: a.DurationMinutes,
		Purpose:         a.Purpose,
		Status:          a.Status,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps store error kinds to statuses so clients can branch:
// validation 400, not found 404, conflict 409, date unavailable 422.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case store.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "kind": "validation"})
	case store.IsDateUnavailable(err):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error(), "kind": "date_unavailable"})
	case store.IsSlotConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "kind": "slot_conflict"})
	case store.IsInvalidTransition(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "kind": "invalid_transition"})
	case errors.Is(err, store.ErrAppointmentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error(), "kind": "not_found"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error", "kind": "internal"})
	}
}
