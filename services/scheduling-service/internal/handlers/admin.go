package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/memberhub/memberhub/services/scheduling-service/internal/booking"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/model"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store"
)

// AdminHandler serves the staff API: availability management, the daily
// schedule view and lifecycle decisions. Routes behind it require the
// staff role.
type AdminHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewAdminHandler(svc *booking.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

type availabilityRequest struct {
	Date        string `json:"date"`
	IsAvailable *bool  `json:"is_available"`
}

type availabilityItem struct {
	Date        string `json:"date"`
	IsAvailable bool   `json:"is_available"`
	SetBy       string `json:"set_by,omitempty"`
}

func (h *AdminHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor := actorFrom(r)
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Date = strings.TrimSpace(req.Date)
	if req.Date == "" {
		writeError(w, &store.ValidationError{Field: "date", Reason: "is required"})
		return
	}
	if req.IsAvailable == nil {
		writeError(w, &store.ValidationError{Field: "isAvailable", Reason: "is required"})
		return
	}

	rec, activeCount, err := h.svc.SetAvailability(r.Context(), req.Date, *req.IsAvailable, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":                rec.Date.Format(model.DateKey),
		"is_available":        rec.IsAvailable,
		"active_appointments": activeCount,
	})
}

func (h *AdminHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
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
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	recs, err := h.svc.ListAvailability(r.Context(), from, days)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]availabilityItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, availabilityItem{
			Date:        rec.Date.Format(model.DateKey),
			IsAvailable: rec.IsAvailable,
			SetBy:       rec.SetBy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": items})
}

func (h *AdminHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, &store.ValidationError{Field: "date", Reason: "is required"})
		return
	}
	appts, err := h.svc.AppointmentsOnDate(r.Context(), date)
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

type decideRequest struct {
	AppointmentID string `json:"appointment_id"`
	Action        string `json:"action"`
}

func (h *AdminHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor := actorFrom(r)
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, &store.ValidationError{Field: "appointmentId", Reason: "is required"})
		return
	}

	appt, err := h.svc.Decide(r.Context(), req.AppointmentID, strings.TrimSpace(req.Action), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

type completeRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *AdminHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor := actorFrom(r)
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, &store.ValidationError{Field: "appointmentId", Reason: "is required"})
		return
	}

	appt, err := h.svc.Complete(r.Context(), req.AppointmentID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor := actorFrom(r)
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

	appt, err := h.svc.CancelByStaff(r.Context(), req.AppointmentID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func actorFrom(r *http.Request) string {
	if name := strings.TrimSpace(r.Header.Get("X-User-Name")); name != "" {
		return name
	}
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}
