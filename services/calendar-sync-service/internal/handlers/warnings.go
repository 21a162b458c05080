package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/memberhub/memberhub/libs/db"
	"github.com/memberhub/memberhub/services/calendar-sync-service/internal/jobs"
)

// WarningsHandler exposes terminally failed sync jobs so staff can see
// which calendar pushes never made it out.
type WarningsHandler struct {
	pool   *db.Pool
	repo   *jobs.Repository
	logger *slog.Logger
}

func NewWarningsHandler(pool *db.Pool, repo *jobs.Repository, logger *slog.Logger) *WarningsHandler {
	return &WarningsHandler{pool: pool, repo: repo, logger: logger}
}

type warningItem struct {
	JobID       int64  `json:"job_id"`
	AggregateID string `json:"aggregate_id"`
	Action      string `json:"action"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error"`
	FailedAt    string `json:"failed_at"`
}

func (h *WarningsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	warnings, err := h.repo.ListWarnings(r.Context(), h.pool, limit)
	if err != nil {
		h.logger.Error("warnings query failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	items := make([]warningItem, 0, len(warnings))
	for _, warning := range warnings {
		items = append(items, warningItem{
			JobID:       warning.JobID,
			AggregateID: warning.AggregateID,
			Action:      warning.Action,
			Attempts:    warning.Attempts,
			LastError:   warning.LastError,
			FailedAt:    warning.FailedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"warnings": items})
}
