package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/memberhub/memberhub/libs/db"
	otelx "github.com/memberhub/memberhub/libs/otel"
)

// Job is one pending push to the external calendar. IdempotencyKey is the
// source event id, so redelivered events collapse into one job.
type Job struct {
	ID             int64
	IdempotencyKey string
	AggregateID    string
	Action         string
	Payload        map[string]any
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

// Warning is a sync job that exhausted its attempts. The external calendar
// is best-effort: these are surfaced to staff, never bounced back into the
// booking flow.
type Warning struct {
	JobID       int64
	AggregateID string
	Action      string
	Attempts    int
	LastError   string
	FailedAt    time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO sync_jobs (idempotency_key, aggregate_id, action, payload, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, now(), $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.IdempotencyKey, job.AggregateID, job.Action, payload, traceparent, tracestate)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, idempotency_key, aggregate_id, action, payload, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM sync_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var raw []byte
		if err := rows.Scan(&j.ID, &j.IdempotencyKey, &j.AggregateID, &j.Action, &raw, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &j.Payload); err != nil {
				return nil, err
			}
		} else {
			j.Payload = map[string]any{}
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE sync_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := "pending"
	if attempts >= maxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE sync_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}

// ListWarnings returns terminally failed jobs, newest first.
func (r *Repository) ListWarnings(ctx context.Context, pool *db.Pool, limit int) ([]Warning, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pool.Query(ctx, `
		SELECT id, aggregate_id, action, attempts, COALESCE(last_error, ''), updated_at
		FROM sync_jobs
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []Warning
	for rows.Next() {
		var w Warning
		if err := rows.Scan(&w.JobID, &w.AggregateID, &w.Action, &w.Attempts, &w.LastError, &w.FailedAt); err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return warnings, nil
}
