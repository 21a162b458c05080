package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/memberhub/memberhub/libs/db"
	otelx "github.com/memberhub/memberhub/libs/otel"
	"github.com/memberhub/memberhub/services/calendar-sync-service/internal/push"
)

// Worker drains due sync jobs and pushes them to the external calendar.
// A push failure reschedules the job with backoff; after max attempts the
// job lands in failed status and shows up on the warnings endpoint.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	pusher    push.Pusher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, pusher push.Pusher, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		pusher:    pusher,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("sync batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		if err := w.pusher.Push(jobCtx, job.Action, job.Payload); err != nil {
			attempts := job.Attempts + 1
			nextRunAt := time.Now().UTC().Add(w.backoff * time.Duration(attempts))
			if markErr := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, err.Error()); markErr != nil {
				return markErr
			}
			if attempts >= job.MaxAttempts {
				w.logger.Error("sync job exhausted",
					"job_id", job.ID,
					"aggregate_id", job.AggregateID,
					"action", job.Action,
					"attempts", attempts,
					"err", err,
				)
			} else {
				w.logger.Warn("sync push failed; will retry",
					"job_id", job.ID,
					"action", job.Action,
					"attempts", attempts,
					"err", err,
				)
			}
			continue
		}
		done = append(done, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, done); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
