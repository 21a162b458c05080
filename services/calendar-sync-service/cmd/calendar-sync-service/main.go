package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/memberhub/memberhub/libs/config"
	"github.com/memberhub/memberhub/libs/db"
	"github.com/memberhub/memberhub/libs/httpx"
	"github.com/memberhub/memberhub/libs/kafkax"
	otelx "github.com/memberhub/memberhub/libs/otel"
	"github.com/memberhub/memberhub/libs/runtime"
	"github.com/memberhub/memberhub/services/calendar-sync-service/internal/consumer"
	"github.com/memberhub/memberhub/services/calendar-sync-service/internal/handlers"
	"github.com/memberhub/memberhub/services/calendar-sync-service/internal/inbox"
	"github.com/memberhub/memberhub/services/calendar-sync-service/internal/jobs"
	"github.com/memberhub/memberhub/services/calendar-sync-service/internal/push"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type availabilityPayload struct {
	Date        string `json:"date"`
	IsAvailable bool   `json:"is_available"`
	Action      string `json:"action"`
	SetBy       string `json:"set_by"`
}

type appointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	RequesterID     string `json:"requester_id"`
	Kind            string `json:"kind"`
	StartAt         string `json:"start_at"`
	DurationMinutes int    `json:"duration_minutes"`
	PrevStatus      string `json:"prev_status"`
	Status          string `json:"status"`
}

func main() {
	service := config.String("SERVICE_NAME", "calendar-sync-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	jobsRepo := jobs.NewRepository()

	var pusher push.Pusher
	if url := strings.TrimSpace(config.String("CALENDAR_WEBHOOK_URL", "")); url != "" {
		pusher = push.NewHTTPPusher(url, config.String("CALENDAR_WEBHOOK_TOKEN", ""))
		logger.Info("calendar pusher enabled (webhook)", "url", url)
	} else {
		pusher = push.NewNoopPusher()
		logger.Info("calendar pusher disabled (noop)")
	}

	worker := jobs.NewWorker(pool, jobsRepo, pusher, logger, jobs.WorkerConfig{
		Interval:  time.Duration(config.Int("SYNC_INTERVAL_SECONDS", 2)) * time.Second,
		BatchSize: config.Int("SYNC_BATCH_SIZE", 50),
		Backoff:   config.Minutes("SYNC_BACKOFF_MINUTES", 1*time.Minute),
	})
	go worker.Run(ctx)

	enqueue := func(ctx context.Context, key string, job jobs.Job) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		job.IdempotencyKey = key
		if err := jobsRepo.Insert(ctx, tx, job); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "calendar-sync-service"),
			Topic:   topic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, cfg, handler)
		go eventConsumer.Run(ctx)
	}

	startConsumer(config.String("KAFKA_AVAILABILITY_TOPIC", "scheduling.availability.changed.v1"), func(ctx context.Context, msg kafka.Message) error {
		var payload availabilityPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid availability payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.Date == "" || payload.Action == "" {
			logger.Error("missing availability fields", "topic", msg.Topic)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)
		return enqueue(ctx, meta.EventID, jobs.Job{
			AggregateID: payload.Date,
			Action:      payload.Action,
			Payload: map[string]any{
				"date":         payload.Date,
				"is_available": payload.IsAvailable,
				"set_by":       payload.SetBy,
			},
		})
	})

	startConsumer(config.String("KAFKA_APPOINTMENT_TOPIC", "scheduling.appointment.status.changed.v1"), func(ctx context.Context, msg kafka.Message) error {
		var payload appointmentPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid appointment payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" || payload.Status == "" {
			logger.Error("missing appointment fields", "topic", msg.Topic)
			return nil
		}

		action := "sync_appointment"
		if payload.Status == "cancelled" || payload.Status == "rejected" {
			action = "remove_appointment"
		}

		meta := kafkax.ExtractEventMeta(msg)
		return enqueue(ctx, meta.EventID, jobs.Job{
			AggregateID: payload.AppointmentID,
			Action:      action,
			Payload: map[string]any{
				"appointment_id":   payload.AppointmentID,
				"requester_id":     payload.RequesterID,
				"kind":             payload.Kind,
				"start_at":         payload.StartAt,
				"duration_minutes": payload.DurationMinutes,
				"status":           payload.Status,
			},
		})
	})

	warningsHandler := handlers.NewWarningsHandler(pool, jobsRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/sync/warnings", warningsHandler.List)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "calendar-sync")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
