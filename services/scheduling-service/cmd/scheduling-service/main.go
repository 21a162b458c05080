package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/memberhub/memberhub/libs/auth"
	"github.com/memberhub/memberhub/libs/config"
	"github.com/memberhub/memberhub/libs/db"
	"github.com/memberhub/memberhub/libs/httpx"
	"github.com/memberhub/memberhub/libs/kafkax"
	otelx "github.com/memberhub/memberhub/libs/otel"
	"github.com/memberhub/memberhub/libs/runtime"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/booking"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/directory"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/handlers"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/outbox"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/slots"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8083")
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

	loc, err := time.LoadLocation(config.String("PORTAL_TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid PORTAL_TIMEZONE; using UTC", "err", err)
		loc = time.UTC
	}
	grid, err := gridFromEnv()
	if err != nil {
		panic(err)
	}

	outboxRepo := outbox.NewRepository(pool)
	st := postgres.NewStore(pool, outboxRepo, postgres.Options{
		Step:     grid.Step,
		Location: loc,
	})

	dirProvider, err := directory.NewProvider(config.String("DIRECTORY_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("directory provider init failed; standing checks disabled", "err", err)
		dirProvider = nil
	}

	svc := booking.NewService(st, dirProvider, logger, booking.Config{
		Grid:     grid,
		Location: loc,
	})

	if err := startGrpcServer(ctx, logger, svc); err != nil {
		logger.Error("grpc server init failed", "err", err)
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(svc, logger)
	adminHandler := handlers.NewAdminHandler(svc, logger)

	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksTTL := config.Int("JWKS_CACHE_SECONDS", 300)
		if jwksTTL <= 0 {
			jwksTTL = 300
		}
		jwksClient = auth.NewJWKSClient(jwksURL, time.Duration(jwksTTL)*time.Second)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	memberOnly := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h, jwtSecret, jwksClient)
	}
	staffOnly := func(h http.HandlerFunc) http.Handler {
		return requireAuth(requireRole(h, "staff", "admin"), jwtSecret, jwksClient)
	}

	mux.Handle("/api/v1/booking/dates", memberOnly(bookingHandler.Dates))
	mux.Handle("/api/v1/booking/slots", memberOnly(bookingHandler.Slots))
	mux.Handle("/api/v1/booking/appointments", memberOnly(byMethod(bookingHandler.List, bookingHandler.Book)))
	mux.Handle("/api/v1/booking/appointments/cancel", memberOnly(bookingHandler.Cancel))

	mux.Handle("/api/v1/admin/availability", staffOnly(byMethod(adminHandler.ListAvailability, adminHandler.SetAvailability)))
	mux.Handle("/api/v1/admin/appointments", staffOnly(adminHandler.Schedule))
	mux.Handle("/api/v1/admin/appointments/decide", staffOnly(adminHandler.Decide))
	mux.Handle("/api/v1/admin/appointments/complete", staffOnly(adminHandler.Complete))
	mux.Handle("/api/v1/admin/appointments/cancel", staffOnly(adminHandler.Cancel))

	var rateLimitMW httpx.Middleware
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "scheduling")
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

func gridFromEnv() (slots.Grid, error) {
	openHour, openMinute, err := config.ClockTime("BOOKING_OPEN", "09:00")
	if err != nil {
		return slots.Grid{}, err
	}
	closeHour, closeMinute, err := config.ClockTime("BOOKING_CLOSE", "17:00")
	if err != nil {
		return slots.Grid{}, err
	}
	return slots.Grid{
		OpenHour:    openHour,
		OpenMinute:  openMinute,
		CloseHour:   closeHour,
		CloseMinute: closeMinute,
		Step:        config.Minutes("SLOT_STEP_MINUTES", 30*time.Minute),
	}, nil
}

// byMethod splits one route between its read and write handlers.
func byMethod(get, post http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			get(w, r)
		case http.MethodPost:
			post(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
