package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/handlers"
	"github.com/slotwise/slotwise/internal/metrics"
	"github.com/slotwise/slotwise/internal/outbox"
	"github.com/slotwise/slotwise/internal/store/postgres"
	"github.com/slotwise/slotwise/internal/worker"
	"github.com/slotwise/slotwise/libs/config"
	"github.com/slotwise/slotwise/libs/db"
	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/libs/kafkax"
	"github.com/slotwise/slotwise/libs/otelx"
	"github.com/slotwise/slotwise/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "slotwise")
	port, err := config.Port("PORT", "8080")
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

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	outboxRepo := outbox.NewRepository(pool)
	scheduleRepo := postgres.NewScheduleRepo(pool)
	bookingRepo := postgres.NewBookingRepo(pool, outboxRepo)
	recurringRepo := postgres.NewRecurringRepo(pool, outboxRepo)

	engineOpts := []engine.Option{engine.WithMetrics(m)}
	publicLimiter := httpx.NewRateLimiter(
		config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute).Middleware()
	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		engineOpts = append(engineOpts, engine.WithLocker(
			engine.NewRedisLocker(rdb, config.Duration("BOOKING_LOCK_TTL", 5*time.Second))))
		publicLimiter = httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, "rl:public").Middleware(logger, true)
		defer rdb.Close()
	}

	eng := engine.New(scheduleRepo, bookingRepo, recurringRepo, logger, engineOpts...)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		Metrics:   m,
	})
	go outboxPublisher.Run(ctx)

	materializer := worker.New(recurringRepo, eng, logger, worker.Config{
		Interval:  config.Duration("MATERIALIZE_EVERY", time.Minute),
		Horizon:   config.Duration("MATERIALIZE_HORIZON", 14*24*time.Hour),
		BatchSize: config.Int("MATERIALIZE_BATCH_SIZE", 100),
	})
	go materializer.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(eng, logger)
	providerHandler := handlers.NewProviderHandler(scheduleRepo, eng, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", metrics.Handler(registry))

	public := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, publicLimiter)
	}
	mux.Handle("/api/v1/public/slots", public(bookingHandler.Slots))
	mux.Handle("/api/v1/public/availability", public(bookingHandler.Availability))
	mux.Handle("/api/v1/public/book", public(bookingHandler.Book))

	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)

	mux.HandleFunc("/api/v1/provider/profile", providerHandler.Profile)
	mux.HandleFunc("/api/v1/provider/working-hours", providerHandler.WorkingHours)
	mux.HandleFunc("/api/v1/provider/time-blocks", providerHandler.TimeBlocks)
	mux.HandleFunc("/api/v1/provider/services", providerHandler.Services)
	mux.HandleFunc("/api/v1/provider/recurring-bookings", providerHandler.Recurring)
	mux.HandleFunc("/api/v1/provider/recurring-bookings/status", providerHandler.RecurringStatus)
	mux.HandleFunc("/api/v1/provider/recurring-bookings/materialize", providerHandler.Materialize)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
