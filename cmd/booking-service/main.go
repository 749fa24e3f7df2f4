package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agendaclin/agendaclin/internal/booking"
	"github.com/agendaclin/agendaclin/internal/handlers"
	"github.com/agendaclin/agendaclin/internal/outbox"
	"github.com/agendaclin/agendaclin/internal/storage"
	"github.com/agendaclin/agendaclin/libs/config"
	"github.com/agendaclin/agendaclin/libs/db"
	"github.com/agendaclin/agendaclin/libs/httpx"
	"github.com/agendaclin/agendaclin/libs/kafkax"
	otelx "github.com/agendaclin/agendaclin/libs/otel"
	"github.com/agendaclin/agendaclin/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
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

	tzName := config.String("CLINIC_TIMEZONE", "America/Sao_Paulo")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		logger.Error("invalid clinic timezone; using local", "timezone", tzName, "err", err)
		loc = time.Local
	}

	appointmentRepo := storage.NewAppointmentRepository(pool)
	practitionerRepo := storage.NewPractitionerRepository(pool)
	patientRepo := storage.NewPatientRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	policy := booking.Policy{
		MinAdvance:      config.Hours("MIN_ADVANCE_BOOKING_HOURS", 24),
		MaxAdvance:      config.Days("MAX_ADVANCE_BOOKING_DAYS", 90),
		DefaultDuration: config.Minutes("DEFAULT_CONSULTATION_DURATION_MINUTES", 30),
		SlotInterval:    config.Minutes("CONSULTATION_INTERVAL_MINUTES", 30),
	}
	engine := booking.NewEngine(appointmentRepo, practitionerRepo, practitionerRepo, policy, logger, loc)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	appointmentHandler := handlers.NewAppointmentHandler(engine, appointmentRepo, outboxRepo, logger)
	directoryHandler := handlers.NewDirectoryHandler(practitionerRepo, logger)
	patientHandler := handlers.NewPatientHandler(patientRepo, logger)

	// Public booking endpoints sit behind a per-client rate limit; Redis when
	// available so replicas share the window, in-process otherwise.
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var limit httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		limit = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service).Middleware(logger, true)
	} else {
		limit = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}
	limited := func(h http.HandlerFunc) http.Handler { return limit(h) }

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("/api/v1/public/slots", limited(appointmentHandler.Slots))
	mux.Handle("/api/v1/appointments", limited(appointmentHandler.Appointments))
	mux.HandleFunc("/api/v1/appointments/reschedule", appointmentHandler.Reschedule)
	mux.HandleFunc("/api/v1/appointments/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/confirm", appointmentHandler.Confirm)
	mux.HandleFunc("/api/v1/practitioners", directoryHandler.Practitioners)
	mux.HandleFunc("/api/v1/practitioners/windows", directoryHandler.Windows)
	mux.HandleFunc("/api/v1/specialties", directoryHandler.Specialties)
	mux.HandleFunc("/api/v1/patients", patientHandler.Patients)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", loc.String())
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

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
