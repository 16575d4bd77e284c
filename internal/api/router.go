package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/kiosk-checkin/internal/checkin"
	"github.com/hackgods/kiosk-checkin/internal/directory"
	"github.com/hackgods/kiosk-checkin/internal/roster"
	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

type RosterBuilder interface {
	Build(ctx context.Context, q roster.Query) ([]roster.Entry, error)
}

type WaitAnalytics interface {
	Summary(ctx context.Context) (transition.WaitSummary, error)
}

type CheckinService interface {
	CheckIn(ctx context.Context, name checkin.Name) (int64, error)
	Prefill(ctx context.Context, appointmentID int64) (checkin.Demographics, error)
	Confirm(ctx context.Context, appointmentID int64, form checkin.Demographics) error
}

type RouterConfig struct {
	Webhook      http.Handler
	Roster       RosterBuilder
	Appointments directory.Resource
	Doctors      roster.Lister
	Analytics    WaitAnalytics
	Checkin      CheckinService
	Location     *time.Location
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Metrics      prometheus.Gatherer
	Logger       *logging.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Inbound events from the scheduling platform; the handler dispatches on method.
	r.Handle("/webhook", cfg.Webhook)
	r.Handle("/webhook/", cfg.Webhook)

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r.Get("/appointments", rosterHandler(cfg.Roster, loc))
	r.Patch("/appointments/{id}", patchAppointmentHandler(cfg.Appointments))
	r.Get("/welcome", welcomeHandler(cfg.Doctors, cfg.Analytics))
	r.Get("/analytics/wait-time", waitTimeHandler(cfg.Analytics))

	// Kiosk flow: checkin -> confirm -> thanks
	r.Post("/checkin", checkInHandler(cfg.Checkin))
	r.Get("/confirm/{id}", prefillHandler(cfg.Checkin))
	r.Post("/confirm/{id}", confirmHandler(cfg.Checkin))
	r.Get("/thanks", thanksHandler)

	return r
}
