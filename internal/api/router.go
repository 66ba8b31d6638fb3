package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/healthfirst/provider-scheduling/internal/schedule"
)

type RouterConfig struct {
	Availability *schedule.AvailabilityService
	Booking      *schedule.BookingService
	Search       *schedule.SearchService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Registry     *prometheus.Registry
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Post("/availability", createAvailabilityHandler(cfg.Availability))
		r.Get("/availability", getProviderScheduleHandler(cfg.Availability))
		r.Delete("/availability/{availabilityID}", deleteWindowHandler(cfg.Availability))
		r.Put("/slots/{slotID}", updateSlotHandler(cfg.Availability))
		r.Delete("/slots/{slotID}", deleteSlotHandler(cfg.Availability))
	})

	r.Get("/availability/search", searchAvailabilityHandler(cfg.Search))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Booking))
		r.Get("/", listAppointmentsHandler(cfg.Booking))
		r.Get("/{reference}", getAppointmentHandler(cfg.Booking))
		r.Post("/{reference}/cancel", cancelAppointmentHandler(cfg.Booking))
	})

	return r
}
