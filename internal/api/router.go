package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

// AvailabilityService is the engine surface the handlers call.
type AvailabilityService interface {
	TimeSlots(ctx context.Context, providerID, meetingID uuid.UUID, date wallclock.Date) ([]schedule.Slot, error)
	AvailableDates(ctx context.Context, providerID uuid.UUID, horizonDays int) ([]wallclock.Date, error)
	CheckBookable(ctx context.Context, providerID, meetingID uuid.UUID, start, end time.Time) error

	PoolTimeSlots(ctx context.Context, poolID, meetingID uuid.UUID, date wallclock.Date) ([]schedule.Slot, error)
	PoolAvailableDates(ctx context.Context, poolID uuid.UUID, horizonDays int) ([]wallclock.Date, error)
	SelectPoolMember(ctx context.Context, poolID uuid.UUID, start, end time.Time) (uuid.UUID, bool, error)
	AssignPoolMember(ctx context.Context, poolID uuid.UUID, start, end time.Time) (uuid.UUID, error)
}

type RouterConfig struct {
	Service       AvailabilityService
	PostgresCheck Check
	RedisCheck    Check
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)

	health := NewHealthHandler(cfg.PostgresCheck, cfg.RedisCheck, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/providers/{id}", func(r chi.Router) {
		r.Get("/slots", providerSlotsHandler(cfg.Service))
		r.Get("/dates", providerDatesHandler(cfg.Service))
		r.Post("/validate", validateBookingHandler(cfg.Service))
	})

	r.Route("/pools/{id}", func(r chi.Router) {
		r.Get("/slots", poolSlotsHandler(cfg.Service))
		r.Get("/dates", poolDatesHandler(cfg.Service))
		r.Post("/select", selectMemberHandler(cfg.Service))
		r.Post("/assign", assignMemberHandler(cfg.Service))
	})

	return r
}
