package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cvdexinfo/acta-approval/internal/handler"
	customMiddleware "github.com/cvdexinfo/acta-approval/internal/middleware"
)

func NewRouter(cb *handler.CallbackHandler, issue *handler.IssueHandler, sweep *handler.SweepHandler, health *handler.HealthHandler) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(customMiddleware.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Human-facing decision link; method-agnostic in spirit, GET because it
	// is clicked from an email.
	r.Get("/approve", cb.Handle)

	r.Post("/approvals", issue.Handle)
	r.Post("/sweep", sweep.Handle)

	// Health & Readiness Routes
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
