package handler

import (
	"log/slog"
	"net/http"

	"github.com/cvdexinfo/acta-approval/internal/service"
)

type HealthHandler struct {
	svc    service.HealthService
	logger *slog.Logger
}

func NewHealthHandler(svc service.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{svc: svc, logger: logger}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Liveness(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Readiness(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", slog.Any("error", err))
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
