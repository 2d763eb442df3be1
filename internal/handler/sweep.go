package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cvdexinfo/acta-approval/internal/sweeper"
)

// SweepRunner is the part of the sweeper the trigger endpoint needs.
type SweepRunner interface {
	Run(ctx context.Context) (sweeper.Summary, error)
}

// SweepHandler exposes a manual trigger next to the scheduled runs.
type SweepHandler struct {
	runner SweepRunner
	logger *slog.Logger
}

func NewSweepHandler(runner SweepRunner, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{runner: runner, logger: logger}
}

type sweepResponse struct {
	RecordsTransitioned int     `json:"records_transitioned"`
	ElapsedSeconds      float64 `json:"elapsed_seconds"`
}

// Handle processes POST /sweep.
func (h *SweepHandler) Handle(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.Run(r.Context())
	if err != nil {
		h.logger.Error("manual sweep failed", slog.Any("error", err))
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sweepResponse{
		RecordsTransitioned: summary.Transitioned,
		ElapsedSeconds:      summary.Elapsed.Seconds(),
	})
}
