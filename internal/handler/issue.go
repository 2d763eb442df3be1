package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/service"
)

// IssueHandler mints approval tokens on behalf of the reporting pipeline.
type IssueHandler struct {
	svc    service.ApprovalService
	logger *slog.Logger
}

func NewIssueHandler(svc service.ApprovalService, logger *slog.Logger) *IssueHandler {
	return &IssueHandler{svc: svc, logger: logger}
}

type issueRequest struct {
	SubjectID    string `json:"subject_id"`
	ItemID       string `json:"item_id"`
	RecipientRef string `json:"recipient_ref"`
}

// Handle processes POST /approvals.
func (h *IssueHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for token issuance")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	issued, err := h.svc.IssueToken(r.Context(), req.SubjectID, req.ItemID, req.RecipientRef)
	if err != nil {
		if appErr.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("IssueToken failed",
			slog.String("subject_id", req.SubjectID),
			slog.String("item_id", req.ItemID),
			slog.Any("error", err))
		http.Error(w, "failed to issue approval token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(issued)
}
