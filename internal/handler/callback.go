package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/metrics"
	"github.com/cvdexinfo/acta-approval/internal/model"
	"github.com/cvdexinfo/acta-approval/internal/service"
)

const brandColor = "#4AC795"

// Branded confirmation page, shown whatever the outcome.
var confirmationTpl = template.Must(template.New("confirmation").Parse(`<html>
  <body style="font-family:Verdana; text-align:center; margin-top:40px">
    <h2 style="color:{{.Color}}">{{.Title}}</h2>
    <p>{{.Message}}</p>
  </body>
</html>`))

type confirmationPage struct {
	Color   string
	Title   string
	Message template.HTML
}

// CallbackHandler serves the link a stakeholder clicks in the approval email.
type CallbackHandler struct {
	svc    service.ApprovalService
	logger *slog.Logger
}

func NewCallbackHandler(svc service.ApprovalService, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{svc: svc, logger: logger}
}

// Handle processes GET /approve?token=...&status=approved|rejected&comment=...
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	decision := q.Get("status")
	comment := q.Get("comment")

	rec, err := h.svc.Decide(r.Context(), token, decision, comment)
	if err != nil {
		switch {
		case appErr.IsValidation(err):
			metrics.CallbackDecisions.WithLabelValues("invalid").Inc()
			h.render(w, http.StatusBadRequest, "Invalid request",
				"Missing or incorrect parameters in the URL.")
		case appErr.IsNotFound(err):
			metrics.CallbackDecisions.WithLabelValues("not_found").Inc()
			h.render(w, http.StatusNotFound, "Token not found",
				"This approval link is no longer valid.")
		default:
			metrics.CallbackDecisions.WithLabelValues("error").Inc()
			h.logger.Error("decision callback failed", slog.Any("error", err))
			h.render(w, http.StatusInternalServerError, "Something went wrong",
				"We could not record your decision. Please try the link again later.")
		}
		return
	}

	metrics.CallbackDecisions.WithLabelValues(outcomeLabel(rec.Status, decision)).Inc()
	h.render(w, http.StatusOK, "Thank you for your response",
		fmt.Sprintf("The Acta has been successfully marked as <b>%s</b>.", template.HTMLEscapeString(string(rec.Status))))
}

// outcomeLabel distinguishes a fresh decision from an idempotent replay of an
// already-finalized record.
func outcomeLabel(final model.Status, decision string) string {
	if to, ok := model.StatusForDecision(decision); ok && to == final {
		return decision
	}
	return "replayed"
}

func (h *CallbackHandler) render(w http.ResponseWriter, code int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)

	page := confirmationPage{Color: brandColor, Title: title, Message: template.HTML(message)}
	if err := confirmationTpl.Execute(w, page); err != nil {
		h.logger.Error("failed to render confirmation page", slog.Any("error", err))
	}
}
