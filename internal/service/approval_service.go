package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/lookup"
	"github.com/cvdexinfo/acta-approval/internal/metrics"
	"github.com/cvdexinfo/acta-approval/internal/model"
	"github.com/cvdexinfo/acta-approval/internal/retry"
	"github.com/cvdexinfo/acta-approval/internal/storage"
)

// IssuedToken is the result of minting a new approval token.
type IssuedToken struct {
	Token      string `json:"token"`
	ApproveURL string `json:"approve_url"`
	RejectURL  string `json:"reject_url"`
}

// Notifier hands issued tokens to the external email sender.
type Notifier interface {
	Publish(ctx context.Context, notif model.ApprovalNotification) error
}

type ApprovalService interface {
	// IssueToken mints a fresh token for (subjectID, itemID), persists it
	// with status PENDING and returns the two callback URLs. Any previously
	// issued token for the same key stops resolving.
	IssueToken(ctx context.Context, subjectID, itemID, recipientRef string) (IssuedToken, error)

	// Decide applies a human decision addressed by token. A decision on an
	// already-terminal record is an idempotent no-op: the record's actual
	// final state is returned without error.
	Decide(ctx context.Context, token, decision, comment string) (model.DecisionRecord, error)
}

type approvalService struct {
	store           storage.DecisionStore
	tokens          lookup.Strategy
	notifier        Notifier
	callbackBaseURL string
	logger          *slog.Logger
	tracer          trace.Tracer
}

func NewApprovalService(store storage.DecisionStore, tokens lookup.Strategy, notifier Notifier, callbackBaseURL string, logger *slog.Logger) ApprovalService {
	l := logger.With("layer", "service", "component", "approvalService")
	return &approvalService{
		store:           store,
		tokens:          tokens,
		notifier:        notifier,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "?&"),
		logger:          l,
		tracer:          otel.Tracer("approval-service"),
	}
}

func (s *approvalService) IssueToken(ctx context.Context, subjectID, itemID, recipientRef string) (IssuedToken, error) {
	ctx, span := s.tracer.Start(ctx, "IssueToken")
	defer span.End()

	span.SetAttributes(
		attribute.String("record.subject_id", subjectID),
		attribute.String("record.item_id", itemID),
	)

	if subjectID == "" || itemID == "" {
		return IssuedToken{}, appErr.NewValidation("subject_id and item_id are required")
	}

	token := uuid.NewString()
	sentAt := time.Now().UTC()

	err := retry.Do(ctx, s.logger, "put record", func(ctx context.Context) error {
		_, err := s.store.PutNew(ctx, subjectID, itemID, token, sentAt)
		return err
	})
	if err != nil {
		s.logger.Error("failed to persist new token",
			slog.String("subject_id", subjectID),
			slog.String("item_id", itemID),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IssuedToken{}, err
	}

	issued := IssuedToken{
		Token:      token,
		ApproveURL: s.callbackURL(token, model.DecisionApproved),
		RejectURL:  s.callbackURL(token, model.DecisionRejected),
	}

	notif := model.ApprovalNotification{
		SubjectID:    subjectID,
		ItemID:       itemID,
		RecipientRef: recipientRef,
		Token:        token,
		ApproveURL:   issued.ApproveURL,
		RejectURL:    issued.RejectURL,
		Type:         model.NotificationTypeApprovalRequested,
		CreatedAt:    sentAt,
	}
	// The token is durable at this point; a lost notification only delays
	// the decision until the sweep. Log, don't fail the issuance.
	if err := s.notifier.Publish(ctx, notif); err != nil {
		s.logger.Error("failed to publish approval notification",
			slog.String("subject_id", subjectID),
			slog.String("item_id", itemID),
			slog.Any("error", err))
	}

	metrics.TokensIssued.Inc()
	s.logger.Info("token issued",
		slog.String("subject_id", subjectID),
		slog.String("item_id", itemID))
	return issued, nil
}

func (s *approvalService) callbackURL(token, decision string) string {
	sep := "?"
	if strings.Contains(s.callbackBaseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%stoken=%s&status=%s", s.callbackBaseURL, sep, url.QueryEscape(token), decision)
}

func (s *approvalService) Decide(ctx context.Context, token, decision, comment string) (model.DecisionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Decide")
	defer span.End()

	if token == "" {
		return model.DecisionRecord{}, appErr.NewValidation("missing token")
	}
	to, ok := model.StatusForDecision(decision)
	if !ok {
		return model.DecisionRecord{}, appErr.NewValidation("status must be %q or %q", model.DecisionApproved, model.DecisionRejected)
	}
	span.SetAttributes(attribute.String("decision", decision))

	var rec model.DecisionRecord
	err := retry.Do(ctx, s.logger, "resolve token", func(ctx context.Context) error {
		var err error
		rec, err = s.tokens.Resolve(ctx, token)
		return err
	})
	if err != nil {
		if appErr.IsNotFound(err) {
			s.logger.Warn("callback token did not resolve")
			return model.DecisionRecord{}, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.DecisionRecord{}, err
	}

	decidedAt := time.Now().UTC()
	err = retry.Do(ctx, s.logger, "transition record", func(ctx context.Context) error {
		return s.store.Transition(ctx, rec.SubjectID, rec.ItemID, model.StatusPending, to, decidedAt, comment)
	})
	switch {
	case err == nil:
		rec.Status = to
		rec.DecidedAt = &decidedAt
		rec.Comment = comment
		s.logger.Info("decision recorded",
			slog.String("subject_id", rec.SubjectID),
			slog.String("item_id", rec.ItemID),
			slog.String("status", string(to)))
		return rec, nil
	case appErr.IsConflict(err):
		// Another actor finalized the record first (a repeated click or the
		// sweeper). Report the actual terminal state instead of erroring.
		current, getErr := s.currentRecord(ctx, rec)
		if getErr != nil {
			span.RecordError(getErr)
			span.SetStatus(codes.Error, getErr.Error())
			return model.DecisionRecord{}, getErr
		}
		s.logger.Info("decision replayed on terminal record",
			slog.String("subject_id", rec.SubjectID),
			slog.String("item_id", rec.ItemID),
			slog.String("status", string(current.Status)))
		return current, nil
	case appErr.IsNotFound(err):
		return model.DecisionRecord{}, err
	default:
		s.logger.Error("failed to record decision",
			slog.String("subject_id", rec.SubjectID),
			slog.String("item_id", rec.ItemID),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.DecisionRecord{}, err
	}
}

func (s *approvalService) currentRecord(ctx context.Context, rec model.DecisionRecord) (model.DecisionRecord, error) {
	var current model.DecisionRecord
	err := retry.Do(ctx, s.logger, "get record", func(ctx context.Context) error {
		var err error
		current, err = s.store.Get(ctx, rec.SubjectID, rec.ItemID)
		return err
	})
	return current, err
}
