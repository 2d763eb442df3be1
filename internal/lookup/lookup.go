package lookup

import (
	"context"
	"log/slog"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/model"
	"github.com/cvdexinfo/acta-approval/internal/storage"
)

// Strategy resolves an opaque approval token to its owning record. The
// strategy is fixed at configuration time; it is never picked per call by
// probing the backend for an index.
type Strategy interface {
	Resolve(ctx context.Context, token string) (model.DecisionRecord, error)
}

// ForConfig selects the indexed lookup when a token index is configured and
// the full-scan fallback otherwise.
func ForConfig(tokenIndexName string, store storage.DecisionStore, logger *slog.Logger) Strategy {
	if tokenIndexName != "" {
		return NewIndexedLookup(store, logger)
	}
	logger.Warn("no token index configured, token lookups fall back to a full scan")
	return NewFullScanLookup(store, logger, defaultScanPageSize)
}

const defaultScanPageSize = 250

// IndexedLookup queries the secondary index keyed by approval_token.
type IndexedLookup struct {
	store  storage.DecisionStore
	logger *slog.Logger
}

func NewIndexedLookup(store storage.DecisionStore, logger *slog.Logger) *IndexedLookup {
	return &IndexedLookup{
		store:  store,
		logger: logger.With("layer", "lookup", "strategy", "indexed"),
	}
}

func (l *IndexedLookup) Resolve(ctx context.Context, token string) (model.DecisionRecord, error) {
	recs, err := l.store.FindByToken(ctx, token)
	if err != nil {
		return model.DecisionRecord{}, err
	}
	if len(recs) == 0 {
		return model.DecisionRecord{}, appErr.NewNotFound("token does not resolve to a record")
	}
	if len(recs) > 1 {
		// Data anomaly: tokens are supposed to be unique across live
		// records. Use the first match, keep serving.
		l.logger.Warn("multiple records share an approval token",
			slog.String("subject_id", recs[0].SubjectID),
			slog.String("item_id", recs[0].ItemID))
	}
	return recs[0], nil
}

// FullScanLookup walks the whole store filtering by token equality. Degraded
// path for deployments without a token index; fine at sweep-level call
// volume, not for interactive traffic at scale.
type FullScanLookup struct {
	store    storage.DecisionStore
	logger   *slog.Logger
	pageSize int
}

func NewFullScanLookup(store storage.DecisionStore, logger *slog.Logger, pageSize int) *FullScanLookup {
	if pageSize <= 0 {
		pageSize = defaultScanPageSize
	}
	return &FullScanLookup{
		store:    store,
		logger:   logger.With("layer", "lookup", "strategy", "fullscan"),
		pageSize: pageSize,
	}
}

func (l *FullScanLookup) Resolve(ctx context.Context, token string) (model.DecisionRecord, error) {
	var after model.RecordKey
	for {
		page, err := l.store.ScanPage(ctx, after, l.pageSize)
		if err != nil {
			return model.DecisionRecord{}, err
		}
		for _, rec := range page {
			if rec.ApprovalToken == token {
				return rec, nil
			}
		}
		if len(page) < l.pageSize {
			return model.DecisionRecord{}, appErr.NewNotFound("token does not resolve to a record")
		}
		after = page[len(page)-1].Key()
	}
}
