package storage

import (
	"context"
	"time"

	"github.com/cvdexinfo/acta-approval/internal/model"
)

// DecisionStore is durable keyed storage for decision records. The only
// mutation discipline is per-record compare-and-set: Transition succeeds iff
// the record's current status equals from. There is no other locking.
type DecisionStore interface {
	Ping(ctx context.Context) error

	Get(ctx context.Context, subjectID, itemID string) (model.DecisionRecord, error)

	// PutNew creates or overwrites the record for (subjectID, itemID) with
	// status PENDING and a fresh token, clearing any prior decision.
	PutNew(ctx context.Context, subjectID, itemID, token string, sentAt time.Time) (model.DecisionRecord, error)

	// Transition applies the conditional write. Returns ErrConflict when the
	// current status differs from from, ErrNotFound when no record exists.
	Transition(ctx context.Context, subjectID, itemID string, from, to model.Status, decidedAt time.Time, comment string) error

	// ScanPendingOlderThan returns one page of PENDING records with
	// sent_at <= cutoff, ordered by (subject_id, item_id), starting after
	// the given key. An empty page ends the scan.
	ScanPendingOlderThan(ctx context.Context, cutoff time.Time, after model.RecordKey, limit int) ([]model.DecisionRecord, error)

	// FindByToken is the indexed token lookup. It returns up to two rows so
	// the caller can detect a uniqueness anomaly.
	FindByToken(ctx context.Context, token string) ([]model.DecisionRecord, error)

	// ScanPage returns one page of all records ordered by (subject_id,
	// item_id), for the degraded full-scan lookup path.
	ScanPage(ctx context.Context, after model.RecordKey, limit int) ([]model.DecisionRecord, error)
}
