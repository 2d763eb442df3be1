package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/model"
)

// MemoryStore is an in-memory DecisionStore with the same compare-and-set
// semantics as the Postgres store. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[model.RecordKey]model.DecisionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[model.RecordKey]model.DecisionRecord)}
}

func (ms *MemoryStore) Ping(ctx context.Context) error { return nil }

func (ms *MemoryStore) Get(ctx context.Context, subjectID, itemID string) (model.DecisionRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, ok := ms.records[model.RecordKey{SubjectID: subjectID, ItemID: itemID}]
	if !ok {
		return model.DecisionRecord{}, appErr.NewNotFound("record %s/%s", subjectID, itemID)
	}
	return rec, nil
}

func (ms *MemoryStore) PutNew(ctx context.Context, subjectID, itemID, token string, sentAt time.Time) (model.DecisionRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec := model.DecisionRecord{
		SubjectID:     subjectID,
		ItemID:        itemID,
		ApprovalToken: token,
		Status:        model.StatusPending,
		SentAt:        sentAt,
	}
	ms.records[rec.Key()] = rec
	return rec, nil
}

func (ms *MemoryStore) Transition(ctx context.Context, subjectID, itemID string, from, to model.Status, decidedAt time.Time, comment string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if from.Terminal() {
		return appErr.NewConflict("no transition is legal out of terminal state %s", from)
	}

	key := model.RecordKey{SubjectID: subjectID, ItemID: itemID}
	rec, ok := ms.records[key]
	if !ok {
		return appErr.NewNotFound("record %s/%s", subjectID, itemID)
	}
	if rec.Status != from {
		return appErr.NewConflict("record %s/%s is %s, expected %s", subjectID, itemID, rec.Status, from)
	}

	rec.Status = to
	rec.DecidedAt = &decidedAt
	rec.Comment = comment
	ms.records[key] = rec
	return nil
}

func (ms *MemoryStore) ScanPendingOlderThan(ctx context.Context, cutoff time.Time, after model.RecordKey, limit int) ([]model.DecisionRecord, error) {
	return ms.page(after, limit, func(rec model.DecisionRecord) bool {
		return rec.Status == model.StatusPending && !rec.SentAt.After(cutoff)
	})
}

func (ms *MemoryStore) FindByToken(ctx context.Context, token string) ([]model.DecisionRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []model.DecisionRecord
	for _, rec := range ms.records {
		if rec.ApprovalToken == token {
			out = append(out, rec)
			if len(out) == 2 {
				break
			}
		}
	}
	return out, nil
}

func (ms *MemoryStore) ScanPage(ctx context.Context, after model.RecordKey, limit int) ([]model.DecisionRecord, error) {
	return ms.page(after, limit, func(model.DecisionRecord) bool { return true })
}

func keyLess(a, b model.RecordKey) bool {
	if a.SubjectID != b.SubjectID {
		return a.SubjectID < b.SubjectID
	}
	return a.ItemID < b.ItemID
}

func (ms *MemoryStore) page(after model.RecordKey, limit int, match func(model.DecisionRecord) bool) ([]model.DecisionRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	keys := make([]model.RecordKey, 0, len(ms.records))
	for key := range ms.records {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	var out []model.DecisionRecord
	for _, key := range keys {
		if !keyLess(after, key) {
			continue
		}
		rec := ms.records[key]
		if !match(rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
