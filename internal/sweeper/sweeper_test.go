package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvdexinfo/acta-approval/internal/model"
	"github.com/cvdexinfo/acta-approval/internal/storage"
)

const (
	testTTL      = 5 * 24 * time.Hour
	testInterval = time.Hour
	testBudget   = time.Minute
)

func newTestSweeper(store storage.DecisionStore, pageSize int) *Sweeper {
	return New(store, slog.Default(), testTTL, testInterval, testBudget, pageSize)
}

func TestRun_Selectivity(t *testing.T) {
	ctx := context.Background()
	ms := storage.NewMemoryStore()
	now := time.Now()

	// Overdue and PENDING: must be auto-approved.
	ms.PutNew(ctx, "S1", "I1", "t1", now.Add(-10*24*time.Hour))
	// PENDING but recent: must be left alone.
	ms.PutNew(ctx, "S2", "I2", "t2", now.Add(-2*24*time.Hour))
	// Overdue but already decided: must be left alone.
	ms.PutNew(ctx, "S3", "I3", "t3", now.Add(-10*24*time.Hour))
	require.NoError(t, ms.Transition(ctx, "S3", "I3", model.StatusPending, model.StatusApproved, now, ""))

	summary, err := newTestSweeper(ms, 10).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Transitioned)
	assert.Equal(t, 0, summary.Conflicts)
	assert.Empty(t, summary.Failures)

	rec, err := ms.Get(ctx, "S1", "I1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAutoApproved, rec.Status)
	assert.Equal(t, AutoApproveComment, rec.Comment)
	require.NotNil(t, rec.DecidedAt)

	rec, err = ms.Get(ctx, "S2", "I2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)

	rec, err = ms.Get(ctx, "S3", "I3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, rec.Status)
}

func TestRun_PagesThroughLargeBacklogs(t *testing.T) {
	ctx := context.Background()
	ms := storage.NewMemoryStore()
	overdue := time.Now().Add(-10 * 24 * time.Hour)

	for i := 0; i < 7; i++ {
		ms.PutNew(ctx, fmt.Sprintf("S%02d", i), "I1", fmt.Sprintf("t%02d", i), overdue)
	}

	summary, err := newTestSweeper(ms, 2).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Transitioned)
}

func TestRun_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	ms := storage.NewMemoryStore()
	ms.PutNew(ctx, "S1", "I1", "t1", time.Now().Add(-10*24*time.Hour))

	swp := newTestSweeper(ms, 10)
	first, err := swp.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Transitioned)

	second, err := swp.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Transitioned, "already AUTO_APPROVED records are not touched again")
}

// lostRaceStore finalizes a record between the scan and the sweep write, the
// way a concurrent callback does.
type lostRaceStore struct {
	*storage.MemoryStore
	raceKey model.RecordKey
	raced   bool
}

func (s *lostRaceStore) Transition(ctx context.Context, subjectID, itemID string, from, to model.Status, decidedAt time.Time, comment string) error {
	key := model.RecordKey{SubjectID: subjectID, ItemID: itemID}
	if key == s.raceKey && !s.raced {
		s.raced = true
		// The callback wins first.
		if err := s.MemoryStore.Transition(ctx, subjectID, itemID, from, model.StatusRejected, decidedAt, "manual"); err != nil {
			return err
		}
	}
	return s.MemoryStore.Transition(ctx, subjectID, itemID, from, to, decidedAt, comment)
}

func TestRun_LostRaceIsSkippedSilently(t *testing.T) {
	ctx := context.Background()
	ms := storage.NewMemoryStore()
	overdue := time.Now().Add(-10 * 24 * time.Hour)
	ms.PutNew(ctx, "S1", "I1", "t1", overdue)
	ms.PutNew(ctx, "S2", "I2", "t2", overdue)

	store := &lostRaceStore{MemoryStore: ms, raceKey: model.RecordKey{SubjectID: "S1", ItemID: "I1"}}
	summary, err := newTestSweeper(store, 10).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Transitioned)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Empty(t, summary.Failures)

	rec, err := ms.Get(ctx, "S1", "I1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rec.Status, "the manual decision must stand")
}

// brokenRecordStore fails every write for one record.
type brokenRecordStore struct {
	*storage.MemoryStore
	badKey model.RecordKey
}

func (s *brokenRecordStore) Transition(ctx context.Context, subjectID, itemID string, from, to model.Status, decidedAt time.Time, comment string) error {
	if (model.RecordKey{SubjectID: subjectID, ItemID: itemID}) == s.badKey {
		return fmt.Errorf("attribute mismatch on item")
	}
	return s.MemoryStore.Transition(ctx, subjectID, itemID, from, to, decidedAt, comment)
}

func TestRun_PartialFailureContinues(t *testing.T) {
	ctx := context.Background()
	ms := storage.NewMemoryStore()
	overdue := time.Now().Add(-10 * 24 * time.Hour)
	ms.PutNew(ctx, "S1", "I1", "t1", overdue)
	ms.PutNew(ctx, "S2", "I2", "t2", overdue)
	ms.PutNew(ctx, "S3", "I3", "t3", overdue)

	store := &brokenRecordStore{MemoryStore: ms, badKey: model.RecordKey{SubjectID: "S2", ItemID: "I2"}}
	summary, err := newTestSweeper(store, 10).Run(ctx)
	require.NoError(t, err, "one bad record must not abort the sweep")

	assert.Equal(t, 2, summary.Transitioned)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, model.RecordKey{SubjectID: "S2", ItemID: "I2"}, summary.Failures[0].Key)
}

// brokenScanStore cannot even start a scan.
type brokenScanStore struct {
	*storage.MemoryStore
}

func (s *brokenScanStore) ScanPendingOlderThan(ctx context.Context, cutoff time.Time, after model.RecordKey, limit int) ([]model.DecisionRecord, error) {
	return nil, fmt.Errorf("table missing")
}

func TestRun_ScanFailureIsFatalForTheRun(t *testing.T) {
	store := &brokenScanStore{MemoryStore: storage.NewMemoryStore()}
	summary, err := newTestSweeper(store, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, summary.Transitioned)
}
