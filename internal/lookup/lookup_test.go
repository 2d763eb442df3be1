package lookup

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/storage"
)

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	ms := storage.NewMemoryStore()
	_, err := ms.PutNew(ctx, "S1", "I1", "token-abc", time.Now())
	require.NoError(t, err)
	_, err = ms.PutNew(ctx, "S2", "I2", "token-def", time.Now())
	require.NoError(t, err)
	_, err = ms.PutNew(ctx, "S3", "I3", "token-ghi", time.Now())
	require.NoError(t, err)
	return ms
}

func TestLookup_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ms := seededStore(t)
	logger := slog.Default()

	strategies := map[string]Strategy{
		"indexed": NewIndexedLookup(ms, logger),
		// Page size 1 forces the scan through every page boundary.
		"fullscan": NewFullScanLookup(ms, logger, 1),
	}

	for name, strat := range strategies {
		t.Run(name, func(t *testing.T) {
			rec, err := strat.Resolve(ctx, "token-def")
			require.NoError(t, err)
			assert.Equal(t, "S2", rec.SubjectID)
			assert.Equal(t, "I2", rec.ItemID)
			assert.Equal(t, "token-def", rec.ApprovalToken)
		})
	}
}

func TestLookup_UnknownToken(t *testing.T) {
	ctx := context.Background()
	ms := seededStore(t)
	logger := slog.Default()

	for name, strat := range map[string]Strategy{
		"indexed":  NewIndexedLookup(ms, logger),
		"fullscan": NewFullScanLookup(ms, logger, 2),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := strat.Resolve(ctx, "doesnotexist")
			require.True(t, appErr.IsNotFound(err))
		})
	}
}

func TestForConfig(t *testing.T) {
	ms := storage.NewMemoryStore()
	logger := slog.Default()

	assert.IsType(t, &IndexedLookup{}, ForConfig("approval_token_idx", ms, logger))
	assert.IsType(t, &FullScanLookup{}, ForConfig("", ms, logger))
}
