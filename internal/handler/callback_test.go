package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvdexinfo/acta-approval/internal/lookup"
	"github.com/cvdexinfo/acta-approval/internal/model"
	"github.com/cvdexinfo/acta-approval/internal/service"
	"github.com/cvdexinfo/acta-approval/internal/storage"
)

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, model.ApprovalNotification) error { return nil }

func newCallbackFixture(t *testing.T) (*CallbackHandler, *storage.MemoryStore) {
	t.Helper()
	logger := slog.Default()
	ms := storage.NewMemoryStore()
	svc := service.NewApprovalService(ms, lookup.NewIndexedLookup(ms, logger), noopNotifier{}, "https://api.example.com/approve", logger)
	return NewCallbackHandler(svc, logger), ms
}

func TestCallbackHandler(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		prepare    func(t *testing.T, ms *storage.MemoryStore)
		url        string
		wantCode   int
		wantInBody string
		wantStatus model.Status
	}{
		{
			name: "approved decision renders confirmation",
			prepare: func(t *testing.T, ms *storage.MemoryStore) {
				_, err := ms.PutNew(ctx, "S1", "I1", "abc123", time.Now())
				require.NoError(t, err)
			},
			url:        "/approve?token=abc123&status=approved",
			wantCode:   http.StatusOK,
			wantInBody: "APPROVED",
			wantStatus: model.StatusApproved,
		},
		{
			name: "rejected decision with comment",
			prepare: func(t *testing.T, ms *storage.MemoryStore) {
				_, err := ms.PutNew(ctx, "S1", "I1", "abc123", time.Now())
				require.NoError(t, err)
			},
			url:        "/approve?token=abc123&status=rejected&comment=missing+scope",
			wantCode:   http.StatusOK,
			wantInBody: "REJECTED",
			wantStatus: model.StatusRejected,
		},
		{
			name:       "unknown token renders 404 page",
			prepare:    func(t *testing.T, ms *storage.MemoryStore) {},
			url:        "/approve?token=doesnotexist&status=approved",
			wantCode:   http.StatusNotFound,
			wantInBody: "no longer valid",
		},
		{
			name: "invalid status renders 400 page",
			prepare: func(t *testing.T, ms *storage.MemoryStore) {
				_, err := ms.PutNew(ctx, "S1", "I1", "abc123", time.Now())
				require.NoError(t, err)
			},
			url:        "/approve?token=abc123&status=maybe",
			wantCode:   http.StatusBadRequest,
			wantInBody: "Invalid request",
			wantStatus: model.StatusPending,
		},
		{
			name:       "missing token renders 400 page",
			prepare:    func(t *testing.T, ms *storage.MemoryStore) {},
			url:        "/approve?status=approved",
			wantCode:   http.StatusBadRequest,
			wantInBody: "Invalid request",
		},
		{
			name: "replayed link reports the recorded state",
			prepare: func(t *testing.T, ms *storage.MemoryStore) {
				_, err := ms.PutNew(ctx, "S1", "I1", "abc123", time.Now())
				require.NoError(t, err)
				require.NoError(t, ms.Transition(ctx, "S1", "I1", model.StatusPending, model.StatusApproved, time.Now(), ""))
			},
			url:        "/approve?token=abc123&status=rejected",
			wantCode:   http.StatusOK,
			wantInBody: "APPROVED",
			wantStatus: model.StatusApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ms := newCallbackFixture(t)
			tt.prepare(t, ms)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rr := httptest.NewRecorder()
			h.Handle(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
			assert.Contains(t, rr.Body.String(), tt.wantInBody)

			if tt.wantStatus != "" {
				rec, err := ms.Get(ctx, "S1", "I1")
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, rec.Status)
			}
		})
	}
}

func TestCallbackHandler_CommentIsPersisted(t *testing.T) {
	ctx := context.Background()
	h, ms := newCallbackFixture(t)
	_, err := ms.PutNew(ctx, "S1", "I1", "abc123", time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/approve?token=abc123&status=rejected&comment=not+in+budget", nil)
	rr := httptest.NewRecorder()
	h.Handle(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	rec, err := ms.Get(ctx, "S1", "I1")
	require.NoError(t, err)
	assert.Equal(t, "not in budget", rec.Comment)
}
