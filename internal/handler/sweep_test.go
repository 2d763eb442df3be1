package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvdexinfo/acta-approval/internal/sweeper"
)

type fakeRunner struct {
	summary sweeper.Summary
	err     error
}

func (f fakeRunner) Run(context.Context) (sweeper.Summary, error) { return f.summary, f.err }

func TestSweepHandler(t *testing.T) {
	t.Run("reports the sweep summary", func(t *testing.T) {
		h := NewSweepHandler(fakeRunner{summary: sweeper.Summary{
			Transitioned: 3,
			Elapsed:      1500 * time.Millisecond,
		}}, slog.Default())

		req := httptest.NewRequest(http.MethodPost, "/sweep", nil)
		rr := httptest.NewRecorder()
		h.Handle(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			RecordsTransitioned int     `json:"records_transitioned"`
			ElapsedSeconds      float64 `json:"elapsed_seconds"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, 3, resp.RecordsTransitioned)
		assert.InDelta(t, 1.5, resp.ElapsedSeconds, 0.001)
	})

	t.Run("reports batch-level failure", func(t *testing.T) {
		h := NewSweepHandler(fakeRunner{err: fmt.Errorf("cannot scan")}, slog.Default())

		req := httptest.NewRequest(http.MethodPost, "/sweep", nil)
		rr := httptest.NewRecorder()
		h.Handle(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
