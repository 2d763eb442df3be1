package sweeper

import (
	"context"
	"log/slog"
	"time"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
	"github.com/cvdexinfo/acta-approval/internal/metrics"
	"github.com/cvdexinfo/acta-approval/internal/model"
	"github.com/cvdexinfo/acta-approval/internal/retry"
	"github.com/cvdexinfo/acta-approval/internal/storage"
)

// AutoApproveComment is written on every sweep transition.
const AutoApproveComment = "auto-approved after timeout"

// RecordFailure is one record the sweep could not transition. Failures never
// abort the run; they are collected into the summary.
type RecordFailure struct {
	Key model.RecordKey
	Err error
}

// Summary is the observable outcome of one sweep run.
type Summary struct {
	Transitioned int
	Conflicts    int
	Failures     []RecordFailure
	Elapsed      time.Duration
}

// Sweeper forces AUTO_APPROVED onto records stuck PENDING past the TTL. It
// races manual callbacks; the conditional transition decides every race.
type Sweeper struct {
	store    storage.DecisionStore
	logger   *slog.Logger
	ttl      time.Duration
	interval time.Duration
	budget   time.Duration
	pageSize int
}

func New(store storage.DecisionStore, logger *slog.Logger, ttl, interval, budget time.Duration, pageSize int) *Sweeper {
	return &Sweeper{
		store:    store,
		logger:   logger.With("layer", "sweeper"),
		ttl:      ttl,
		interval: interval,
		budget:   budget,
		pageSize: pageSize,
	}
}

// Start runs sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Sweeper started",
		slog.Duration("ttl", s.ttl),
		slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("sweep run failed", slog.Any("error", err))
			}
		}
	}
}

// Run performs one sweep under the wall-clock budget. The scan is stateless
// between runs: anything left behind by an exhausted budget is still PENDING
// and still overdue, so the next run picks it up.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	cutoff := start.UTC().Add(-s.ttl)
	s.logger.Info("sweep started", slog.Time("cutoff", cutoff))

	var summary Summary
	var after model.RecordKey
	for {
		var page []model.DecisionRecord
		err := retry.Do(ctx, s.logger, "scan pending records", func(ctx context.Context) error {
			var err error
			page, err = s.store.ScanPendingOlderThan(ctx, cutoff, after, s.pageSize)
			return err
		})
		if err != nil {
			// Cannot even scan: fatal for this run, work stays for the next.
			summary.Elapsed = time.Since(start)
			metrics.SweepDuration.Observe(summary.Elapsed.Seconds())
			return summary, err
		}
		if len(page) == 0 {
			break
		}

		for _, rec := range page {
			if ctx.Err() != nil {
				break
			}
			s.sweepRecord(ctx, rec, &summary)
		}

		if ctx.Err() != nil {
			s.logger.Warn("sweep budget exhausted, abandoning remaining pages",
				slog.Int("transitioned", summary.Transitioned))
			break
		}
		if len(page) < s.pageSize {
			break
		}
		after = page[len(page)-1].Key()
	}

	summary.Elapsed = time.Since(start)
	metrics.SweepDuration.Observe(summary.Elapsed.Seconds())
	s.logger.Info("sweep finished",
		slog.Int("transitioned", summary.Transitioned),
		slog.Int("conflicts", summary.Conflicts),
		slog.Int("failures", len(summary.Failures)),
		slog.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (s *Sweeper) sweepRecord(ctx context.Context, rec model.DecisionRecord, summary *Summary) {
	err := retry.Do(ctx, s.logger, "auto-approve record", func(ctx context.Context) error {
		return s.store.Transition(ctx, rec.SubjectID, rec.ItemID,
			model.StatusPending, model.StatusAutoApproved, time.Now().UTC(), AutoApproveComment)
	})
	switch {
	case err == nil:
		summary.Transitioned++
		metrics.SweepTransitioned.Inc()
	case appErr.IsConflict(err):
		// Expected outcome of the race: a callback finalized the record
		// between the scan and the write.
		summary.Conflicts++
		metrics.SweepConflicts.Inc()
	default:
		// One bad record must not abort the sweep.
		summary.Failures = append(summary.Failures, RecordFailure{Key: rec.Key(), Err: err})
		metrics.SweepFailures.Inc()
		s.logger.Error("failed to auto-approve record",
			slog.String("subject_id", rec.SubjectID),
			slog.String("item_id", rec.ItemID),
			slog.Any("error", err))
	}
}
