package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	appErr "github.com/cvdexinfo/acta-approval/internal/errors"
)

const maxAttempts = 4

// Do runs fn with bounded exponential backoff and jitter. Only transient
// failures are retried; validation, not-found and conflict outcomes return
// immediately. Context cancellation stops the retry loop.
func Do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !appErr.IsTransient(err) {
			return backoff.Permanent(err)
		}
		logger.Warn("transient failure, will retry",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx))
}
