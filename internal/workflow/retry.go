package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/perevir/internal/model"
)

// callWithRetry runs fn with transient-failure retries and exponential
// backoff. Contract violations and context expiry are not transient and
// return immediately. These retries are invisible outside the call: only
// regeneration advances the attempt counter.
func (e *Engine) callWithRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := e.config.RetryDelay
	var lastErr error

	for i := 0; i <= e.config.CallRetries; i++ {
		if i > 0 {
			e.logger.Warn("retrying collaborator call",
				zap.String("op", op),
				zap.Int("retry", i),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func isTransient(err error) bool {
	return !errors.Is(err, model.ErrContract) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func containsErr(err, target error) bool {
	return errors.Is(err, target)
}
