// Package retry wraps fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/nidus-scraper/internal/metrics"
)

// Default policy values.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second
	// MaxBackoff caps a single wait unless BaseDelay is already larger.
	MaxBackoff = 10 * time.Minute
)

// Policy controls how many times an operation runs and how long to wait
// between attempts. Delays double after each failure and carry no jitter.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultPolicy returns three attempts starting at a one second delay.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, BaseDelay: DefaultBaseDelay}
}

// Backoff returns the wait after the failure at zero-based index attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 0 {
		return 0
	}
	limit := max(MaxBackoff, p.BaseDelay)
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return d
}

func (p Policy) attempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// sleep is swapped out in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do invokes op until it succeeds or the policy's attempts are used up, and
// returns the last failure in the latter case. The caller decides whether
// that failure is fatal.
func Do[T any](ctx context.Context, policy Policy, logger *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var zero T
	attempts := policy.attempts()
	var lastErr error
	for i := 0; i < attempts; i++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if IsPermanent(err) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, errors.Join(ctxErr, err)
		}
		if i == attempts-1 {
			break
		}
		delay := policy.Backoff(i)
		logger.Warn("retrying after failure",
			zap.Int("attempt", i+1),
			zap.Int("attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.ObserveRetry()
		if err := sleep(ctx, delay); err != nil {
			return zero, errors.Join(fmt.Errorf("retry wait canceled: %w", err), lastErr)
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
