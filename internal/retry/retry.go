// Package retry runs an operation a bounded number of times with a fixed delay.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Default policy values.
const (
	DefaultAttempts = 5
	DefaultBackoff  = 10 * time.Second
)

// Operation produces a value or fails. It is invoked once per attempt.
type Operation[T any] func(ctx context.Context) (T, error)

// Policy bounds how an operation is retried.
type Policy struct {
	// Attempts is the total number of invocations, including the first one.
	Attempts int
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Nanosecond
	}
	return p
}

// Do invokes op until it succeeds or policy.Attempts invocations have failed.
// Exhaustion is not an error: Do returns the zero value and false, and the
// caller decides whether that is fatal. A canceled context also ends the loop.
func Do[T any](ctx context.Context, policy Policy, logger *zap.Logger, op Operation[T]) (T, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy = policy.normalized()

	var (
		result  T
		attempt int
	)
	backoff := goretry.WithMaxRetries(uint64(policy.Attempts-1), goretry.NewConstant(policy.Backoff))
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		logger.Error("Operation failed",
			zap.Int("attempt", attempt),
			zap.Int("attempts", policy.Attempts),
			zap.Error(err),
		)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt < policy.Attempts {
			logger.Info("Retrying", zap.Duration("backoff", policy.Backoff))
		}
		return goretry.RetryableError(err)
	})
	if err != nil {
		if attempt >= policy.Attempts {
			logger.Error("All retry attempts exhausted", zap.Int("attempts", attempt))
		} else {
			logger.Warn("Retry loop stopped early", zap.Int("attempts", attempt), zap.Error(err))
		}
		var zero T
		return zero, false
	}
	return result, true
}
