// Package readiness waits for an HTTP service to start answering.
package readiness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/clock/system"
	"github.com/JakeFAU/medusa-deploy/internal/deployerr"
	"github.com/JakeFAU/medusa-deploy/internal/metrics"
)

// Defaults used when the caller leaves a setting at zero.
const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 1200 * time.Second
)

// Clock abstracts time so the poll loop can be driven in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// HTTPDoer is the subset of *http.Client the poller needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Poller probes a URL until it returns 200 or the time budget runs out.
type Poller struct {
	client   HTTPDoer
	clock    Clock
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

// NewPoller builds a Poller. Nil dependencies fall back to real implementations.
func NewPoller(client HTTPDoer, clock Clock, interval time.Duration, logger *zap.Logger, recorder *metrics.Recorder) *Poller {
	if client == nil {
		client = http.DefaultClient
	}
	if clock == nil {
		clock = system.New()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{client: client, clock: clock, interval: interval, logger: logger, metrics: recorder}
}

// AwaitReady polls url until it answers 200.
//
// Connection-refused errors and non-200 answers mean "not yet" and are retried
// after the interval. Any other transport error fails at once with
// deployerr.ErrUnexpectedNetwork. The budget is measured from the wall clock at
// entry and checked before every attempt, so no request is sent once elapsed
// time reaches timeout.
func (p *Poller) AwaitReady(ctx context.Context, url string, timeout time.Duration) error {
	start := p.clock.Now()
	defer func() { p.metrics.ObserveReadinessWait(p.clock.Now().Sub(start)) }()

	for attempt := 1; ; attempt++ {
		elapsed := p.clock.Now().Sub(start)
		if elapsed >= timeout {
			return fmt.Errorf("%w: backend was not ready within %s", deployerr.ErrTimeout, timeout)
		}

		status, err := p.probe(ctx, url)
		switch {
		case err == nil && status == http.StatusOK:
			p.metrics.ObserveAttempt("readiness", url, metrics.OutcomeSuccess)
			p.logger.Info("Backend is ready", zap.String("url", url), zap.Int("attempts", attempt))
			return nil
		case err == nil:
			p.metrics.ObserveAttempt("readiness", url, metrics.OutcomeRetry)
			p.logger.Info("Waiting for backend to be available",
				zap.String("url", url),
				zap.Int("status", status),
				zap.Duration("elapsed", elapsed.Truncate(time.Second)),
			)
		case ctx.Err() != nil:
			// A cancelled context surfaces as a transport error; report the cancellation itself.
			p.metrics.ObserveAttempt("readiness", url, metrics.OutcomeFailure)
			return fmt.Errorf("wait for backend: %w", ctx.Err())
		case deployerr.IsConnectionRefused(err):
			p.metrics.ObserveAttempt("readiness", url, metrics.OutcomeRetry)
			p.logger.Info("Waiting for backend to be available",
				zap.String("url", url),
				zap.Duration("elapsed", elapsed.Truncate(time.Second)),
			)
		default:
			p.metrics.ObserveAttempt("readiness", url, metrics.OutcomeFailure)
			return fmt.Errorf("%w: an unexpected error occurred: %w", deployerr.ErrUnexpectedNetwork, err)
		}

		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return fmt.Errorf("wait for backend: %w", err)
		}
	}
}

func (p *Poller) probe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err //nolint:wrapcheck // classified by the caller
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	return resp.StatusCode, nil
}
