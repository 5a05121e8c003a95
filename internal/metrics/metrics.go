// Package metrics exposes Prometheus collectors for the deploy helpers.
//
// Collectors live on a private registry so that a short-lived CLI run can push
// exactly its own series to a Pushgateway when it finishes.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeFailure   = "failure"
	OutcomeExhausted = "exhausted"
)

// Recorder owns the registry and collectors for a single run.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	attemptsTotal       *prometheus.CounterVec
	readinessWait       prometheus.Histogram
	seedRunsTotal       *prometheus.CounterVec
	launchesTotal       *prometheus.CounterVec
	reportsTotal        *prometheus.CounterVec
	subprocessDurations *prometheus.HistogramVec
}

// New builds a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deploy_attempts_total",
				Help: "Attempts made by retrying operations, labeled by operation, target host and outcome.",
			},
			[]string{"operation", "host", "outcome"},
		),
		readinessWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deploy_readiness_wait_seconds",
				Help:    "Time spent waiting for the backend to become ready.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
		seedRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deploy_seed_runs_total",
				Help: "Seed checks, labeled by result (skipped_worker, already_seeded, seeded, failed).",
			},
			[]string{"result"},
		),
		launchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deploy_storefront_launches_total",
				Help: "Storefront launches, labeled by command and result.",
			},
			[]string{"command", "result"},
		),
		reportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deploy_reports_total",
				Help: "Deploy reports sent, labeled by result.",
			},
			[]string{"result"},
		),
		subprocessDurations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deploy_subprocess_duration_seconds",
				Help:    "Duration of child processes, labeled by program and result.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600},
			},
			[]string{"program", "result"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// SanitizeHost extracts a lowercase hostname from rawURL for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveAttempt counts one attempt of operation against target.
func (r *Recorder) ObserveAttempt(operation, target, outcome string) {
	if r == nil {
		return
	}
	r.attemptsTotal.WithLabelValues(operation, SanitizeHost(target), outcome).Inc()
}

// ObserveReadinessWait records how long the poller waited.
func (r *Recorder) ObserveReadinessWait(d time.Duration) {
	if r == nil {
		return
	}
	r.readinessWait.Observe(d.Seconds())
}

// ObserveSeed counts a seed check result.
func (r *Recorder) ObserveSeed(result string) {
	if r == nil {
		return
	}
	r.seedRunsTotal.WithLabelValues(result).Inc()
}

// ObserveLaunch counts a storefront launch result.
func (r *Recorder) ObserveLaunch(command, result string) {
	if r == nil {
		return
	}
	r.launchesTotal.WithLabelValues(command, result).Inc()
}

// ObserveReport counts a deploy report result.
func (r *Recorder) ObserveReport(result string) {
	if r == nil {
		return
	}
	r.reportsTotal.WithLabelValues(result).Inc()
}

// ObserveSubprocess records the duration of a child process.
func (r *Recorder) ObserveSubprocess(program, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.subprocessDurations.WithLabelValues(program, result).Observe(d.Seconds())
}

// Push sends every collected series to the Pushgateway at gatewayURL under job.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
