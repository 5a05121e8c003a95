// Package reporter notifies a template registry that a deploy finished.
// Reporting is best effort: every failure is logged and dropped.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/metrics"
)

// DefaultTemplateID identifies the deployed template.
const DefaultTemplateID = "medusa-2.0"

// Options configures a Reporter. An empty URL disables reporting.
type Options struct {
	URL                  string
	ProjectID            string
	TemplateID           string
	PublicURL            string
	StorefrontPublishURL string
	Timeout              time.Duration
}

// Payload is the body posted to {URL}/api/projectDeployed.
type Payload struct {
	ProjectID            string `json:"projectId"`
	TemplateID           string `json:"templateId"`
	PublicURL            string `json:"publicUrl"`
	StorefrontPublishURL string `json:"storefrontPublishUrl"`
}

// HTTPDoer is the subset of *http.Client the reporter needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Reporter posts deploy reports.
type Reporter struct {
	opts    Options
	client  HTTPDoer
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// New builds a Reporter.
func New(opts Options, client HTTPDoer, logger *zap.Logger, recorder *metrics.Recorder) *Reporter {
	if opts.TemplateID == "" {
		opts.TemplateID = DefaultTemplateID
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{opts: opts, client: client, logger: logger, metrics: recorder}
}

// ReportDeploy posts the deploy payload. It never fails the caller.
func (r *Reporter) ReportDeploy(ctx context.Context) {
	if r.opts.URL == "" {
		return
	}

	body, err := json.Marshal(Payload{
		ProjectID:            r.opts.ProjectID,
		TemplateID:           r.opts.TemplateID,
		PublicURL:            r.opts.PublicURL,
		StorefrontPublishURL: r.opts.StorefrontPublishURL,
	})
	if err != nil {
		r.fail("encode payload", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(r.opts.URL, "/") + "/api/projectDeployed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		r.fail("build request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.fail("post report", err)
		return
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.metrics.ObserveReport(metrics.OutcomeFailure)
		r.logger.Error("Deploy report rejected", zap.String("url", endpoint), zap.Int("status", resp.StatusCode))
		return
	}
	r.metrics.ObserveReport(metrics.OutcomeSuccess)
	r.logger.Info("Deploy reported", zap.String("url", endpoint))
}

func (r *Reporter) fail(step string, err error) {
	r.metrics.ObserveReport(metrics.OutcomeFailure)
	r.logger.Error("An error occurred while reporting deploy", zap.String("step", step), zap.Error(err))
}
