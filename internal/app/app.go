// Package app initializes and holds the services a single CLI run needs,
// acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/clock/system"
	"github.com/JakeFAU/medusa-deploy/internal/config"
	"github.com/JakeFAU/medusa-deploy/internal/id/uuid"
	"github.com/JakeFAU/medusa-deploy/internal/keys"
	"github.com/JakeFAU/medusa-deploy/internal/logging"
	"github.com/JakeFAU/medusa-deploy/internal/metrics"
	"github.com/JakeFAU/medusa-deploy/internal/readiness"
	"github.com/JakeFAU/medusa-deploy/internal/reporter"
	"github.com/JakeFAU/medusa-deploy/internal/runner"
	"github.com/JakeFAU/medusa-deploy/internal/seed"
	"github.com/JakeFAU/medusa-deploy/internal/storefront"
)

// pushTimeout bounds the final metrics push.
const pushTimeout = 10 * time.Second

// App holds the shared services for one invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	client  *http.Client
	runner  runner.Runner
	clock   *system.Clock
	runID   string
}

// Options overrides parts of the container, mainly for tests.
type Options struct {
	Logger *zap.Logger
	Runner runner.Runner
	Client *http.Client
}

// NewApp loads configuration from cfgPath and the environment and builds the
// services for command. It fails fast if configuration is invalid.
func NewApp(_ context.Context, cfgPath, command string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	base, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(base)
	return New(cfg, command, Options{Logger: base}), nil
}

// New builds an App from an already loaded configuration.
func New(cfg config.Config, command string, opts Options) *App {
	runID := uuid.New().MustRunID()
	logger := logging.ForRun(opts.Logger, command, runID)
	recorder := metrics.New()

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	run := opts.Runner
	if run == nil {
		run = runner.NewExecRunner(logger.Named("runner"), recorder)
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		metrics: recorder,
		client:  client,
		runner:  run,
		clock:   system.New(),
		runID:   runID,
	}
}

// GetLogger returns the run-scoped logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetMetrics returns the run's metrics recorder.
func (a *App) GetMetrics() *metrics.Recorder { return a.metrics }

// RunID identifies this invocation in logs and metrics.
func (a *App) RunID() string { return a.runID }

// Poller builds the backend readiness poller.
func (a *App) Poller() *readiness.Poller {
	return readiness.NewPoller(a.client, a.clock, a.cfg.PollInterval(), a.logger.Named("readiness"), a.metrics)
}

// Resolver builds the key resolver.
func (a *App) Resolver() *keys.Resolver {
	return keys.NewResolver(a.client, a.cfg.RetryPolicy(), a.logger.Named("keys"), a.metrics)
}

// Initializer builds the first-deploy initializer.
func (a *App) Initializer() *seed.Initializer {
	return seed.NewInitializer(a.cfg.SeedOptions(), seed.PgxConnector, a.runner, a.Resolver(), a.logger.Named("seed"), a.metrics)
}

// Reporter builds the deploy reporter.
func (a *App) Reporter() *reporter.Reporter {
	return reporter.New(a.cfg.ReporterOptions(), a.client, a.logger.Named("reporter"), a.metrics)
}

// Launcher builds the storefront launcher.
func (a *App) Launcher() *storefront.Launcher {
	return storefront.NewLauncher(a.Resolver(), a.runner, a.cfg.Storefront.Binary, a.logger.Named("storefront"), a.metrics)
}

// Close pushes metrics when a Pushgateway is configured and flushes the logger.
func (a *App) Close() {
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := a.metrics.Push(ctx, url, a.cfg.Metrics.Job); err != nil {
			a.logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}
	// Sync fails on non-syncable outputs such as terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}
