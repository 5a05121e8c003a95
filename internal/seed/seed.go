// Package seed performs one-time initialization of a freshly deployed backend.
//
// A deployment is considered seeded once the "user" table exists. On first
// deploy the package runs the migration, link sync and seed commands and
// optionally creates an admin account. Worker instances never seed.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/deployerr"
	"github.com/JakeFAU/medusa-deploy/internal/envfile"
	"github.com/JakeFAU/medusa-deploy/internal/keys"
	"github.com/JakeFAU/medusa-deploy/internal/metrics"
	"github.com/JakeFAU/medusa-deploy/internal/runner"
)

// AdminKeyEnv is the variable the search admin key is published under.
const AdminKeyEnv = "MEILISEARCH_ADMIN_KEY"

// Options configures an Initializer.
type Options struct {
	DatabaseURL string
	// WorkerMode is true when this instance only processes background jobs.
	WorkerMode bool

	AdminEmail    string
	AdminPassword string

	MigrateCommand     string
	SyncLinksCommand   string
	SeedCommand        string
	CreateAdminCommand string

	SearchMasterKey string
	SearchEndpoint  string
	SearchAdminKey  string
	// EnvFile receives the resolved search admin key.
	EnvFile string
}

// SearchKeyFetcher resolves scoped search keys.
type SearchKeyFetcher interface {
	FetchSearchKey(ctx context.Context, endpoint, masterKey string, keyType keys.KeyType) (string, bool)
}

// Initializer runs the first-deploy steps.
type Initializer struct {
	opts    Options
	connect Connector
	runner  runner.Runner
	keys    SearchKeyFetcher
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// NewInitializer builds an Initializer. A nil connector uses pgx.
func NewInitializer(
	opts Options,
	connect Connector,
	run runner.Runner,
	fetcher SearchKeyFetcher,
	logger *zap.Logger,
	recorder *metrics.Recorder,
) *Initializer {
	if connect == nil {
		connect = PgxConnector
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initializer{
		opts:    opts,
		connect: connect,
		runner:  run,
		keys:    fetcher,
		logger:  logger,
		metrics: recorder,
	}
}

// PrepareEnvironment resolves the search admin key when only the master key is
// configured, writes it to the env file and exports it to child processes.
func (i *Initializer) PrepareEnvironment(ctx context.Context) error {
	if i.opts.SearchAdminKey != "" || i.opts.SearchMasterKey == "" || i.opts.SearchEndpoint == "" {
		return nil
	}
	if i.keys == nil {
		return fmt.Errorf("%w: no search key resolver configured", deployerr.ErrValidation)
	}

	adminKey, ok := i.keys.FetchSearchKey(ctx, i.opts.SearchEndpoint, i.opts.SearchMasterKey, keys.KeyTypeAdmin)
	if !ok {
		return fmt.Errorf("%w: failed to fetch search admin key", deployerr.ErrValidation)
	}
	if i.opts.EnvFile != "" {
		if err := envfile.Upsert(i.opts.EnvFile, AdminKeyEnv, adminKey); err != nil {
			return fmt.Errorf("persist %s: %w", AdminKeyEnv, err)
		}
	}
	if err := os.Setenv(AdminKeyEnv, adminKey); err != nil {
		return fmt.Errorf("export %s: %w", AdminKeyEnv, err)
	}
	i.opts.SearchAdminKey = adminKey
	i.logger.Info("Search admin key set", zap.String("env", AdminKeyEnv), zap.String("file", i.opts.EnvFile))
	return nil
}

// SeedOnce seeds the database unless it is already seeded or this instance is a worker.
func (i *Initializer) SeedOnce(ctx context.Context) error {
	if i.opts.WorkerMode {
		i.metrics.ObserveSeed("skipped_worker")
		i.logger.Info("Running in worker mode, skipping database seeding")
		return nil
	}

	seeded, err := i.IsSeeded(ctx)
	if err != nil {
		i.metrics.ObserveSeed("failed")
		return err
	}
	if seeded {
		i.metrics.ObserveSeed("already_seeded")
		i.logger.Info("Database is already seeded, skipping seeding")
		return nil
	}

	i.logger.Info("Database is not seeded, seeding now")
	if err := i.seedDatabase(ctx); err != nil {
		i.metrics.ObserveSeed("failed")
		return fmt.Errorf("failed to seed database: %w", err)
	}
	i.metrics.ObserveSeed("seeded")
	return nil
}

// IsSeeded probes the database. A missing "user" table means not seeded; any
// other failure is a deployerr.ErrDatabase. The connection is always closed.
func (i *Initializer) IsSeeded(ctx context.Context) (seeded bool, err error) {
	conn, err := i.connect(ctx, i.opts.DatabaseURL)
	if err != nil {
		return false, fmt.Errorf("%w: %w", deployerr.ErrDatabase, err)
	}
	defer func() {
		if cerr := conn.Close(ctx); cerr != nil {
			i.logger.Warn("Failed to close database connection", zap.Error(cerr))
		}
	}()

	if _, err := conn.Exec(ctx, seedProbeQuery); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return false, nil
		}
		return false, fmt.Errorf("%w: unexpected error checking if database is seeded: %w", deployerr.ErrDatabase, err)
	}
	return true, nil
}

func (i *Initializer) seedDatabase(ctx context.Context) error {
	steps := []struct {
		label string
		line  string
	}{
		{label: "Running migrations", line: i.opts.MigrateCommand},
		{label: "Running link sync", line: i.opts.SyncLinksCommand},
		{label: "Running seed script", line: i.opts.SeedCommand},
	}
	for _, step := range steps {
		cmd, err := runner.Parse(step.line)
		if err != nil {
			return fmt.Errorf("%s: %w", step.label, err)
		}
		i.logger.Info(step.label, zap.String("command", cmd.String()))
		if err := i.runner.Run(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", step.label, err)
		}
	}

	if i.opts.AdminEmail != "" && i.opts.AdminPassword != "" {
		cmd, err := runner.Parse(i.opts.CreateAdminCommand)
		if err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		cmd.Args = append(cmd.Args, "-e", i.opts.AdminEmail, "-p", i.opts.AdminPassword)
		i.logger.Info("Creating admin user", zap.String("email", i.opts.AdminEmail))
		if err := i.runner.Run(ctx, cmd); err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
	}

	i.logger.Info("Database seeded successfully")
	return nil
}
