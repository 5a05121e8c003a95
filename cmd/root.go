// Package cmd defines and implements the CLI commands for the medusa-deploy executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/app"
	"github.com/JakeFAU/medusa-deploy/internal/config"
	"github.com/JakeFAU/medusa-deploy/internal/envfile"
	"github.com/JakeFAU/medusa-deploy/internal/logging"
	"github.com/JakeFAU/medusa-deploy/internal/readiness"
	"github.com/JakeFAU/medusa-deploy/internal/reporter"
	"github.com/JakeFAU/medusa-deploy/internal/runner"
	"github.com/JakeFAU/medusa-deploy/internal/seed"
	"github.com/JakeFAU/medusa-deploy/internal/storefront"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services commands use. Tests inject their own.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	Poller() *readiness.Poller
	Initializer() *seed.Initializer
	Reporter() *reporter.Reporter
	Launcher() *storefront.Launcher
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath, command string) (App, error) {
	return app.NewApp(ctx, cfgPath, command)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var (
		cfgFile  string
		envFiles []string
	)

	cmd := &cobra.Command{
		Use:   "medusa-deploy",
		Short: "Deployment helpers for a Medusa backend and its Next.js storefront.",
		Long: `medusa-deploy performs the glue steps of a Medusa deployment: waiting for
the backend to come up, seeding the database on first deploy, and launching
the storefront with API keys resolved from the backend and Meilisearch.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := envfile.Load(envFiles...)
			if err != nil {
				return fmt.Errorf("load env files: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfgFile, cmd.Name())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if len(loaded) > 0 {
				appInstance.GetLogger().Debug("Loaded env files", zap.Strings("files", loaded))
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			closeApp(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env.local", ".env"},
		"dotenv files to load; earlier files take precedence and set variables are never overridden")

	cmd.AddCommand(newAwaitBackendCmd())
	cmd.AddCommand(newInitBackendCmd())
	cmd.AddCommand(newLaunchStorefrontCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if bootstrap, err := logging.New(false); err == nil {
		zap.ReplaceGlobals(bootstrap)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	executed, err := newRootCmd().ExecuteContextC(ctx)
	stop()
	if err == nil {
		return
	}

	// PersistentPostRun is skipped when a command fails.
	if executed != nil {
		closeApp(executed.Context())
	}
	zap.L().Error("Command execution failed", zap.Error(err))
	_ = zap.L().Sync()
	os.Exit(ExitCode(err))
}

// ExitCode maps err to a process exit status. A failed child process passes
// its own code through; every other failure exits with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return 1
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func closeApp(ctx context.Context) {
	if ctx == nil {
		return
	}
	if appInstance, ok := ctx.Value(appKey).(App); ok && appInstance != nil {
		appInstance.Close()
	}
}
