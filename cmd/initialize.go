package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newInitBackendCmd creates the 'init-backend' subcommand. It prepares search
// keys, seeds the database on first deploy and reports the deploy.
func newInitBackendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-backend",
		Short: "Prepare, seed and report a backend deploy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			initializer := appInstance.Initializer()
			if err := initializer.PrepareEnvironment(ctx); err != nil {
				return fmt.Errorf("prepare environment: %w", err)
			}
			if err := initializer.SeedOnce(ctx); err != nil {
				return fmt.Errorf("seed database: %w", err)
			}
			appInstance.Reporter().ReportDeploy(ctx)

			appInstance.GetLogger().Info("Backend initialized successfully")
			return nil
		},
	}
}
