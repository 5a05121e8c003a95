package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newLaunchStorefrontCmd creates the 'launch-storefront' subcommand.
func newLaunchStorefrontCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "launch-storefront <start|build|dev>",
		Short:     "Resolve API keys and run the storefront",
		ValidArgs: []string{"start", "build", "dev"},
		Args:      cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			command := ""
			if len(args) == 1 {
				command = args[0]
			}

			if err := appInstance.Launcher().Launch(cmd.Context(), command, appInstance.GetConfig().LaunchConfig()); err != nil {
				return fmt.Errorf("launch storefront: %w", err)
			}
			appInstance.GetLogger().Info("Storefront launched successfully", zap.String("command", command))
			return nil
		},
	}
}
