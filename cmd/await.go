package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newAwaitBackendCmd creates the 'await-backend' subcommand, which blocks until
// the backend answers its readiness endpoint.
func newAwaitBackendCmd() *cobra.Command {
	var (
		url            string
		timeoutSeconds int
	)
	cmd := &cobra.Command{
		Use:   "await-backend",
		Short: "Wait until the Medusa backend is ready",
		Long: `Polls the backend's key-exchange endpoint (or --url) every few seconds until
it answers 200. Connection refused is treated as "still starting"; any other
network error aborts immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.GetConfig()

			target := cfg.ReadyURL()
			if url != "" {
				target = url
			}
			timeout := cfg.ReadyTimeout()
			if cmd.Flags().Changed("timeout") {
				timeout = time.Duration(timeoutSeconds) * time.Second
			}

			if err := appInstance.Poller().AwaitReady(cmd.Context(), target, timeout); err != nil {
				return fmt.Errorf("waiting for backend: %w", err)
			}
			appInstance.GetLogger().Info("Backend is ready", zap.String("url", target))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "endpoint to poll (default: backend url + ready path)")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "seconds to wait before giving up (default from config)")
	return cmd
}
