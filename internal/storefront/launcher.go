// Package storefront launches the Next.js storefront with resolved API keys.
package storefront

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/medusa-deploy/internal/deployerr"
	"github.com/JakeFAU/medusa-deploy/internal/keys"
	"github.com/JakeFAU/medusa-deploy/internal/metrics"
	"github.com/JakeFAU/medusa-deploy/internal/runner"
)

// Storefront commands.
const (
	CommandStart = "start"
	CommandBuild = "build"
	CommandDev   = "dev"
)

// Default ports per command.
const (
	DefaultStartPort = "3000"
	DefaultDevPort   = "8000"
	DefaultBinary    = "next"
)

// Variables injected into the storefront environment.
const (
	EnvPublishableKey = "NEXT_PUBLIC_MEDUSA_PUBLISHABLE_KEY"
	EnvBackendURL     = "NEXT_PUBLIC_MEDUSA_BACKEND_URL"
	EnvSearchKey      = "NEXT_PUBLIC_SEARCH_API_KEY"
	EnvSearchEndpoint = "NEXT_PUBLIC_SEARCH_ENDPOINT"
)

// ErrPublishableKeyUnavailable is returned when no publishable key could be resolved.
var ErrPublishableKeyUnavailable = fmt.Errorf(
	"%w: failed to fetch publishable API key after multiple attempts; "+
		"ensure the backend is running and the key exchange endpoint is accessible",
	deployerr.ErrValidation,
)

// SearchConfig holds the optional search integration settings.
type SearchConfig struct {
	// APIKey is the search master key used to list scoped keys.
	APIKey    string
	Endpoint  string
	SearchKey string
}

// CanFetch reports whether a scoped search key can be requested.
func (s *SearchConfig) CanFetch() bool {
	return s != nil && s.APIKey != "" && s.Endpoint != ""
}

// LaunchConfig is built once per invocation and not modified afterwards.
type LaunchConfig struct {
	BackendURL     string
	Port           string
	PublishableKey string
	Search         *SearchConfig
}

// KeyResolver resolves the keys the storefront needs.
type KeyResolver interface {
	FetchPublishableKey(ctx context.Context, backendURL string) (string, bool)
	FetchSearchKey(ctx context.Context, endpoint, masterKey string, keyType keys.KeyType) (string, bool)
}

// Launcher validates the command, resolves keys and runs the storefront.
type Launcher struct {
	keys    KeyResolver
	runner  runner.Runner
	binary  string
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// NewLauncher builds a Launcher. An empty binary defaults to "next".
func NewLauncher(resolver KeyResolver, run runner.Runner, binary string, logger *zap.Logger, recorder *metrics.Recorder) *Launcher {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{keys: resolver, runner: run, binary: binary, logger: logger, metrics: recorder}
}

// ValidateCommand rejects anything other than start, build or dev.
func ValidateCommand(command string) error {
	switch command {
	case CommandStart, CommandBuild, CommandDev:
		return nil
	default:
		return fmt.Errorf("%w: please provide a valid command: %q, %q, or %q (got %q)",
			deployerr.ErrValidation, CommandStart, CommandBuild, CommandDev, command)
	}
}

// Launch runs the storefront command to completion.
//
// A missing publishable key is fatal. A missing search key is not: the
// storefront starts without search integration.
func (l *Launcher) Launch(ctx context.Context, command string, cfg LaunchConfig) error {
	if err := ValidateCommand(command); err != nil {
		return err
	}

	publishableKey, err := l.resolvePublishableKey(ctx, cfg)
	if err != nil {
		l.metrics.ObserveLaunch(command, metrics.OutcomeFailure)
		return err
	}

	env := map[string]string{
		EnvPublishableKey: publishableKey,
		EnvBackendURL:     cfg.BackendURL,
	}
	if searchKey, ok := l.resolveSearchKey(ctx, cfg.Search); ok {
		env[EnvSearchKey] = searchKey
		env[EnvSearchEndpoint] = cfg.Search.Endpoint
	}

	cmd := BuildCommand(l.binary, command, cfg.Port)
	cmd.Env = env
	l.logger.Info("Running storefront command", zap.String("command", cmd.String()))

	if err := l.runner.Run(ctx, cmd); err != nil {
		l.metrics.ObserveLaunch(command, metrics.OutcomeFailure)
		return fmt.Errorf("error running command %q: %w", cmd.String(), err)
	}
	l.metrics.ObserveLaunch(command, metrics.OutcomeSuccess)
	l.logger.Info("Storefront command completed", zap.String("command", cmd.String()))
	return nil
}

// BuildCommand maps a storefront command to the framework invocation.
func BuildCommand(binary, command, port string) runner.Command {
	switch command {
	case CommandStart:
		if port == "" {
			port = DefaultStartPort
		}
		return runner.Command{Name: binary, Args: []string{CommandStart, "-p", port}}
	case CommandDev:
		if port == "" {
			port = DefaultDevPort
		}
		return runner.Command{Name: binary, Args: []string{CommandDev, "-p", port}}
	default:
		return runner.Command{Name: binary, Args: []string{CommandBuild}}
	}
}

func (l *Launcher) resolvePublishableKey(ctx context.Context, cfg LaunchConfig) (string, error) {
	if cfg.PublishableKey != "" {
		l.logger.Info("Publishable key is already set")
		return cfg.PublishableKey, nil
	}
	if l.keys == nil {
		return "", errors.Join(ErrPublishableKeyUnavailable, errors.New("no key resolver configured"))
	}
	l.logger.Info("Publishable key is not defined, attempting to fetch", zap.String("backend_url", cfg.BackendURL))
	key, ok := l.keys.FetchPublishableKey(ctx, cfg.BackendURL)
	if !ok || key == "" {
		return "", ErrPublishableKeyUnavailable
	}
	l.logger.Info("Publishable key fetched successfully")
	return key, nil
}

func (l *Launcher) resolveSearchKey(ctx context.Context, search *SearchConfig) (string, bool) {
	if search == nil {
		return "", false
	}
	if search.SearchKey != "" {
		return search.SearchKey, search.Endpoint != ""
	}
	if !search.CanFetch() || l.keys == nil {
		return "", false
	}
	key, ok := l.keys.FetchSearchKey(ctx, search.Endpoint, search.APIKey, keys.KeyTypeSearch)
	if !ok || key == "" {
		l.logger.Warn("Could not resolve search key, continuing without search integration",
			zap.String("endpoint", search.Endpoint))
		return "", false
	}
	l.logger.Info("Search key fetched successfully")
	return key, true
}
