package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearPlatformEnv blanks every platform variable; viper treats empty values as unset.
func clearPlatformEnv(t *testing.T) {
	t.Helper()
	for _, names := range envBindings {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearPlatformEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Backend.URL)
	assert.Equal(t, "http://localhost:9000/key-exchange", cfg.ReadyURL())
	assert.Equal(t, 1200*time.Second, cfg.ReadyTimeout())
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 5, cfg.RetryPolicy().Attempts)
	assert.Equal(t, 10*time.Second, cfg.RetryPolicy().Backoff)
	assert.Equal(t, "next", cfg.Storefront.Binary)
	assert.Empty(t, cfg.Storefront.Port)
	assert.Equal(t, "npx medusa db:migrate", cfg.Seed.MigrateCommand)
	assert.Equal(t, "medusa-2.0", cfg.Reporter.TemplateID)
	assert.True(t, cfg.Logging.Development)
	assert.Nil(t, cfg.LaunchConfig().Search)
	assert.False(t, cfg.SeedOptions().WorkerMode)
}

func TestLoadPlatformEnv(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("NEXT_PUBLIC_MEDUSA_BACKEND_URL", "https://api.example.com/")
	t.Setenv("NEXT_PUBLIC_MEDUSA_PUBLISHABLE_KEY", "pk_env")
	t.Setenv("PORT", "4000")
	t.Setenv("MEILISEARCH_MASTER_KEY", "master")
	t.Setenv("MEILISEARCH_HOST", "http://search:7700")
	t.Setenv("DATABASE_URL", "postgres://db/medusa")
	t.Setenv("MEDUSA_WORKER_MODE", "worker")
	t.Setenv("MEDUSA_ADMIN_EMAIL", "admin@example.com")
	t.Setenv("MEDUSA_ADMIN_PASSWORD", "pw")
	t.Setenv("TEMPLATE_REPORTER_URL", "https://reporter.example.com")
	t.Setenv("RAILWAY_PROJECT_ID", "proj")
	t.Setenv("DEPLOY_RETRY_ATTEMPTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/key-exchange", cfg.ReadyURL())
	assert.Equal(t, 7, cfg.Retry.Attempts)

	lc := cfg.LaunchConfig()
	assert.Equal(t, "pk_env", lc.PublishableKey)
	assert.Equal(t, "4000", lc.Port)
	require.NotNil(t, lc.Search)
	assert.True(t, lc.Search.CanFetch())
	assert.Equal(t, "master", lc.Search.APIKey)
	assert.Equal(t, "http://search:7700", lc.Search.Endpoint)

	so := cfg.SeedOptions()
	assert.True(t, so.WorkerMode)
	assert.Equal(t, "postgres://db/medusa", so.DatabaseURL)
	assert.Equal(t, "admin@example.com", so.AdminEmail)
	assert.Equal(t, "master", so.SearchMasterKey)

	ro := cfg.ReporterOptions()
	assert.Equal(t, "https://reporter.example.com", ro.URL)
	assert.Equal(t, "proj", ro.ProjectID)
	assert.Equal(t, 10*time.Second, ro.Timeout)
}

func TestLoadPrefersStorefrontSearchVariables(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("MEILISEARCH_API_KEY", "storefront-key")
	t.Setenv("MEILISEARCH_MASTER_KEY", "master")
	t.Setenv("NEXT_PUBLIC_SEARCH_ENDPOINT", "https://search.example.com")
	t.Setenv("MEILISEARCH_HOST", "http://search:7700")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "storefront-key", cfg.Search.APIKey)
	assert.Equal(t, "https://search.example.com", cfg.Search.Endpoint)
}

func TestLaunchConfigDropsUnusableSearch(t *testing.T) {
	t.Parallel()

	cfg := Config{Backend: BackendConfig{URL: "http://b"}}

	cfg.Search = SearchConfig{APIKey: "master"}
	assert.Nil(t, cfg.LaunchConfig().Search, "master key without endpoint")

	cfg.Search = SearchConfig{SearchKey: "sk"}
	assert.Nil(t, cfg.LaunchConfig().Search, "search key without endpoint")

	cfg.Search = SearchConfig{SearchKey: "sk", Endpoint: "http://s"}
	require.NotNil(t, cfg.LaunchConfig().Search)
	assert.False(t, cfg.LaunchConfig().Search.CanFetch())
}

func TestLoadWithFileOverrides(t *testing.T) {
	clearPlatformEnv(t)

	path := filepath.Join(t.TempDir(), "deploy.yaml")
	configYAML := `
backend:
  url: http://backend.internal:9000
  ready_path: /health
  ready_timeout_seconds: 60
  poll_interval_seconds: 2
storefront:
  binary: ./node_modules/.bin/next
retry:
  attempts: 3
  backoff_seconds: 1
seed:
  seed_command: yarn seed
logging:
  development: false
metrics:
  pushgateway_url: http://pushgateway:9091
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.internal:9000/health", cfg.ReadyURL())
	assert.Equal(t, time.Minute, cfg.ReadyTimeout())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, "./node_modules/.bin/next", cfg.Storefront.Binary)
	assert.Equal(t, 3, cfg.RetryPolicy().Attempts)
	assert.Equal(t, time.Second, cfg.RetryPolicy().Backoff)
	assert.Equal(t, "yarn seed", cfg.SeedOptions().SeedCommand)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushgatewayURL)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("NEXT_PUBLIC_MEDUSA_BACKEND_URL", "http://from-env:9000")

	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  url: http://from-file:9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:9000", cfg.Backend.URL)
}

func TestLoadPrefixedEnvWithoutDefault(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("DEPLOY_METRICS_PUSHGATEWAY_URL", "http://pgw:9091")
	t.Setenv("DEPLOY_STOREFRONT_PORT", "4100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://pgw:9091", cfg.Metrics.PushgatewayURL)
	assert.Equal(t, "4100", cfg.Storefront.Port)
}

func TestLoadMissingFile(t *testing.T) {
	clearPlatformEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Backend: BackendConfig{URL: "http://b", ReadyTimeoutSeconds: 0, PollIntervalSeconds: 5},
		Retry:   RetryConfig{Attempts: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 1},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty backend", func(c *Config) { c.Backend.URL = "" }},
		{"negative timeout", func(c *Config) { c.Backend.ReadyTimeoutSeconds = -1 }},
		{"zero interval", func(c *Config) { c.Backend.PollIntervalSeconds = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }},
		{"negative backoff", func(c *Config) { c.Retry.BackoffSeconds = -1 }},
		{"zero http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
