// Package config loads and validates deploy helper configuration via Viper.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/medusa-deploy/internal/reporter"
	"github.com/JakeFAU/medusa-deploy/internal/retry"
	"github.com/JakeFAU/medusa-deploy/internal/seed"
	"github.com/JakeFAU/medusa-deploy/internal/storefront"
)

// WorkerModeValue is the MEDUSA_WORKER_MODE value that marks a worker instance.
const WorkerModeValue = "worker"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
	Search     SearchConfig     `mapstructure:"search"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Seed       SeedConfig       `mapstructure:"seed"`
	Reporter   ReporterConfig   `mapstructure:"reporter"`
	Retry      RetryConfig      `mapstructure:"retry"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// BackendConfig locates the commerce backend and bounds the readiness wait.
type BackendConfig struct {
	URL                 string `mapstructure:"url"`
	ReadyPath           string `mapstructure:"ready_path"`
	ReadyTimeoutSeconds int    `mapstructure:"ready_timeout_seconds"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
}

// StorefrontConfig controls the storefront process.
type StorefrontConfig struct {
	Port           string `mapstructure:"port"`
	PublishableKey string `mapstructure:"publishable_key"`
	Binary         string `mapstructure:"binary"`
}

// SearchConfig holds the optional Meilisearch integration.
type SearchConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Endpoint  string `mapstructure:"endpoint"`
	SearchKey string `mapstructure:"search_key"`
	AdminKey  string `mapstructure:"admin_key"`
}

// DatabaseConfig controls access to the relational database.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// SeedConfig drives the first-deploy sequence.
type SeedConfig struct {
	WorkerMode         string `mapstructure:"worker_mode"`
	AdminEmail         string `mapstructure:"admin_email"`
	AdminPassword      string `mapstructure:"admin_password"`
	MigrateCommand     string `mapstructure:"migrate_command"`
	SyncLinksCommand   string `mapstructure:"sync_links_command"`
	SeedCommand        string `mapstructure:"seed_command"`
	CreateAdminCommand string `mapstructure:"create_admin_command"`
	EnvFile            string `mapstructure:"env_file"`
}

// ReporterConfig configures deploy reporting.
type ReporterConfig struct {
	URL                  string `mapstructure:"url"`
	ProjectID            string `mapstructure:"project_id"`
	TemplateID           string `mapstructure:"template_id"`
	PublicURL            string `mapstructure:"public_url"`
	StorefrontPublishURL string `mapstructure:"storefront_publish_url"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
}

// RetryConfig bounds key resolution.
type RetryConfig struct {
	Attempts       int `mapstructure:"attempts"`
	BackoffSeconds int `mapstructure:"backoff_seconds"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// envBindings maps config keys to the variable names the platform provides.
// The first variable that is set wins.
var envBindings = map[string][]string{
	"backend.url":                     {"NEXT_PUBLIC_MEDUSA_BACKEND_URL"},
	"storefront.port":                 {"PORT"},
	"storefront.publishable_key":      {"NEXT_PUBLIC_MEDUSA_PUBLISHABLE_KEY"},
	"search.api_key":                  {"MEILISEARCH_API_KEY", "MEILISEARCH_MASTER_KEY"},
	"search.endpoint":                 {"NEXT_PUBLIC_SEARCH_ENDPOINT", "MEILISEARCH_HOST"},
	"search.search_key":               {"NEXT_PUBLIC_SEARCH_API_KEY"},
	"search.admin_key":                {"MEILISEARCH_ADMIN_KEY"},
	"database.url":                    {"DATABASE_URL"},
	"seed.worker_mode":                {"MEDUSA_WORKER_MODE"},
	"seed.admin_email":                {"MEDUSA_ADMIN_EMAIL"},
	"seed.admin_password":             {"MEDUSA_ADMIN_PASSWORD"},
	"reporter.url":                    {"TEMPLATE_REPORTER_URL"},
	"reporter.project_id":             {"RAILWAY_PROJECT_ID"},
	"reporter.public_url":             {"PUBLIC_URL"},
	"reporter.storefront_publish_url": {"STOREFRONT_PUBLISH_URL"},
}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := bindPrefixed(v, reflect.TypeOf(Config{}), ""); err != nil {
		return Config{}, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindPrefixed registers DEPLOY_<SECTION>_<KEY> for every leaf key that has no
// platform variable. Unmarshal ignores keys viper has never seen, so a key with
// no default would otherwise be unreachable from the environment.
func bindPrefixed(v *viper.Viper, t reflect.Type, prefix string) error {
	for i := range t.NumField() {
		field := t.Field(i)
		key := prefix + field.Tag.Get("mapstructure")
		if field.Type.Kind() == reflect.Struct {
			if err := bindPrefixed(v, field.Type, key+"."); err != nil {
				return err
			}
			continue
		}
		if _, ok := envBindings[key]; ok {
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:9000")
	v.SetDefault("backend.ready_path", "/key-exchange")
	v.SetDefault("backend.ready_timeout_seconds", 1200)
	v.SetDefault("backend.poll_interval_seconds", 5)
	v.SetDefault("storefront.binary", storefront.DefaultBinary)
	v.SetDefault("seed.migrate_command", "npx medusa db:migrate")
	v.SetDefault("seed.sync_links_command", "npx medusa db:sync-links")
	v.SetDefault("seed.seed_command", "npm run seed")
	v.SetDefault("seed.create_admin_command", "npx medusa user")
	v.SetDefault("seed.env_file", ".env")
	v.SetDefault("reporter.template_id", reporter.DefaultTemplateID)
	v.SetDefault("reporter.timeout_seconds", 10)
	v.SetDefault("retry.attempts", retry.DefaultAttempts)
	v.SetDefault("retry.backoff_seconds", int(retry.DefaultBackoff/time.Second))
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.job", "medusa-deploy")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url must be set")
	}
	if c.Backend.ReadyTimeoutSeconds < 0 {
		return fmt.Errorf("backend.ready_timeout_seconds must be >= 0")
	}
	if c.Backend.PollIntervalSeconds <= 0 {
		return fmt.Errorf("backend.poll_interval_seconds must be > 0")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be > 0")
	}
	if c.Retry.BackoffSeconds < 0 {
		return fmt.Errorf("retry.backoff_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	return nil
}

// ReadyURL is the endpoint polled by await-backend.
func (c Config) ReadyURL() string {
	return strings.TrimRight(c.Backend.URL, "/") + c.Backend.ReadyPath
}

// ReadyTimeout converts the readiness budget to a duration.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Backend.ReadyTimeoutSeconds) * time.Second
}

// PollInterval converts the poll interval to a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Backend.PollIntervalSeconds) * time.Second
}

// HTTPTimeout is the per-request timeout of the shared client.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryPolicy returns the key resolution policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: c.Retry.Attempts,
		Backoff:  time.Duration(c.Retry.BackoffSeconds) * time.Second,
	}
}

// LaunchConfig builds the storefront launch settings. Search settings are
// attached only when they can be used: either a key fetch is possible or a
// ready search key and endpoint are present.
func (c Config) LaunchConfig() storefront.LaunchConfig {
	lc := storefront.LaunchConfig{
		BackendURL:     c.Backend.URL,
		Port:           c.Storefront.Port,
		PublishableKey: c.Storefront.PublishableKey,
	}
	search := &storefront.SearchConfig{
		APIKey:    c.Search.APIKey,
		Endpoint:  c.Search.Endpoint,
		SearchKey: c.Search.SearchKey,
	}
	if search.CanFetch() || (search.SearchKey != "" && search.Endpoint != "") {
		lc.Search = search
	}
	return lc
}

// SeedOptions builds the seed initializer settings.
func (c Config) SeedOptions() seed.Options {
	return seed.Options{
		DatabaseURL:        c.Database.URL,
		WorkerMode:         strings.EqualFold(c.Seed.WorkerMode, WorkerModeValue),
		AdminEmail:         c.Seed.AdminEmail,
		AdminPassword:      c.Seed.AdminPassword,
		MigrateCommand:     c.Seed.MigrateCommand,
		SyncLinksCommand:   c.Seed.SyncLinksCommand,
		SeedCommand:        c.Seed.SeedCommand,
		CreateAdminCommand: c.Seed.CreateAdminCommand,
		SearchMasterKey:    c.Search.APIKey,
		SearchEndpoint:     c.Search.Endpoint,
		SearchAdminKey:     c.Search.AdminKey,
		EnvFile:            c.Seed.EnvFile,
	}
}

// ReporterOptions builds the deploy reporter settings.
func (c Config) ReporterOptions() reporter.Options {
	return reporter.Options{
		URL:                  c.Reporter.URL,
		ProjectID:            c.Reporter.ProjectID,
		TemplateID:           c.Reporter.TemplateID,
		PublicURL:            c.Reporter.PublicURL,
		StorefrontPublishURL: c.Reporter.StorefrontPublishURL,
		Timeout:              time.Duration(c.Reporter.TimeoutSeconds) * time.Second,
	}
}
