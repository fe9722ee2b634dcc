package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBaseURL      = "https://shapeyourcity.ca/api/v2/projects"
	DefaultPageSize     = 100
	DefaultTokenPageURL = "https://shapeyourcity.ca/embeds/projectfinder"
	DefaultTokenPath    = "props.pageProps.initialState.anonymousUser.token"
	DefaultTimeout      = 20 * time.Second
	DefaultUserAgent    = "rezoningwatch/1"
	DefaultAttempts     = 3
	DefaultPageTTL      = 4 * time.Hour
	DefaultTokenTTL     = time.Minute
	DefaultExpirySkew   = time.Minute
	DefaultStoragePath  = "rezoningwatch.db"
	DefaultInterval     = time.Hour
	DefaultMaxAttempts  = 5
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config is the full configuration tree. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
	Token    TokenConfig    `yaml:"token"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// UpstreamConfig describes the projects API and the page the token is
// scraped from.
type UpstreamConfig struct {
	BaseURL      string `yaml:"base_url"`
	PageSize     int    `yaml:"page_size"`
	TokenPageURL string `yaml:"token_page_url"`
	// TokenPath is the dotted JSON path to the token inside __NEXT_DATA__.
	TokenPath string        `yaml:"token_path"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	TLS       TLSConfig     `yaml:"tls"`
}

// TLSConfig holds upstream TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this against test servers.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// RetryConfig bounds retries of transient upstream failures.
type RetryConfig struct {
	// Attempts counts the first try.
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// CacheConfig sets response cache lifetimes.
type CacheConfig struct {
	PageTTL  time.Duration `yaml:"page_ttl"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// TokenConfig controls when a stored token is refreshed.
type TokenConfig struct {
	// ExpirySkew is subtracted from the token expiration. Values below one
	// minute are rejected.
	ExpirySkew time.Duration `yaml:"expiry_skew"`
}

// StorageConfig locates the snapshot store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig drives watch mode.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// NotifyConfig lists where reports go.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// FailOnError makes a failed delivery fail the run. Otherwise the report
	// is queued for redelivery and the run succeeds.
	FailOnError bool `yaml:"fail_on_error"`

	// MaxAttempts is how many deliveries a queued report gets before it is
	// dead-lettered.
	MaxAttempts int `yaml:"max_attempts"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// MetricsConfig controls metric export. Both fields are optional.
type MetricsConfig struct {
	// Textfile is written after every run, for node_exporter's textfile
	// collector.
	Textfile string `yaml:"textfile"`
	// Listen serves /metrics in watch mode, e.g. ":9120".
	Listen string `yaml:"listen"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
	// Format is one of: text | json.
	Format string `yaml:"format"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:      DefaultBaseURL,
			PageSize:     DefaultPageSize,
			TokenPageURL: DefaultTokenPageURL,
			TokenPath:    DefaultTokenPath,
			Timeout:      DefaultTimeout,
			UserAgent:    DefaultUserAgent,
		},
		Retry: RetryConfig{Attempts: DefaultAttempts},
		Cache: CacheConfig{
			PageTTL:  DefaultPageTTL,
			TokenTTL: DefaultTokenTTL,
		},
		Token:    TokenConfig{ExpirySkew: DefaultExpirySkew},
		Storage:  StorageConfig{Path: DefaultStoragePath},
		Schedule: ScheduleConfig{Interval: DefaultInterval},
		Notify:   NotifyConfig{MaxAttempts: DefaultMaxAttempts},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Validate checks required fields and structural constraints.
func Validate(cfg *Config) error {
	for name, raw := range map[string]string{
		"upstream.base_url":       cfg.Upstream.BaseURL,
		"upstream.token_page_url": cfg.Upstream.TokenPageURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if cfg.Upstream.PageSize <= 0 {
		return fmt.Errorf("upstream.page_size must be positive")
	}
	if cfg.Upstream.TokenPath == "" {
		return fmt.Errorf("upstream.token_path is required")
	}
	if cfg.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be positive")
	}
	if cfg.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}
	if cfg.Cache.PageTTL <= 0 || cfg.Cache.TokenTTL <= 0 {
		return fmt.Errorf("cache ttls must be positive")
	}
	if cfg.Token.ExpirySkew < time.Minute {
		return fmt.Errorf("token.expiry_skew must be at least 1m")
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if cfg.Notify.MaxAttempts <= 0 {
		return fmt.Errorf("notify.max_attempts must be positive")
	}
	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("notify.webhooks[%d]: url_env is required", i)
		}
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}
