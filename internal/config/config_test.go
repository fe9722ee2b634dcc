package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
upstream:
  base_url: "http://localhost:8080/api/v2/projects"
  page_size: 50
  timeout: 5s
  tls:
    insecure_skip_verify: true
retry:
  attempts: 4
  delay: 250ms
cache:
  page_ttl: 1h
storage:
  path: /var/lib/rezoningwatch/state.db
schedule:
  interval: 15m
notify:
  fail_on_error: true
  webhooks:
    - type: slack
      url_env: SLACK_WEBHOOK_URL
metrics:
  textfile: /var/lib/node_exporter/rezoningwatch.prom
log:
  level: debug
  format: json
`
	cfg := loadFromString(t, yaml)

	if cfg.Upstream.BaseURL != "http://localhost:8080/api/v2/projects" {
		t.Errorf("base_url: got %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.PageSize != 50 {
		t.Errorf("page_size: got %d", cfg.Upstream.PageSize)
	}
	if !cfg.Upstream.TLS.InsecureSkipVerify {
		t.Error("tls.insecure_skip_verify: got false")
	}
	if cfg.Retry.Attempts != 4 || cfg.Retry.Delay != 250*time.Millisecond {
		t.Errorf("retry: got %+v", cfg.Retry)
	}
	if cfg.Cache.PageTTL != time.Hour {
		t.Errorf("page_ttl: got %v", cfg.Cache.PageTTL)
	}
	if cfg.Schedule.Interval != 15*time.Minute {
		t.Errorf("interval: got %v", cfg.Schedule.Interval)
	}
	if !cfg.Notify.FailOnError {
		t.Error("fail_on_error: got false")
	}
	if len(cfg.Notify.Webhooks) != 1 || cfg.Notify.Webhooks[0].URLEnv != "SLACK_WEBHOOK_URL" {
		t.Errorf("webhooks: got %+v", cfg.Notify.Webhooks)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log: got %+v", cfg.Log)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "storage:\n  path: state.db\n")

	if cfg.Upstream.BaseURL != DefaultBaseURL {
		t.Errorf("default base_url: got %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.PageSize != DefaultPageSize {
		t.Errorf("default page_size: got %d, want %d", cfg.Upstream.PageSize, DefaultPageSize)
	}
	if cfg.Upstream.TokenPath != DefaultTokenPath {
		t.Errorf("default token_path: got %q", cfg.Upstream.TokenPath)
	}
	if cfg.Retry.Attempts != DefaultAttempts || cfg.Retry.Delay != 0 {
		t.Errorf("default retry: got %+v", cfg.Retry)
	}
	if cfg.Cache.PageTTL != DefaultPageTTL || cfg.Cache.TokenTTL != DefaultTokenTTL {
		t.Errorf("default cache: got %+v", cfg.Cache)
	}
	if cfg.Token.ExpirySkew != DefaultExpirySkew {
		t.Errorf("default expiry_skew: got %v", cfg.Token.ExpirySkew)
	}
	if cfg.Notify.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("default max_attempts: got %d", cfg.Notify.MaxAttempts)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"relative base url", "upstream:\n  base_url: /api/v2/projects\n"},
		{"zero page size", "upstream:\n  page_size: -1\n"},
		{"zero attempts", "retry:\n  attempts: -2\n"},
		{"negative delay", "retry:\n  delay: -1s\n"},
		{"skew below a minute", "token:\n  expiry_skew: 30s\n"},
		{"empty storage path", "storage:\n  path: \"\"\n"},
		{"unknown webhook type", "notify:\n  webhooks:\n    - type: pagerduty\n      url_env: X\n"},
		{"webhook without env", "notify:\n  webhooks:\n    - type: slack\n"},
		{"unknown log level", "log:\n  level: loud\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"bad yaml", "upstream: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("storage.path: got %q", cfg.Storage.Path)
	}
}

func TestDefault_Validates(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Errorf("Validate(Default()) = %v", err)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("SLACK_URL", "https://hooks.slack.com/services/T/B/X")
	w := WebhookConfig{Type: "slack", URLEnv: "SLACK_URL"}
	if got := w.URL(); got != "https://hooks.slack.com/services/T/B/X" {
		t.Errorf("URL(): got %q", got)
	}
	if got := (WebhookConfig{Type: "slack"}).URL(); got != "" {
		t.Errorf("URL() with no URLEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("schedule:\n  interval: 1h\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
	}()

	// The watcher registers asynchronously, so keep writing until a reload
	// with the new content arrives. A truncate-then-write may surface an
	// intermediate empty file first.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Schedule.Interval != 5*time.Minute {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch() error = %v", err)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte("schedule:\n  interval: 5m\n"), 0o600)
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
