package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reelcast/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("RENDER_API_KEY", "render-key")
	t.Setenv("CRON_SECRET", "cron-secret")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "reelcast")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "reelcast.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Render.APIKey != "render-key" {
		t.Fatalf("expected render key from env, got %q", cfg.Render.APIKey)
	}
	if cfg.Server.CronSecret != "cron-secret" {
		t.Fatalf("expected cron secret from env, got %q", cfg.Server.CronSecret)
	}
	if cfg.ReconcileInterval() != 10*time.Minute {
		t.Fatalf("unexpected reconcile interval: %s", cfg.ReconcileInterval())
	}
	if cfg.StuckThreshold() != 30*time.Minute {
		t.Fatalf("unexpected stuck threshold: %s", cfg.StuckThreshold())
	}
	if cfg.DistributionStuckThreshold() != 2*time.Hour {
		t.Fatalf("unexpected distribution stuck threshold: %s", cfg.DistributionStuckThreshold())
	}
	if cfg.RateLimitDelay() != time.Second {
		t.Fatalf("unexpected rate limit delay: %s", cfg.RateLimitDelay())
	}
	loc, err := cfg.ScheduleLocation()
	if err != nil {
		t.Fatalf("ScheduleLocation: %v", err)
	}
	if loc.String() != "America/Chicago" {
		t.Fatalf("unexpected schedule location %q", loc)
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("RENDER_API_KEY", "env-key")
	dir := t.TempDir()
	path := filepath.Join(dir, "reelcast.toml")
	contents := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[render]
base_url = "https://render.test/"
api_key = "file-key"

[caption]
language = "es-MX"

[storage]
prefix = "/clips/"
public_base_url = "https://cdn.test/"

[schedule]
timezone = "America/New_York"

[[feeds]]
url = "https://feeds.test/a.xml"

[[feeds]]
name = "b"
url = "https://feeds.test/b.xml"

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Render.BaseURL != "https://render.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Render.BaseURL)
	}
	if cfg.Render.APIKey != "file-key" {
		t.Fatalf("expected file key to win over env, got %q", cfg.Render.APIKey)
	}
	if cfg.Storage.Prefix != "clips" || cfg.Storage.PublicBaseURL != "https://cdn.test" {
		t.Fatalf("unexpected storage normalization: %+v", cfg.Storage)
	}
	if len(cfg.Feeds) != 2 || cfg.Feeds[0].Name != "https://feeds.test/a.xml" {
		t.Fatalf("unexpected feeds: %+v", cfg.Feeds)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercase log format, got %q", cfg.Logging.Format)
	}
	if cfg.Render.Width != 1080 || cfg.Reconcile.IntervalSeconds != 600 {
		t.Fatal("expected unspecified values to keep defaults")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "CRON_SECRET") {
		t.Fatalf("sample config missing env documentation: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Reconcile.StuckThresholdSeconds != 1800 {
		t.Fatalf("unexpected sample stuck threshold %d", cfg.Reconcile.StuckThresholdSeconds)
	}
	if len(cfg.Feeds) == 0 {
		t.Fatal("expected sample feeds")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "bad render url",
			mutate: func(c *config.Config) { c.Render.BaseURL = "ftp://render" },
			want:   "render.base_url",
		},
		{
			name:   "bad language",
			mutate: func(c *config.Config) { c.Caption.Language = "not a tag!" },
			want:   "caption.language",
		},
		{
			name:   "zero interval",
			mutate: func(c *config.Config) { c.Reconcile.IntervalSeconds = 0 },
			want:   "reconcile.interval_seconds",
		},
		{
			name:   "unknown timezone",
			mutate: func(c *config.Config) { c.Schedule.Timezone = "Mars/Olympus" },
			want:   "schedule.timezone",
		},
		{
			name: "duplicate feed",
			mutate: func(c *config.Config) {
				c.Feeds = []config.Feed{{Name: "a", URL: "https://x.test"}, {Name: "a", URL: "https://y.test"}}
			},
			want: "duplicate feed",
		},
		{
			name:   "delay ordering",
			mutate: func(c *config.Config) { c.Dispatch.MaxDelayMS = 1 },
			want:   "dispatch.max_delay_ms",
		},
		{
			name:   "trusted header without value",
			mutate: func(c *config.Config) { c.Server.TrustedSchedulerHeader = "X-Cloudscheduler" },
			want:   "server.trusted_scheduler_value",
		},
		{
			name:   "log format",
			mutate: func(c *config.Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
