package testsupport

import (
	"path/filepath"
	"testing"

	"reelcast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.CronSecret = "test-secret"
	cfgVal.Render.APIKey = "render-key"
	cfgVal.Caption.APIKey = "caption-key"
	cfgVal.Distribution.APIKey = "distribution-key"
	cfgVal.Distribution.RateLimitDelayMS = 0
	cfgVal.Schedule.Timezone = "UTC"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithProviderURLs points the render, caption and distribution clients at
// test servers.
func WithProviderURLs(render, caption, distribution string) ConfigOption {
	return func(b *configBuilder) {
		if render != "" {
			b.cfg.Render.BaseURL = render
		}
		if caption != "" {
			b.cfg.Caption.BaseURL = caption
		}
		if distribution != "" {
			b.cfg.Distribution.BaseURL = distribution
		}
	}
}

// WithFeeds replaces the configured content sources.
func WithFeeds(feeds ...config.Feed) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feeds = feeds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
