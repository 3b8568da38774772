package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeProviders()
	c.normalizeStorage()
	c.normalizeFeeds()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.CronSecret = envFallback(c.Server.CronSecret, "CRON_SECRET")
	c.Server.TrustedSchedulerHeader = strings.TrimSpace(c.Server.TrustedSchedulerHeader)
	c.Server.TrustedSchedulerValue = envFallback(c.Server.TrustedSchedulerValue, "TRUSTED_SCHEDULER_VALUE")
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")
}

func (c *Config) normalizeProviders() {
	c.Render.BaseURL = trimURL(c.Render.BaseURL, defaultRenderBaseURL)
	c.Render.APIKey = envFallback(c.Render.APIKey, "RENDER_API_KEY")
	c.Render.AvatarID = strings.TrimSpace(c.Render.AvatarID)
	c.Render.VoiceID = strings.TrimSpace(c.Render.VoiceID)

	c.Caption.BaseURL = trimURL(c.Caption.BaseURL, defaultCaptionBaseURL)
	c.Caption.APIKey = envFallback(c.Caption.APIKey, "CAPTION_API_KEY")
	c.Caption.Template = strings.TrimSpace(c.Caption.Template)
	if c.Caption.Template == "" {
		c.Caption.Template = defaultCaptionTemplate
	}
	c.Caption.Language = strings.TrimSpace(c.Caption.Language)
	if c.Caption.Language == "" {
		c.Caption.Language = defaultCaptionLanguage
	}

	c.Distribution.BaseURL = trimURL(c.Distribution.BaseURL, defaultDistributionBaseURL)
	c.Distribution.APIKey = envFallback(c.Distribution.APIKey, "DISTRIBUTION_API_KEY")
}

func (c *Config) normalizeStorage() {
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.Endpoint = strings.TrimRight(strings.TrimSpace(c.Storage.Endpoint), "/")
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	c.Storage.AccessKey = envFallback(c.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	c.Storage.SecretKey = envFallback(c.Storage.SecretKey, "STORAGE_SECRET_KEY")
}

func (c *Config) normalizeFeeds() {
	feeds := c.Feeds[:0]
	for _, feed := range c.Feeds {
		feed.Name = strings.TrimSpace(feed.Name)
		feed.URL = strings.TrimSpace(feed.URL)
		if feed.URL == "" {
			continue
		}
		if feed.Name == "" {
			feed.Name = feed.URL
		}
		feeds = append(feeds, feed)
	}
	c.Feeds = feeds
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}

func trimURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}
