package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.TrustedSchedulerHeader) != "" && strings.TrimSpace(c.Server.TrustedSchedulerValue) == "" {
		return errors.New("server.trusted_scheduler_value is required when server.trusted_scheduler_header is set")
	}
	return nil
}

func (c *Config) validateProviders() error {
	for key, raw := range map[string]string{
		"render.base_url":       c.Render.BaseURL,
		"caption.base_url":      c.Caption.BaseURL,
		"distribution.base_url": c.Distribution.BaseURL,
	} {
		if err := validateHTTPURL(key, raw); err != nil {
			return err
		}
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.New("render.width and render.height must be positive")
	}
	if _, err := language.Parse(c.Caption.Language); err != nil {
		return fmt.Errorf("caption.language %q is not a valid BCP 47 tag: %w", c.Caption.Language, err)
	}
	if c.Distribution.RateLimitDelayMS < 0 {
		return errors.New("distribution.rate_limit_delay_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"render.timeout_seconds":                         c.Render.TimeoutSeconds,
		"caption.timeout_seconds":                        c.Caption.TimeoutSeconds,
		"distribution.timeout_seconds":                   c.Distribution.TimeoutSeconds,
		"storage.download_timeout_seconds":               c.Storage.DownloadTimeoutSeconds,
		"reconcile.interval_seconds":                     c.Reconcile.IntervalSeconds,
		"reconcile.stuck_threshold_seconds":              c.Reconcile.StuckThresholdSeconds,
		"reconcile.distribution_stuck_threshold_seconds": c.Reconcile.DistributionStuckThresholdSeconds,
		"dispatch.workers":                               c.Dispatch.Workers,
		"dispatch.queue_size":                            c.Dispatch.QueueSize,
		"dispatch.base_delay_ms":                         c.Dispatch.BaseDelayMS,
		"dispatch.max_delay_ms":                          c.Dispatch.MaxDelayMS,
		"feed_health.timeout_seconds":                    c.FeedHealth.TimeoutSeconds,
		"feed_health.cache_ttl_seconds":                  c.FeedHealth.CacheTTLSeconds,
		"notifications.request_timeout":                  c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Dispatch.MaxRetries < 0 {
		return errors.New("dispatch.max_retries must be >= 0")
	}
	if c.Dispatch.EnqueueTimeoutMS < 0 {
		return errors.New("dispatch.enqueue_timeout_ms must be >= 0")
	}
	if c.Dispatch.MaxDelayMS < c.Dispatch.BaseDelayMS {
		return errors.New("dispatch.max_delay_ms must be >= dispatch.base_delay_ms")
	}
	if c.Reconcile.StuckThresholdSeconds <= c.Render.TimeoutSeconds {
		return errors.New("reconcile.stuck_threshold_seconds must exceed render.timeout_seconds")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	return nil
}

func (c *Config) validateFeeds() error {
	seen := make(map[string]struct{}, len(c.Feeds))
	for _, feed := range c.Feeds {
		if err := validateHTTPURL("feeds.url", feed.URL); err != nil {
			return err
		}
		if _, ok := seen[feed.Name]; ok {
			return fmt.Errorf("feeds: duplicate feed name %q", feed.Name)
		}
		seen[feed.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, raw)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
