package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Server contains HTTP surface configuration.
type Server struct {
	Bind string `toml:"bind"`
	// CronSecret guards the reconcile trigger endpoints ("Authorization: Bearer <secret>").
	CronSecret string `toml:"cron_secret"`
	// TrustedSchedulerHeader names a header set by a trusted scheduler (for example
	// "X-Cloudscheduler"). A request whose header equals TrustedSchedulerValue
	// bypasses the bearer check.
	TrustedSchedulerHeader string `toml:"trusted_scheduler_header"`
	TrustedSchedulerValue  string `toml:"trusted_scheduler_value"`
	// PublicBaseURL is advertised to providers as the webhook callback root.
	PublicBaseURL string `toml:"public_base_url"`
}

// Render contains configuration for the synthetic-presenter rendering provider.
type Render struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	AvatarID       string `toml:"avatar_id"`
	VoiceID        string `toml:"voice_id"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Caption contains configuration for the captioning/effects provider.
type Caption struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Template       string `toml:"template"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Distribution contains configuration for the social distribution provider.
type Distribution struct {
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	RateLimitDelayMS int    `toml:"rate_limit_delay_ms"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Storage contains configuration for the S3-compatible bucket used by the media relay.
type Storage struct {
	Bucket                 string `toml:"bucket"`
	Region                 string `toml:"region"`
	Endpoint               string `toml:"endpoint"`
	Prefix                 string `toml:"prefix"`
	PublicBaseURL          string `toml:"public_base_url"`
	AccessKey              string `toml:"access_key"`
	SecretKey              string `toml:"secret_key"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Reconcile contains failsafe reconciliation timing.
type Reconcile struct {
	Enabled                           bool `toml:"enabled"`
	IntervalSeconds                   int  `toml:"interval_seconds"`
	StuckThresholdSeconds             int  `toml:"stuck_threshold_seconds"`
	DistributionStuckThresholdSeconds int  `toml:"distribution_stuck_threshold_seconds"`
}

// Dispatch contains background task worker pool settings.
type Dispatch struct {
	Workers     int `toml:"workers"`
	QueueSize   int `toml:"queue_size"`
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`

	// EnqueueTimeoutMS bounds how long a caller waits for queue space. Zero
	// rejects immediately when the queue is full.
	EnqueueTimeoutMS int `toml:"enqueue_timeout_ms"`
}

// Schedule contains posting schedule settings.
type Schedule struct {
	Timezone string `toml:"timezone"`
}

// Feed describes a content source whose reachability is tracked.
type Feed struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// FeedHealth contains feed reachability check settings.
type FeedHealth struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelcast.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Server: HTTP bind address, cron secret, callback base URL
//   - Render / Caption / Distribution: external provider endpoints and credentials
//   - Storage: S3-compatible bucket for relayed media
//   - Reconcile: failsafe polling interval and stuck thresholds
//   - Dispatch: background task workers and retry policy
//   - Schedule: posting timezone
//   - Feeds / FeedHealth: content sources and reachability checks
//   - Notifications: ntfy push settings for critical alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Render        Render        `toml:"render"`
	Caption       Caption       `toml:"caption"`
	Distribution  Distribution  `toml:"distribution"`
	Storage       Storage       `toml:"storage"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Dispatch      Dispatch      `toml:"dispatch"`
	Schedule      Schedule      `toml:"schedule"`
	Feeds         []Feed        `toml:"feeds"`
	FeedHealth    FeedHealth    `toml:"feed_health"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelcast/config.toml")
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory is loaded first so secrets can be supplied without editing TOML.
func Load(path string) (*Config, string, bool, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelcast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file backing the record store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "reelcast.db")
}

// ScheduleLocation resolves the posting timezone.
func (c *Config) ScheduleLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// ReconcileInterval returns the failsafe pass interval.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}

// StuckThreshold returns the elapsed time after which a workflow awaiting a
// correlation id is failed.
func (c *Config) StuckThreshold() time.Duration {
	return time.Duration(c.Reconcile.StuckThresholdSeconds) * time.Second
}

// DistributionStuckThreshold returns the elapsed time after which a workflow
// stuck in distribution is failed.
func (c *Config) DistributionStuckThreshold() time.Duration {
	return time.Duration(c.Reconcile.DistributionStuckThresholdSeconds) * time.Second
}

// RateLimitDelay returns the pause enforced between distribution provider calls.
func (c *Config) RateLimitDelay() time.Duration {
	return time.Duration(c.Distribution.RateLimitDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
