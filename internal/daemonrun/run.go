package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"reelcast/internal/config"
	"reelcast/internal/daemon"
	"reelcast/internal/logging"
	"reelcast/internal/mediarelay"
	"reelcast/internal/store"
)

const shutdownTimeout = 30 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the reelcast daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelcast-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reelcast.log link: %v\n", err)
	}
	logProviderSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "reelcast.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open workflow store", logging.Error(err))
		return err
	}
	defer st.Close()

	components, err := daemon.Wire(signalCtx, cfg, st, logger, daemon.WireOptions{Background: true})
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	d, err := daemon.New(cfg, components)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the bind address and that no other instance holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelcast daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	return d.Close(stopCtx)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "reelcast.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logProviderSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("provider snapshot",
		logging.String(logging.FieldEventType, "provider_snapshot"),
		logging.Bool("render_key_present", strings.TrimSpace(cfg.Render.APIKey) != ""),
		logging.String("render_base_url", cfg.Render.BaseURL),
		logging.Bool("caption_key_present", strings.TrimSpace(cfg.Caption.APIKey) != ""),
		logging.String("caption_base_url", cfg.Caption.BaseURL),
		logging.Bool("distribution_key_present", strings.TrimSpace(cfg.Distribution.APIKey) != ""),
		logging.String("distribution_base_url", cfg.Distribution.BaseURL),
		logging.Bool("relay_enabled", mediarelay.FromConfig(cfg).Enabled()),
		logging.Int("feeds", len(cfg.Feeds)),
		logging.Bool("auth_enabled", strings.TrimSpace(cfg.Server.CronSecret) != ""),
	)
}
