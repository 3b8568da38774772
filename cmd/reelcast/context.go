package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reelcast/internal/config"
	"reelcast/internal/daemon"
	"reelcast/internal/logging"
	"reelcast/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// commandLogger writes warnings and errors to the command's stderr so one-shot
// runs surface provider failures without flooding the terminal.
func commandLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{
		Level:  "warn",
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// withComponents opens the store and wires the pipeline without background
// workers; effects run inline on the calling goroutine.
func (c *commandContext) withComponents(cmd *cobra.Command, fn func(context.Context, *daemon.Components) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	components, err := daemon.Wire(ctx, cfg, st, commandLogger(cmd, cfg), daemon.WireOptions{})
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	return fn(ctx, components)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
