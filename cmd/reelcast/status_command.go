package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelcast/internal/api"
	"reelcast/internal/config"
	"reelcast/internal/daemon"
	"reelcast/internal/mediarelay"
	"reelcast/internal/store"
)

const healthProbeTimeout = 3 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon reachability, provider configuration and workflow counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				lines := renderSectionHeader("Daemon", colorize)
				lines = append(lines, daemonLines(runCtx, c.Config, colorize)...)
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Providers", colorize)...)
				lines = append(lines, providerLines(c.Config, colorize)...)
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Workflows", colorize)...)
				counts, err := workflowCountLines(runCtx, c, colorize)
				if err != nil {
					return err
				}
				lines = append(lines, counts...)
				fmt.Fprintln(out, strings.Join(lines, "\n"))
				return nil
			})
		},
	}
}

func daemonLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	health, err := probeHealth(ctx, cfg.Server.Bind)
	if err != nil {
		return []string{renderStatusLine("Daemon", statusError, "Not reachable at "+cfg.Server.Bind, colorize)}
	}
	lines := []string{renderStatusLine("Daemon", statusOK, "Running at "+cfg.Server.Bind, colorize)}
	dbKind := statusOK
	if health.Database != "ok" {
		dbKind = statusError
	}
	lines = append(lines, renderStatusLine("Database", dbKind, health.Database, colorize))
	lines = append(lines, renderStatusLine("Queue depth", statusInfo, strconv.Itoa(health.QueueDepth), colorize))
	if health.FeedsHealthy != nil {
		kind, msg := statusOK, "Healthy"
		if !*health.FeedsHealthy {
			kind, msg = statusWarn, "All feeds unreachable"
		}
		lines = append(lines, renderStatusLine("Feeds", kind, msg+" (as of "+health.FeedsAsOf+")", colorize))
	}
	return lines
}

// probeHealth reads the running daemon's /healthz.
func probeHealth(ctx context.Context, bind string) (api.Health, error) {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return api.Health{}, err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+net.JoinHostPort(host, port)+"/healthz", nil)
	if err != nil {
		return api.Health{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return api.Health{}, err
	}
	defer resp.Body.Close()
	var health api.Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&health); err != nil {
		return api.Health{}, fmt.Errorf("decode health: %w", err)
	}
	return health, nil
}

func providerLines(cfg *config.Config, colorize bool) []string {
	keyed := func(label, baseURL, key string) string {
		if strings.TrimSpace(key) == "" {
			return renderStatusLine(label, statusWarn, "Missing API key", colorize)
		}
		return renderStatusLine(label, statusOK, baseURL, colorize)
	}
	lines := []string{
		keyed("Render", cfg.Render.BaseURL, cfg.Render.APIKey),
		keyed("Caption", cfg.Caption.BaseURL, cfg.Caption.APIKey),
		keyed("Distribution", cfg.Distribution.BaseURL, cfg.Distribution.APIKey),
	}
	if relay := mediarelay.FromConfig(cfg); relay.Enabled() {
		lines = append(lines, renderStatusLine("Media relay", statusOK, "Bucket "+cfg.Storage.Bucket, colorize))
	} else {
		lines = append(lines, renderStatusLine("Media relay", statusInfo, "Disabled (provider URLs are forwarded)", colorize))
	}
	auth := renderStatusLine("Operator auth", statusOK, "Bearer secret set", colorize)
	if strings.TrimSpace(cfg.Server.CronSecret) == "" {
		auth = renderStatusLine("Operator auth", statusWarn, "No cron secret; operator API is open", colorize)
	}
	lines = append(lines, auth)
	lines = append(lines, renderStatusLine("Failsafe loop", statusInfo, yesNo(cfg.Reconcile.Enabled)+", every "+cfg.ReconcileInterval().String(), colorize))
	return lines
}

func workflowCountLines(ctx context.Context, c *daemon.Components, colorize bool) ([]string, error) {
	resp, err := c.Workflows.List(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(resp.Counts))
	for _, status := range store.AllStatuses() {
		n := resp.Counts[string(status)]
		kind := statusInfo
		if status == store.StatusFailed && n > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(string(status), kind, strconv.Itoa(n), colorize))
	}
	return lines, nil
}
