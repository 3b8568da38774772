package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reelcast/internal/alerts"
	"reelcast/internal/api"
	"reelcast/internal/config"
	"reelcast/internal/dispatch"
	"reelcast/internal/fanout"
	"reelcast/internal/feedhealth"
	"reelcast/internal/logging"
	"reelcast/internal/mediarelay"
	"reelcast/internal/metrics"
	"reelcast/internal/notifications"
	"reelcast/internal/reconcile"
	"reelcast/internal/services"
	"reelcast/internal/services/caption"
	"reelcast/internal/services/distribution"
	"reelcast/internal/services/render"
	"reelcast/internal/store"
	"reelcast/internal/workflow"
)

// Components holds every collaborator the daemon and CLI commands share.
type Components struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Metrics  *metrics.Metrics
	Notifier notifications.Service
	Alerts   *alerts.Service

	Render       *render.Client
	Caption      *caption.Client
	Distribution *distribution.Client
	Relay        *mediarelay.Relay

	// Dispatcher is nil when effects run inline.
	Dispatcher *dispatch.Dispatcher
	Engine     *workflow.Engine
	Reconciler *reconcile.Reconciler
	Feeds      *feedhealth.Checker
	Workflows  *api.WorkflowService
}

// WireOptions selects how effects run.
type WireOptions struct {
	// Background routes effects through a dispatcher worker pool. Without it
	// effects run inline in the caller, which suits one-shot CLI commands.
	Background bool
}

// Wire builds the component graph on top of an open store.
func Wire(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger, opts WireOptions) (*Components, error) {
	if cfg == nil || st == nil {
		return nil, fmt.Errorf("wire requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	loc, err := cfg.ScheduleLocation()
	if err != nil {
		return nil, err
	}

	c := &Components{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Metrics:   metrics.New(),
		Notifier:  notifications.NewService(cfg),
		Workflows: api.NewWorkflowService(st),
	}
	c.Alerts = alerts.NewService(st, logger, alerts.WithNotifier(c.Notifier))

	httpOpts := func(provider string, timeoutSeconds int) []services.HTTPOption {
		opts := []services.HTTPOption{
			services.WithObserver(c.Metrics),
			services.WithLogger(logging.NewComponentLogger(logger, provider)),
		}
		if timeoutSeconds > 0 {
			opts = append(opts, services.WithHTTPClient(&http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}))
		}
		return opts
	}
	c.Render = render.NewClient(render.Config{
		BaseURL:     cfg.Render.BaseURL,
		APIKey:      cfg.Render.APIKey,
		AvatarID:    cfg.Render.AvatarID,
		VoiceID:     cfg.Render.VoiceID,
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		CallbackURL: callbackURL(cfg, "render"),
	}, httpOpts("render", cfg.Render.TimeoutSeconds)...)
	c.Caption = caption.NewClient(caption.Config{
		BaseURL:     cfg.Caption.BaseURL,
		APIKey:      cfg.Caption.APIKey,
		Template:    cfg.Caption.Template,
		Language:    cfg.Caption.Language,
		CallbackURL: callbackURL(cfg, "caption"),
	}, httpOpts("caption", cfg.Caption.TimeoutSeconds)...)
	c.Distribution = distribution.NewClient(distribution.Config{
		BaseURL: cfg.Distribution.BaseURL,
		APIKey:  cfg.Distribution.APIKey,
	}, httpOpts("distribution", cfg.Distribution.TimeoutSeconds)...)

	providers := workflow.Providers{
		Render:  c.Render,
		Caption: c.Caption,
		Distribution: fanout.New(c.Distribution,
			fanout.WithDelay(cfg.RateLimitDelay()),
			fanout.WithLocation(loc),
			fanout.WithLogger(logger),
		),
	}
	if relayCfg := mediarelay.FromConfig(cfg); relayCfg.Enabled() {
		relay, err := mediarelay.Open(ctx, relayCfg, mediarelay.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open media relay: %w", err)
		}
		c.Relay = relay
		providers.Relay = relay
	}

	engineOpts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithAlerter(c.Alerts),
		workflow.WithObserver(c.Metrics),
	}
	if opts.Background {
		c.Dispatcher = dispatch.New(dispatch.FromConfig(cfg),
			dispatch.WithLogger(logger),
			dispatch.WithDeadLetters(st),
			dispatch.WithObserver(c.Metrics),
			dispatch.WithDeadLetterHook(func(ctx context.Context, task dispatch.Task, err error) {
				if _, abortErr := c.Engine.Abort(ctx, task.Ref, task.Stage, err); abortErr != nil {
					logger.Error("failed to abort workflow after dead letter",
						logging.String(logging.FieldWorkflowID, task.Ref.ID),
						logging.Error(abortErr),
					)
				}
			}),
		)
		c.Metrics.TrackQueueDepth(c.Dispatcher.Pending)
		engineOpts = append(engineOpts, workflow.WithDispatcher(c.Dispatcher))
	}
	c.Engine = workflow.NewEngine(st, providers, engineOpts...)

	c.Reconciler = reconcile.New(st, c.Engine, c.Render, c.Caption, reconcile.FromConfig(cfg),
		reconcile.WithLogger(logger),
		reconcile.WithAlerter(c.Alerts),
		reconcile.WithObserver(c.Metrics),
	)
	c.Feeds = feedhealth.FromConfig(cfg, st,
		feedhealth.WithLogger(logger),
		feedhealth.WithAlerter(c.Alerts),
		feedhealth.WithNotifier(c.Notifier),
	)
	return c, nil
}

func callbackURL(cfg *config.Config, provider string) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.Server.PublicBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/api/webhooks/" + provider
}
