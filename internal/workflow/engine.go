package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelcast/internal/alerts"
	"reelcast/internal/dispatch"
	"reelcast/internal/fanout"
	"reelcast/internal/logging"
	"reelcast/internal/mediarelay"
	"reelcast/internal/services"
	"reelcast/internal/services/caption"
	"reelcast/internal/services/render"
	"reelcast/internal/store"
)

// Store is the persistence the engine needs.
type Store interface {
	Create(ctx context.Context, rec *store.Record) (*store.Record, error)
	Get(ctx context.Context, ref store.Ref) (*store.Record, error)
	CompareAndSwap(ctx context.Context, next *store.Record, expected store.Status) (*store.Record, error)
}

// Alerter records failures.
type Alerter interface {
	LogAlert(ctx context.Context, alertType alerts.Type, severity alerts.Severity, message string, details map[string]any, workflowID string) (*store.Alert, error)
}

// RenderSubmitter submits scripts to the render provider.
type RenderSubmitter interface {
	Submit(ctx context.Context, req render.Request) (string, error)
}

// CaptionSubmitter submits videos to the caption provider.
type CaptionSubmitter interface {
	Submit(ctx context.Context, req caption.Request) (string, error)
}

// Relayer copies provider media into stable storage.
type Relayer interface {
	Relay(ctx context.Context, sourceURL, key string) (string, error)
}

// Distributor fans a finished video out to platforms.
type Distributor interface {
	Distribute(ctx context.Context, rec *store.Record, videoURL string, plan fanout.Plan) (fanout.Outcome, error)
}

// TaskSubmitter queues background work.
type TaskSubmitter interface {
	Submit(ctx context.Context, task dispatch.Task) error
}

// TransitionObserver receives committed transitions (metrics).
type TransitionObserver interface {
	ObserveTransition(kind store.Kind, from, to store.Status, event EventType, source Source)
}

// Providers bundles the external collaborators effects call.
type Providers struct {
	Render       RenderSubmitter
	Caption      CaptionSubmitter
	Distribution Distributor
	// Relay is optional; without it captions are built from the provider URL.
	Relay Relayer
}

// Result reports what Apply did.
type Result struct {
	Record  *store.Record
	Effects []Effect
	// Applied is false when the event was a duplicate or stale no-op.
	Applied bool
}

// Engine commits transitions and runs their effects.
type Engine struct {
	store      Store
	providers  Providers
	alerts     Alerter
	dispatcher TaskSubmitter
	observer   TransitionObserver
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.NewComponentLogger(logger, "workflow")
	}
}

// WithDispatcher runs effects in the background. Without one, effects run
// inline on the caller's goroutine.
func WithDispatcher(d TaskSubmitter) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithAlerter records failures as alerts.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) {
		e.alerts = a
	}
}

// WithObserver attaches a transition observer.
func WithObserver(observer TransitionObserver) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// NewEngine constructs an engine.
func NewEngine(st Store, providers Providers, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		providers: providers,
		logger:    logging.NewComponentLogger(nil, "workflow"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create stores a new queued record.
func (e *Engine) Create(ctx context.Context, rec *store.Record) (*store.Record, error) {
	if rec == nil {
		return nil, errors.New("record is nil")
	}
	if _, err := Lookup(rec.Kind); err != nil {
		return nil, err
	}
	rec.Status = store.StatusQueued
	now := e.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.StatusChangedAt = now
	created, err := e.store.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	e.logger.Info("workflow created",
		logging.String(logging.FieldWorkflowID, created.ID),
		logging.String(logging.FieldKind, string(created.Kind)),
		logging.String(logging.FieldEventType, "workflow_created"),
	)
	return created, nil
}

// Kickoff claims a queued record and submits it for rendering.
func (e *Engine) Kickoff(ctx context.Context, ref store.Ref, source Source) (Result, error) {
	return e.Handle(ctx, ref, Event{Type: EventKickoff, Source: source})
}

// Abort fails a record whose background continuation for stage could not
// complete. A record that has left stage is untouched.
func (e *Engine) Abort(ctx context.Context, ref store.Ref, stage store.Status, cause error) (Result, error) {
	reason := "background task failed"
	if cause != nil {
		reason = cause.Error()
	}
	return e.Apply(ctx, ref, Event{Type: EventAborted, Source: SourceDispatcher, Stage: stage, Error: reason})
}

// Handle applies ev and schedules the resulting effects.
func (e *Engine) Handle(ctx context.Context, ref store.Ref, ev Event) (Result, error) {
	result, err := e.Apply(ctx, ref, ev)
	if err != nil || !result.Applied {
		return result, err
	}
	for _, eff := range result.Effects {
		if err := e.schedule(ctx, eff); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Apply commits ev against the stored record with a status-guarded write.
// A lost race is retried once against the fresh record; duplicates and stale
// events return Applied=false with no error.
func (e *Engine) Apply(ctx context.Context, ref store.Ref, ev Event) (Result, error) {
	logger := logging.WithContext(ctx, e.logger).With(
		logging.String(logging.FieldWorkflowID, ref.ID),
		logging.String(logging.FieldKind, string(ref.Kind)),
		logging.String("event", string(ev.Type)),
		logging.String("source", string(ev.Source)),
	)

	const attempts = 2
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		rec, err := e.store.Get(ctx, ref)
		if err != nil {
			return Result{}, fmt.Errorf("load %s: %w", ref, err)
		}
		if rec == nil {
			return Result{}, fmt.Errorf("%w: %s", store.ErrNotFound, ref)
		}
		now := e.now().UTC()
		out, err := Transition(rec, ev, now)
		if errors.Is(err, ErrDuplicateOrStale) {
			logger.Debug("event ignored", logging.String("status", string(rec.Status)), logging.Error(err))
			return Result{Record: rec}, nil
		}
		if err != nil {
			return Result{Record: rec}, err
		}

		stored, err := e.store.CompareAndSwap(ctx, out.Next, out.Expected)
		if errors.Is(err, store.ErrConflict) {
			lastErr = err
			logger.Debug("transition lost race; re-evaluating", logging.Error(err))
			continue
		}
		if err != nil {
			return Result{Record: rec}, fmt.Errorf("commit %s: %w", ev.Type, err)
		}

		e.committed(ctx, logger, rec, stored, ev, out)
		return Result{Record: stored, Effects: out.Effects, Applied: true}, nil
	}
	return Result{}, fmt.Errorf("apply %s to %s: %w", ev.Type, ref, lastErr)
}

func (e *Engine) committed(ctx context.Context, logger *slog.Logger, before, after *store.Record, ev Event, out Outcome) {
	if e.observer != nil {
		e.observer.ObserveTransition(after.Kind, before.Status, after.Status, ev.Type, ev.Source)
	}
	if before.Status != after.Status {
		logger.Info("workflow transition",
			logging.String("from", string(before.Status)),
			logging.String("to", string(after.Status)),
			logging.String(logging.FieldEventType, "status_transition"),
		)
	}
	if out.Partial {
		logging.WarnWithContext(logger, "distribution partially failed", "distribution_partial",
			logging.Int("posts", len(after.DistributionPostIDs)),
			logging.Int("errors", len(after.DistributionErrors)),
			logging.Error(ErrPartialDistribution),
			logging.String(logging.FieldErrorHint, "reconnect the failing platforms in the distribution provider"),
		)
	}
	if out.Alert == nil || e.alerts == nil {
		return
	}
	details := map[string]any{
		"kind":   string(after.Kind),
		"event":  string(ev.Type),
		"source": string(ev.Source),
		"from":   string(before.Status),
	}
	if ev.CorrelationID != "" {
		details["correlation_id"] = ev.CorrelationID
	}
	if len(after.DistributionErrors) > 0 {
		details["distribution_errors"] = after.DistributionErrors
	}
	if _, err := e.alerts.LogAlert(ctx, out.Alert.Type, out.Alert.Severity, out.Alert.Message, details, after.ID); err != nil {
		logger.Error("failed to record alert", logging.Error(err))
	}
}

func (e *Engine) schedule(ctx context.Context, eff Effect) error {
	if e.dispatcher == nil {
		return e.RunEffect(ctx, eff)
	}
	task := dispatch.Task{
		Name:  string(eff.Type),
		Ref:   eff.Ref,
		Stage: eff.Stage,
		Run: func(taskCtx context.Context) error {
			return e.RunEffect(taskCtx, eff)
		},
	}
	if err := e.dispatcher.Submit(ctx, task); err != nil {
		return fmt.Errorf("dispatch %s for %s: %w", eff.Type, eff.Ref, err)
	}
	return nil
}

// RunEffect performs eff if the record still needs it. Transient provider
// failures are recorded as a retry and returned so the caller retries;
// permanent failures fail the workflow and return nil.
func (e *Engine) RunEffect(ctx context.Context, eff Effect) error {
	rec, err := e.store.Get(ctx, eff.Ref)
	if err != nil {
		return fmt.Errorf("load %s: %w", eff.Ref, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", store.ErrNotFound, eff.Ref)
	}
	if rec.Status != eff.Stage {
		return nil
	}
	strategy, err := Lookup(rec.Kind)
	if err != nil {
		return e.effectFailed(ctx, rec, eff, err)
	}
	ctx = services.WithWorkflowID(ctx, rec.ID)
	ctx = services.WithKind(ctx, string(rec.Kind))
	ctx = services.WithStage(ctx, string(rec.Status))

	switch eff.Type {
	case EffectSubmitRender:
		return e.submitRender(ctx, rec, eff, strategy)
	case EffectSubmitCaption:
		return e.submitCaption(ctx, rec, eff, strategy)
	case EffectDistribute:
		return e.distribute(ctx, rec, eff, strategy)
	}
	return fmt.Errorf("unknown effect %q", eff.Type)
}

func (e *Engine) submitRender(ctx context.Context, rec *store.Record, eff Effect, strategy KindStrategy) error {
	if rec.RenderCorrelationID != "" {
		return nil
	}
	if e.providers.Render == nil {
		return e.effectFailed(ctx, rec, eff, services.Wrap(services.ErrConfiguration, "render", "submit", "render provider not configured", nil))
	}
	id, err := e.providers.Render.Submit(ctx, strategy.RenderRequest(rec))
	if err != nil {
		return e.effectFailed(ctx, rec, eff, err)
	}
	_, err = e.Apply(ctx, rec.Ref(), Event{Type: EventRenderSubmitted, Source: SourceDispatcher, CorrelationID: id})
	return err
}

func (e *Engine) submitCaption(ctx context.Context, rec *store.Record, eff Effect, strategy KindStrategy) error {
	if rec.CaptionCorrelationID != "" {
		return nil
	}
	if e.providers.Caption == nil {
		return e.effectFailed(ctx, rec, eff, services.Wrap(services.ErrConfiguration, "caption", "submit", "caption provider not configured", nil))
	}
	videoURL := rec.RelayedVideoURL
	if videoURL == "" {
		videoURL = rec.RenderVideoURL
		if e.providers.Relay != nil {
			relayed, err := e.providers.Relay.Relay(ctx, rec.RenderVideoURL, mediarelay.ObjectKey(string(rec.Kind), rec.ID, "render"))
			if err != nil {
				return e.effectFailed(ctx, rec, eff, err)
			}
			videoURL = relayed
		}
	}
	id, err := e.providers.Caption.Submit(ctx, strategy.CaptionRequest(rec, videoURL))
	if err != nil {
		return e.effectFailed(ctx, rec, eff, err)
	}
	ev := Event{Type: EventCaptionSubmitted, Source: SourceDispatcher, CorrelationID: id}
	if videoURL != rec.RenderVideoURL {
		ev.RelayedURL = videoURL
	}
	_, err = e.Apply(ctx, rec.Ref(), ev)
	return err
}

func (e *Engine) distribute(ctx context.Context, rec *store.Record, eff Effect, strategy KindStrategy) error {
	if len(rec.DistributionPostIDs) > 0 {
		return nil
	}
	if e.providers.Distribution == nil {
		return e.effectFailed(ctx, rec, eff, services.Wrap(services.ErrConfiguration, "distribution", "post", "distribution provider not configured", nil))
	}
	outcome, err := e.providers.Distribution.Distribute(ctx, rec, rec.FinalVideoURL, strategy.Plan(rec))
	if err != nil {
		return e.effectFailed(ctx, rec, eff, err)
	}
	_, err = e.Apply(ctx, rec.Ref(), Event{
		Type:         EventDistributed,
		Source:       SourceDispatcher,
		PostIDs:      outcome.PostIDs,
		Errors:       outcome.Errors,
		ScheduledFor: outcome.ScheduledFor,
	})
	return err
}

func (e *Engine) effectFailed(ctx context.Context, rec *store.Record, eff Effect, cause error) error {
	logger := logging.WithContext(ctx, e.logger).With(
		logging.String(logging.FieldWorkflowID, rec.ID),
		logging.String(logging.FieldKind, string(rec.Kind)),
		logging.String("effect", string(eff.Type)),
	)
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	if services.IsTransient(cause) {
		logging.WarnWithContext(logger, "effect failed; will retry", "effect_retry",
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "provider or storage may be degraded"),
		)
		if _, err := e.Apply(ctx, rec.Ref(), Event{Type: EventEffectRetry, Source: SourceDispatcher, Stage: eff.Stage, Error: cause.Error()}); err != nil {
			logger.Error("failed to record retry", logging.Error(err))
		}
		return cause
	}
	logging.ErrorWithContext(logger, "effect failed permanently", "effect_failed",
		logging.Error(cause),
		logging.Alert(string(alerts.TypeBackgroundTaskFailed)),
		logging.String(logging.FieldErrorHint, "inspect the provider response in the alert details"),
	)
	ev := Event{Type: EventAborted, Source: SourceDispatcher, Stage: eff.Stage, Error: cause.Error()}
	if services.IsPermanent(cause) {
		// a provider rejection is reported as that stage's failure
		switch eff.Type {
		case EffectSubmitRender:
			ev.Type = EventRenderFailed
		case EffectSubmitCaption:
			ev.Type = EventCaptionFailed
		}
	}
	if _, err := e.Apply(ctx, rec.Ref(), ev); err != nil {
		return fmt.Errorf("abort after %v: %w", cause, err)
	}
	return nil
}
