package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reelcast/internal/alerts"
	"reelcast/internal/config"
	"reelcast/internal/logging"
	"reelcast/internal/services"
	"reelcast/internal/store"
	"reelcast/internal/workflow"
)

// Stage names one failsafe pass.
type Stage string

const (
	StageKickoff      Stage = "kickoff"
	StageRender       Stage = "render"
	StageCaption      Stage = "caption"
	StageDistribution Stage = "distribution"
)

var allStages = []Stage{StageKickoff, StageRender, StageCaption, StageDistribution}

// Stages returns every pass in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// ParseStage converts a string into a Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, stage := range allStages {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

func (s Stage) status() store.Status {
	switch s {
	case StageKickoff:
		return store.StatusQueued
	case StageRender:
		return store.StatusRendering
	case StageCaption:
		return store.StatusCaptionProcessing
	default:
		return store.StatusDistributing
	}
}

// Report aggregates one pass.
type Report struct {
	Stage           Stage
	Total           int
	Advanced        int
	Failed          int
	StillProcessing int
	Skipped         int
	Errors          int
	Duration        time.Duration
}

// Store lists records awaiting a stage.
type Store interface {
	ListByStatus(ctx context.Context, kind store.Kind, status store.Status) ([]*store.Record, error)
}

// Engine applies transitions.
type Engine interface {
	Handle(ctx context.Context, ref store.Ref, ev workflow.Event) (workflow.Result, error)
	Kickoff(ctx context.Context, ref store.Ref, source workflow.Source) (workflow.Result, error)
}

// Poller reads the state of a provider job.
type Poller interface {
	PollStatus(ctx context.Context, correlationID string) (services.JobStatus, error)
}

// Alerter records pass summaries.
type Alerter interface {
	LogAlert(ctx context.Context, alertType alerts.Type, severity alerts.Severity, message string, details map[string]any, workflowID string) (*store.Alert, error)
}

// Observer receives pass reports (metrics).
type Observer interface {
	ObserveReconcile(report Report)
}

// Config holds the stuck thresholds.
type Config struct {
	StuckThreshold             time.Duration
	DistributionStuckThreshold time.Duration
}

// FromConfig extracts reconcile settings.
func FromConfig(cfg *config.Config) Config {
	return Config{
		StuckThreshold:             cfg.StuckThreshold(),
		DistributionStuckThreshold: cfg.DistributionStuckThreshold(),
	}
}

// Reconciler runs failsafe passes.
type Reconciler struct {
	store    Store
	engine   Engine
	render   Poller
	caption  Poller
	cfg      Config
	alerts   Alerter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logging.NewComponentLogger(logger, "reconcile")
	}
}

// WithAlerter records a summary alert after every pass that saw records.
func WithAlerter(a Alerter) Option {
	return func(r *Reconciler) {
		r.alerts = a
	}
}

// WithObserver attaches a report observer.
func WithObserver(observer Observer) Option {
	return func(r *Reconciler) {
		r.observer = observer
	}
}

// New constructs a reconciler.
func New(st Store, engine Engine, render, caption Poller, cfg Config, opts ...Option) *Reconciler {
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 30 * time.Minute
	}
	if cfg.DistributionStuckThreshold <= 0 {
		cfg.DistributionStuckThreshold = 2 * time.Hour
	}
	r := &Reconciler{
		store:   st,
		engine:  engine,
		render:  render,
		caption: caption,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(nil, "reconcile"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunAll runs every stage in pipeline order. A failing stage does not stop
// the others; the joined error is returned with all reports.
func (r *Reconciler) RunAll(ctx context.Context) ([]Report, error) {
	reports := make([]Report, 0, len(allStages))
	var errs []error
	for _, stage := range allStages {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := r.RunStage(ctx, stage)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stage, err))
		}
	}
	return reports, errors.Join(errs...)
}

// RunStage runs one pass. Safe to call concurrently with webhooks and other
// passes: every write is status-guarded.
func (r *Reconciler) RunStage(ctx context.Context, stage Stage) (Report, error) {
	if _, ok := ParseStage(string(stage)); !ok {
		return Report{}, fmt.Errorf("unknown reconcile stage %q", stage)
	}
	start := time.Now()
	report := Report{Stage: stage}
	ctx = services.WithStage(ctx, string(stage))
	logger := r.logger.With(logging.String(logging.FieldStage, string(stage)))

	for _, kind := range store.Kinds() {
		records, err := r.store.ListByStatus(ctx, kind, stage.status())
		if err != nil {
			return report, fmt.Errorf("list %s records: %w", kind, err)
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Total++
			r.reconcileRecord(ctx, logger, stage, rec, &report)
		}
	}
	report.Duration = time.Since(start)
	r.summarize(ctx, logger, report)
	return report, nil
}

type verdict int

const (
	verdictStill verdict = iota
	verdictAdvanced
	verdictFailed
	verdictSkipped
)

func (r *Reconciler) reconcileRecord(ctx context.Context, logger *slog.Logger, stage Stage, rec *store.Record, report *Report) {
	ctx = services.WithWorkflowID(ctx, rec.ID)
	ctx = services.WithKind(ctx, string(rec.Kind))
	logger = logger.With(
		logging.String(logging.FieldWorkflowID, rec.ID),
		logging.String(logging.FieldKind, string(rec.Kind)),
	)

	var (
		v   verdict
		err error
	)
	switch stage {
	case StageKickoff:
		v, err = r.kickoff(ctx, rec)
	case StageRender:
		v, err = r.poll(ctx, rec, r.render, store.CorrelationRender, workflow.RenderCompleted, workflow.RenderFailed)
	case StageCaption:
		v, err = r.poll(ctx, rec, r.caption, store.CorrelationCaption, workflow.CaptionCompleted, workflow.CaptionFailed)
	case StageDistribution:
		v, err = r.sweepDistribution(ctx, rec)
	}

	switch v {
	case verdictAdvanced:
		report.Advanced++
	case verdictFailed:
		report.Failed++
	case verdictSkipped:
		report.Skipped++
	default:
		report.StillProcessing++
	}
	if err != nil {
		report.Errors++
		logging.WarnWithContext(logger, "failsafe could not reconcile record", "reconcile_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next pass retries this record"),
		)
	}
}

func (r *Reconciler) kickoff(ctx context.Context, rec *store.Record) (verdict, error) {
	result, err := r.engine.Kickoff(ctx, rec.Ref(), workflow.SourceFailsafe)
	return applied(result, err, verdictAdvanced)
}

type completedFn func(source workflow.Source, correlationID, resultURL string) workflow.Event
type failedFn func(source workflow.Source, correlationID, reason string) workflow.Event

func (r *Reconciler) poll(ctx context.Context, rec *store.Record, poller Poller, field store.CorrelationField, completed completedFn, failed failedFn) (verdict, error) {
	correlationID := rec.CorrelationID(field)
	if correlationID == "" {
		elapsed := r.now().Sub(rec.StatusChangedAt)
		if elapsed <= r.cfg.StuckThreshold {
			return verdictStill, nil
		}
		reason := fmt.Sprintf("%s after %s", workflow.ErrMissingCorrelationID, r.cfg.StuckThreshold)
		result, err := r.engine.Handle(ctx, rec.Ref(), workflow.TimedOut(rec.Status, reason))
		return applied(result, err, verdictFailed)
	}
	if poller == nil {
		return verdictStill, errors.New("no poller configured")
	}

	status, err := poller.PollStatus(ctx, correlationID)
	if err != nil {
		if services.IsPermanent(err) {
			result, handleErr := r.engine.Handle(ctx, rec.Ref(), failed(workflow.SourceFailsafe, correlationID, err.Error()))
			return applied(result, handleErr, verdictFailed)
		}
		return verdictStill, err
	}
	switch status.State {
	case services.JobCompleted:
		result, err := r.engine.Handle(ctx, rec.Ref(), completed(workflow.SourceFailsafe, correlationID, status.ResultURL))
		return applied(result, err, verdictAdvanced)
	case services.JobFailed:
		result, err := r.engine.Handle(ctx, rec.Ref(), failed(workflow.SourceFailsafe, correlationID, status.Error))
		return applied(result, err, verdictFailed)
	}
	return verdictStill, nil
}

func (r *Reconciler) sweepDistribution(ctx context.Context, rec *store.Record) (verdict, error) {
	if len(rec.DistributionPostIDs) > 0 {
		return verdictStill, nil
	}
	if r.now().Sub(rec.StatusChangedAt) <= r.cfg.DistributionStuckThreshold {
		return verdictStill, nil
	}
	reason := fmt.Sprintf("distribution did not finish within %s", r.cfg.DistributionStuckThreshold)
	result, err := r.engine.Handle(ctx, rec.Ref(), workflow.TimedOut(store.StatusDistributing, reason))
	return applied(result, err, verdictFailed)
}

// applied maps an engine result onto a verdict. A committed transition whose
// effect failed still counts; the error is reported separately.
func applied(result workflow.Result, err error, onApply verdict) (verdict, error) {
	if result.Applied {
		return onApply, err
	}
	if err != nil {
		return verdictStill, err
	}
	return verdictSkipped, nil
}

func (r *Reconciler) summarize(ctx context.Context, logger *slog.Logger, report Report) {
	if r.observer != nil {
		r.observer.ObserveReconcile(report)
	}
	attrs := []logging.Attr{
		logging.Int("total", report.Total),
		logging.Int("advanced", report.Advanced),
		logging.Int("failed", report.Failed),
		logging.Int("still_processing", report.StillProcessing),
		logging.Int("skipped", report.Skipped),
		logging.Int("errors", report.Errors),
		logging.Duration("elapsed", report.Duration),
		logging.String(logging.FieldEventType, "failsafe_pass"),
	}
	if report.Total == 0 {
		logger.Debug("failsafe pass found nothing to do", logging.Args(attrs...)...)
		return
	}
	logger.Info("failsafe pass complete", logging.Args(attrs...)...)
	if r.alerts == nil {
		return
	}
	details := map[string]any{
		"stage":            string(report.Stage),
		"total":            report.Total,
		"advanced":         report.Advanced,
		"failed":           report.Failed,
		"still_processing": report.StillProcessing,
		"errors":           report.Errors,
	}
	message := fmt.Sprintf("failsafe %s pass: %d advanced, %d failed, %d still processing of %d",
		report.Stage, report.Advanced, report.Failed, report.StillProcessing, report.Total)
	if _, err := r.alerts.LogAlert(ctx, alerts.TypeFailsafeSummary, alerts.SeverityInfo, message, details, ""); err != nil {
		logger.Warn("failed to record failsafe summary", logging.Error(err))
	}
}

// Run executes RunAll every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.logger.Info("failsafe loop started", logging.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("failsafe loop stopped")
			return
		case <-ticker.C:
			if _, err := r.RunAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(r.logger, "failsafe pass failed", "failsafe_pass_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check database health"),
				)
			}
		}
	}
}
