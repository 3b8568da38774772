package reconcile_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"reelcast/internal/alerts"
	"reelcast/internal/dispatch"
	"reelcast/internal/fanout"
	"reelcast/internal/reconcile"
	"reelcast/internal/services"
	"reelcast/internal/services/caption"
	"reelcast/internal/services/distribution"
	"reelcast/internal/services/render"
	"reelcast/internal/store"
	"reelcast/internal/testsupport"
	"reelcast/internal/workflow"
)

// T0 is Wednesday 2026-03-04 08:00 UTC.
var t0 = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

type counterSubmitter struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (c *counterSubmitter) next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("%s-%d", c.prefix, c.n)
}

type renderSubmitter struct{ counterSubmitter }

func (r *renderSubmitter) Submit(context.Context, render.Request) (string, error) { return r.next(), nil }

type captionSubmitter struct{ counterSubmitter }

func (c *captionSubmitter) Submit(context.Context, caption.Request) (string, error) {
	return c.next(), nil
}

type poster struct {
	mu    sync.Mutex
	calls []distribution.Request
}

func (p *poster) Post(_ context.Context, req distribution.Request) (distribution.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	return distribution.Result{Success: true, PostID: fmt.Sprintf("post-%d", len(p.calls))}, nil
}

// fakePoller answers PollStatus from a per-id table.
type fakePoller struct {
	mu     sync.Mutex
	states map[string]services.JobStatus
	errs   map[string]error
	polls  int
}

func newPoller() *fakePoller {
	return &fakePoller{states: map[string]services.JobStatus{}, errs: map[string]error{}}
}

func (f *fakePoller) set(id string, status services.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = status
}

func (f *fakePoller) PollStatus(_ context.Context, id string) (services.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if err := f.errs[id]; err != nil {
		return services.JobStatus{}, err
	}
	if status, ok := f.states[id]; ok {
		return status, nil
	}
	return services.JobStatus{State: services.JobPending}, nil
}

type queue struct {
	mu    sync.Mutex
	tasks []dispatch.Task
}

func (q *queue) Submit(_ context.Context, task dispatch.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *queue) drain(t *testing.T) {
	t.Helper()
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		if err := task.Run(context.Background()); err != nil {
			t.Fatalf("task %s: %v", task.Name, err)
		}
	}
}

type env struct {
	store      *store.Store
	engine     *workflow.Engine
	reconciler *reconcile.Reconciler
	render     *fakePoller
	caption    *fakePoller
	poster     *poster
	alerts     *alerts.Service
	queue      *queue
	now        time.Time
}

func newEnv(t *testing.T, queued bool) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	e := &env{store: st, render: newPoller(), caption: newPoller(), poster: &poster{}, now: t0}
	clock := func() time.Time { return e.now }
	e.alerts = alerts.NewService(st, nil, alerts.WithClock(clock))
	orch := fanout.New(e.poster, fanout.WithDelay(0), fanout.WithClock(clock))
	opts := []workflow.Option{workflow.WithClock(clock), workflow.WithAlerter(e.alerts)}
	if queued {
		e.queue = &queue{}
		opts = append(opts, workflow.WithDispatcher(e.queue))
	}
	e.engine = workflow.NewEngine(st, workflow.Providers{
		Render:       &renderSubmitter{counterSubmitter{prefix: "render"}},
		Caption:      &captionSubmitter{counterSubmitter{prefix: "caption"}},
		Distribution: orch,
	}, opts...)
	e.reconciler = reconcile.New(st, e.engine, e.render, e.caption, reconcile.Config{
		StuckThreshold:             30 * time.Minute,
		DistributionStuckThreshold: 2 * time.Hour,
	}, reconcile.WithClock(clock), reconcile.WithAlerter(e.alerts))
	return e
}

func (e *env) create(t *testing.T) *store.Record {
	t.Helper()
	rec, err := e.engine.Create(context.Background(), &store.Record{Kind: store.KindProperty, Script: "Open house Saturday.", Title: "Open House"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func (e *env) get(t *testing.T, ref store.Ref) *store.Record {
	t.Helper()
	return testsupport.MustGetRecord(t, e.store, ref)
}

func (e *env) run(t *testing.T, stage reconcile.Stage) reconcile.Report {
	t.Helper()
	report, err := e.reconciler.RunStage(context.Background(), stage)
	if err != nil {
		t.Fatalf("RunStage(%s): %v", stage, err)
	}
	return report
}

func TestKickoffStageClaimsQueuedRecords(t *testing.T) {
	e := newEnv(t, false)
	a := e.create(t)
	b := e.create(t)

	report := e.run(t, reconcile.StageKickoff)
	if report.Total != 2 || report.Advanced != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, ref := range []store.Ref{a.Ref(), b.Ref()} {
		if got := e.get(t, ref); got.Status != store.StatusRendering || got.RenderCorrelationID == "" {
			t.Fatalf("record %s not kicked off: %+v", ref, got)
		}
	}
	if again := e.run(t, reconcile.StageKickoff); again.Total != 0 {
		t.Fatalf("second pass should find nothing, got %+v", again)
	}
}

// W2: caption processing starts at T0, no webhook arrives, and the failsafe
// pass at T0+35m observes completion.
func TestCaptionFailsafeAdvancesToDistributing(t *testing.T) {
	e := newEnv(t, true)
	rec := e.create(t)
	ctx := context.Background()
	if _, err := e.engine.Kickoff(ctx, rec.Ref(), workflow.SourceAPI); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	e.queue.drain(t)
	if _, err := e.engine.Handle(ctx, rec.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, "render-1", "https://render.test/v.mp4")); err != nil {
		t.Fatalf("render completed: %v", err)
	}
	e.queue.drain(t)
	w2 := e.get(t, rec.Ref())
	if w2.Status != store.StatusCaptionProcessing || w2.CaptionCorrelationID != "caption-1" {
		t.Fatalf("unexpected setup %+v", w2)
	}

	e.now = t0.Add(35 * time.Minute)
	e.caption.set("caption-1", services.JobStatus{State: services.JobCompleted, ResultURL: "https://caption.test/final.mp4"})
	report := e.run(t, reconcile.StageCaption)
	if report.Total != 1 || report.Advanced != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	w2 = e.get(t, rec.Ref())
	if w2.Status != store.StatusDistributing || w2.FinalVideoURL != "https://caption.test/final.mp4" {
		t.Fatalf("expected distributing with final url, got %+v", w2)
	}
	if len(e.queue.tasks) != 1 || e.queue.tasks[0].Name != string(workflow.EffectDistribute) {
		t.Fatalf("expected a queued distribution task, got %+v", e.queue.tasks)
	}

	e.queue.drain(t)
	w2 = e.get(t, rec.Ref())
	if w2.Status != store.StatusCompleted || len(e.poster.calls) != 7 {
		t.Fatalf("expected completed after 7 posts, got status=%s posts=%d", w2.Status, len(e.poster.calls))
	}
	// 08:35 on a Wednesday: every property platform posts later today
	for _, call := range e.poster.calls {
		if call.ScheduleTime == nil || call.ScheduleTime.Day() != 4 || !call.ScheduleTime.After(e.now) {
			t.Fatalf("expected same-day future schedule, got %v", call.ScheduleTime)
		}
	}
}

func TestStuckWithoutIDFailsExactlyOnce(t *testing.T) {
	e := newEnv(t, true)
	rec := e.create(t)
	if _, err := e.engine.Kickoff(context.Background(), rec.Ref(), workflow.SourceAPI); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	// the render submission never runs, so no id is recorded

	e.now = t0.Add(20 * time.Minute)
	if report := e.run(t, reconcile.StageRender); report.StillProcessing != 1 || report.Failed != 0 {
		t.Fatalf("record within threshold should be left alone, got %+v", report)
	}

	e.now = t0.Add(31 * time.Minute)
	report := e.run(t, reconcile.StageRender)
	if report.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", report)
	}
	got := e.get(t, rec.Ref())
	if got.Status != store.StatusFailed || got.ErrorMessage == "" {
		t.Fatalf("expected failed record, got %+v", got)
	}

	e.now = t0.Add(45 * time.Minute)
	if again := e.run(t, reconcile.StageRender); again.Total != 0 {
		t.Fatalf("failed record must not be re-failed, got %+v", again)
	}
	missing := 0
	for _, a := range unresolved(t, e) {
		if a.Type == string(alerts.TypeMissingCorrelationID) {
			missing++
		}
	}
	if missing != 1 {
		t.Fatalf("expected exactly one missing_correlation_id alert, got %d", missing)
	}
}

func TestRenderPollOutcomes(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	pending := e.create(t)
	failed := e.create(t)
	flaky := e.create(t)
	for _, rec := range []*store.Record{pending, failed, flaky} {
		if _, err := e.engine.Kickoff(ctx, rec.Ref(), workflow.SourceAPI); err != nil {
			t.Fatalf("Kickoff: %v", err)
		}
	}
	failedID := e.get(t, failed.Ref()).RenderCorrelationID
	flakyID := e.get(t, flaky.Ref()).RenderCorrelationID
	e.render.set(failedID, services.JobStatus{State: services.JobFailed, Error: "avatar unavailable"})
	e.render.errs[flakyID] = services.NewStatusError("render", "poll", 502, "bad gateway")

	report := e.run(t, reconcile.StageRender)
	if report.Total != 3 || report.Failed != 1 || report.StillProcessing != 2 || report.Errors != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := e.get(t, failed.Ref()); got.Status != store.StatusFailed || got.ErrorMessage != "avatar unavailable" {
		t.Fatalf("unexpected failed record %+v", got)
	}
	if got := e.get(t, flaky.Ref()); got.Status != store.StatusRendering {
		t.Fatalf("transient poll error must not fail the record, got %s", got.Status)
	}
}

func TestDistributionSweepFailsStuckRecords(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	rec := e.create(t)
	if _, err := e.engine.Kickoff(ctx, rec.Ref(), workflow.SourceAPI); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	e.queue.drain(t)
	if _, err := e.engine.Handle(ctx, rec.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, "render-1", "https://r/v.mp4")); err != nil {
		t.Fatalf("render completed: %v", err)
	}
	e.queue.drain(t)
	if _, err := e.engine.Handle(ctx, rec.Ref(), workflow.CaptionCompleted(workflow.SourceWebhook, "caption-1", "https://c/v.mp4")); err != nil {
		t.Fatalf("caption completed: %v", err)
	}
	// the distribution task is lost

	e.now = t0.Add(time.Hour)
	if report := e.run(t, reconcile.StageDistribution); report.StillProcessing != 1 {
		t.Fatalf("expected record left alone, got %+v", report)
	}
	e.now = t0.Add(3 * time.Hour)
	if report := e.run(t, reconcile.StageDistribution); report.Failed != 1 {
		t.Fatalf("expected stuck distribution to fail, got %+v", report)
	}
	found := false
	for _, a := range unresolved(t, e) {
		if a.Type == string(alerts.TypeDistributionStuck) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected distribution_stuck alert")
	}
}

// Driving one workflow by webhooks and another purely by polling reaches the
// same terminal state with the same fields populated.
func TestWebhookAndFailsafePathsConverge(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	viaWebhook := e.create(t)
	viaFailsafe := e.create(t)
	for _, rec := range []*store.Record{viaWebhook, viaFailsafe} {
		if _, err := e.engine.Kickoff(ctx, rec.Ref(), workflow.SourceAPI); err != nil {
			t.Fatalf("Kickoff: %v", err)
		}
	}
	const renderURL = "https://render.test/out.mp4"
	const finalURL = "https://caption.test/final.mp4"

	hooked := e.get(t, viaWebhook.Ref())
	if _, err := e.engine.Handle(ctx, hooked.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, hooked.RenderCorrelationID, renderURL)); err != nil {
		t.Fatalf("webhook render: %v", err)
	}
	hooked = e.get(t, viaWebhook.Ref())
	if _, err := e.engine.Handle(ctx, hooked.Ref(), workflow.CaptionCompleted(workflow.SourceWebhook, hooked.CaptionCorrelationID, finalURL)); err != nil {
		t.Fatalf("webhook caption: %v", err)
	}

	polled := e.get(t, viaFailsafe.Ref())
	e.render.set(polled.RenderCorrelationID, services.JobStatus{State: services.JobCompleted, ResultURL: renderURL})
	e.run(t, reconcile.StageRender)
	polled = e.get(t, viaFailsafe.Ref())
	e.caption.set(polled.CaptionCorrelationID, services.JobStatus{State: services.JobCompleted, ResultURL: finalURL})
	e.run(t, reconcile.StageCaption)

	a := e.get(t, viaWebhook.Ref())
	b := e.get(t, viaFailsafe.Ref())
	if a.Status != store.StatusCompleted || b.Status != a.Status {
		t.Fatalf("terminal status differs: webhook=%s failsafe=%s", a.Status, b.Status)
	}
	if a.RenderVideoURL != b.RenderVideoURL || a.FinalVideoURL != b.FinalVideoURL {
		t.Fatalf("urls differ: %+v vs %+v", a, b)
	}
	if (a.RenderCorrelationID == "") != (b.RenderCorrelationID == "") || (a.CaptionCorrelationID == "") != (b.CaptionCorrelationID == "") {
		t.Fatal("correlation id population differs")
	}
	if a.ScheduledFor == nil || b.ScheduledFor == nil {
		t.Fatalf("expected both schedules populated: %v vs %v", a.ScheduledFor, b.ScheduledFor)
	}
	if len(a.DistributionPostIDs) != len(b.DistributionPostIDs) || !a.ScheduledFor.Equal(*b.ScheduledFor) {
		t.Fatalf("distribution differs: %d/%v vs %d/%v", len(a.DistributionPostIDs), a.ScheduledFor, len(b.DistributionPostIDs), b.ScheduledFor)
	}
}

func TestRunAllReportsEveryStage(t *testing.T) {
	e := newEnv(t, false)
	reports, err := e.reconciler.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(reports) != len(reconcile.Stages()) {
		t.Fatalf("expected %d reports, got %d", len(reconcile.Stages()), len(reports))
	}
	if _, err := e.reconciler.RunStage(context.Background(), "bogus"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestPassSummaryIsRecordedAsInfoAlert(t *testing.T) {
	e := newEnv(t, false)
	e.create(t)
	e.run(t, reconcile.StageKickoff)
	for _, a := range unresolved(t, e) {
		if a.Type == string(alerts.TypeFailsafeSummary) && a.Severity == string(alerts.SeverityInfo) && a.Details["advanced"] != nil {
			return
		}
	}
	t.Fatal("expected failsafe_summary alert")
}

func unresolved(t *testing.T, e *env) []store.Alert {
	t.Helper()
	page, err := e.alerts.ListUnresolved(context.Background(), 1, 200)
	if err != nil {
		t.Fatalf("ListUnresolved: %v", err)
	}
	return page.Alerts
}
