package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"reelcast/internal/alerts"
	"reelcast/internal/dispatch"
	"reelcast/internal/services"
	"reelcast/internal/store"
	"reelcast/internal/testsupport"
	"reelcast/internal/workflow"
)

func TestKickoffClaimsAndSubmitsRender(t *testing.T) {
	h := newHarness(t)
	rec := h.create(t, store.KindProperty)
	ctx := context.Background()

	result, err := h.engine.Kickoff(ctx, rec.Ref(), workflow.SourceAPI)
	if err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	if !result.Applied {
		t.Fatal("expected kickoff to apply")
	}
	got := testsupport.MustGetRecord(t, h.store, rec.Ref())
	if got.Status != store.StatusRendering || got.RenderCorrelationID != "render-1" {
		t.Fatalf("unexpected record %+v", got)
	}
	if h.render.calls[0].Title != "123 Elm" || !strings.Contains(h.render.calls[0].Script, "wraparound") {
		t.Fatalf("unexpected render request %+v", h.render.calls[0])
	}

	again, err := h.engine.Kickoff(ctx, rec.Ref(), workflow.SourceFailsafe)
	if err != nil {
		t.Fatalf("second Kickoff: %v", err)
	}
	if again.Applied || h.render.count() != 1 {
		t.Fatalf("second kickoff should be a no-op (applied=%v, submissions=%d)", again.Applied, h.render.count())
	}
}

// W1: a render webhook reporting completion moves the record to caption
// processing with the id returned by a caption submission built from U.
func TestRenderWebhookSubmitsCaptionFromResultURL(t *testing.T) {
	h := newHarness(t)
	rec := h.inRendering(t, store.KindProperty)
	const resultURL = "https://render.test/videos/w1.mp4"

	_, err := h.engine.Handle(context.Background(), rec.Ref(),
		workflow.RenderCompleted(workflow.SourceWebhook, rec.RenderCorrelationID, resultURL))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := testsupport.MustGetRecord(t, h.store, rec.Ref())
	if got.Status != store.StatusCaptionProcessing {
		t.Fatalf("expected caption_processing, got %s", got.Status)
	}
	if got.CaptionCorrelationID != "caption-1" {
		t.Fatalf("expected caption correlation id from submission, got %q", got.CaptionCorrelationID)
	}
	if h.caption.calls[0].VideoURL != resultURL {
		t.Fatalf("caption submission built from %q, want %q", h.caption.calls[0].VideoURL, resultURL)
	}
	if got.RenderVideoURL != resultURL || got.RelayedVideoURL != "" {
		t.Fatalf("unexpected urls %+v", got)
	}
}

func TestDuplicateWebhookDoesNotResubmit(t *testing.T) {
	h := newHarness(t)
	rec := h.inRendering(t, store.KindProperty)
	ctx := context.Background()
	ev := workflow.RenderCompleted(workflow.SourceWebhook, rec.RenderCorrelationID, "https://render.test/v.mp4")

	if _, err := h.engine.Handle(ctx, rec.Ref(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	before := testsupport.MustGetRecord(t, h.store, rec.Ref())

	result, err := h.engine.Handle(ctx, rec.Ref(), ev)
	if err != nil {
		t.Fatalf("duplicate Handle: %v", err)
	}
	if result.Applied {
		t.Fatal("duplicate event should not apply")
	}
	after := testsupport.MustGetRecord(t, h.store, rec.Ref())
	if h.caption.count() != 1 {
		t.Fatalf("expected a single caption submission, got %d", h.caption.count())
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Status != before.Status || after.RetryCount != before.RetryCount {
		t.Fatalf("duplicate changed state: before=%+v after=%+v", before, after)
	}
}

func TestConcurrentDuplicateDeliveryCommitsOnce(t *testing.T) {
	h := newHarness(t)
	rec := h.inRendering(t, store.KindProperty)
	ev := workflow.RenderCompleted(workflow.SourceWebhook, rec.RenderCorrelationID, "https://render.test/v.mp4")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.engine.Handle(context.Background(), rec.Ref(), ev)
			if err != nil {
				t.Errorf("Handle: %v", err)
				return
			}
			if result.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("expected exactly one committed transition, got %d", applied)
	}
	if h.caption.count() != 1 {
		t.Fatalf("expected one caption submission, got %d", h.caption.count())
	}
}

func TestCaptionCompletionDistributesAndCompletes(t *testing.T) {
	h := newHarness(t)
	rec := h.inRendering(t, store.KindProperty)
	ctx := context.Background()
	if _, err := h.engine.Handle(ctx, rec.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, "", "https://render.test/v.mp4")); err != nil {
		t.Fatalf("render completed: %v", err)
	}
	if _, err := h.engine.Handle(ctx, rec.Ref(), workflow.CaptionCompleted(workflow.SourceWebhook, "caption-1", "https://caption.test/final.mp4")); err != nil {
		t.Fatalf("caption completed: %v", err)
	}

	got := testsupport.MustGetRecord(t, h.store, rec.Ref())
	if got.Status != store.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("expected completed, got %+v", got)
	}
	// instagram and facebook post twice (reel and story)
	if len(got.DistributionPostIDs) != 7 || h.poster.count() != 7 {
		t.Fatalf("expected 7 posts, got ids=%d calls=%d", len(got.DistributionPostIDs), h.poster.count())
	}
	if got.ScheduledFor == nil || got.ScheduledFor.Hour() != 9 {
		t.Fatalf("expected earliest slot at 09:00 (linkedin), got %v", got.ScheduledFor)
	}
	for _, req := range h.poster.calls {
		if req.VideoURL != "https://caption.test/final.mp4" {
			t.Fatalf("distribution used %q", req.VideoURL)
		}
	}
}

func TestAllPlatformsFailingFailsWorkflowWithAlert(t *testing.T) {
	h := newHarness(t)
	h.poster.fail["*"] = true
	rec := h.inRendering(t, store.KindMarketUpdate)
	ctx := context.Background()
	if _, err := h.engine.Handle(ctx, rec.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, "", "https://render.test/v.mp4")); err != nil {
		t.Fatalf("render completed: %v", err)
	}
	if _, err := h.engine.Handle(ctx, rec.Ref(), workflow.CaptionCompleted(workflow.SourceWebhook, "", "https://caption.test/final.mp4")); err != nil {
		t.Fatalf("caption completed: %v", err)
	}
	got := testsupport.MustGetRecord(t, h.store, rec.Ref())
	// linkedin, twitter, threads and youtube once; facebook reel and story
	if got.Status != store.StatusFailed || len(got.DistributionErrors) != 6 {
		t.Fatalf("expected failed with 6 errors, got status=%s errors=%d", got.Status, len(got.DistributionErrors))
	}
	found := false
	for _, a := range h.unresolvedAlerts(t) {
		if a.Type == string(alerts.TypeDistributionFailed) && a.WorkflowID == rec.ID && a.Kind == store.KindMarketUpdate {
			found = true
		}
	}
	if !found {
		t.Fatal("expected distribution_failed alert")
	}
}

func TestPermanentRenderRejectionFailsWorkflow(t *testing.T) {
	h := newHarness(t)
	h.render.err = services.NewStatusError("render", "submit", 422, "script too long")
	rec := h.create(t, store.KindProperty)

	if _, err := h.engine.Kickoff(context.Background(), rec.Ref(), workflow.SourceAPI); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	got := testsupport.MustGetRecord(t, h.store, rec.Ref())
	if got.Status != store.StatusFailed || !strings.Contains(got.ErrorMessage, "script too long") {
		t.Fatalf("expected failed record, got %+v", got)
	}
	alertsList := h.unresolvedAlerts(t)
	if len(alertsList) != 1 || alertsList[0].Type != string(alerts.TypeRenderFailed) {
		t.Fatalf("expected one render_failed alert, got %+v", alertsList)
	}
}

func TestTransientCaptionFailureRecordsRetry(t *testing.T) {
	h := newHarness(t)
	h.caption.errs = []error{services.NewStatusError("caption", "submit", 503, "busy")}
	rec := h.inRendering(t, store.KindProperty)
	ctx := context.Background()

	_, err := h.engine.Handle(ctx, rec.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, "", "https://render.test/v.mp4"))
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error for the caller to retry, got %v", err)
	}
	got := testsupport.MustGetRecord(t, h.store, rec.Ref())
	if got.Status != store.StatusCaptionProcessing || got.RetryCount != 1 || !strings.Contains(got.ErrorMessage, "503") {
		t.Fatalf("unexpected record after transient failure %+v", got)
	}

	// the retry (dispatcher or failsafe) runs the same effect again
	eff := workflow.Effect{Type: workflow.EffectSubmitCaption, Ref: rec.Ref(), Stage: store.StatusCaptionProcessing}
	if err := h.engine.RunEffect(ctx, eff); err != nil {
		t.Fatalf("RunEffect: %v", err)
	}
	got = testsupport.MustGetRecord(t, h.store, rec.Ref())
	if got.CaptionCorrelationID != "caption-2" {
		t.Fatalf("expected caption id from retry, got %q", got.CaptionCorrelationID)
	}
	if err := h.engine.RunEffect(ctx, eff); err != nil || h.caption.count() != 2 {
		t.Fatalf("effect should not resubmit once an id exists (err=%v, calls=%d)", err, h.caption.count())
	}
}

func TestRelayedURLFeedsCaptionSubmission(t *testing.T) {
	h := newHarness(t, withRelay())
	rec := h.inRendering(t, store.KindAgentSpotlight)

	if _, err := h.engine.Handle(context.Background(), rec.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, "", "https://render.test/expiring.mp4")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	wantKey := "agent_spotlight/" + rec.ID + "/render.mp4"
	if len(h.relay.keys) != 1 || h.relay.keys[0] != wantKey || h.relay.sources[0] != "https://render.test/expiring.mp4" {
		t.Fatalf("unexpected relay calls keys=%v sources=%v", h.relay.keys, h.relay.sources)
	}
	got := testsupport.MustGetRecord(t, h.store, rec.Ref())
	if got.RelayedVideoURL != "https://cdn.test/"+wantKey || h.caption.calls[0].VideoURL != got.RelayedVideoURL {
		t.Fatalf("caption not built from relayed url: record=%q caption=%q", got.RelayedVideoURL, h.caption.calls[0].VideoURL)
	}
	if h.caption.calls[0].Title != "123 Elm" {
		t.Fatalf("unexpected caption title %q", h.caption.calls[0].Title)
	}
}

func TestAbortIgnoresRecordThatMovedOn(t *testing.T) {
	h := newHarness(t)
	rec := h.inRendering(t, store.KindProperty)
	ctx := context.Background()

	if _, err := h.engine.Handle(ctx, rec.Ref(), workflow.RenderCompleted(workflow.SourceWebhook, "", "https://render.test/v.mp4")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	result, err := h.engine.Abort(ctx, rec.Ref(), store.StatusRendering, errors.New("late failure"))
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if result.Applied {
		t.Fatal("abort for a past stage should not apply")
	}

	result, err = h.engine.Abort(ctx, rec.Ref(), store.StatusCaptionProcessing, errors.New("relay exhausted"))
	if err != nil || !result.Applied {
		t.Fatalf("Abort: applied=%v err=%v", result.Applied, err)
	}
	if result.Record.Status != store.StatusFailed || result.Record.ErrorMessage != "relay exhausted" {
		t.Fatalf("unexpected record %+v", result.Record)
	}
}

func TestApplyMissingRecord(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Apply(context.Background(), store.Ref{Kind: store.KindProperty, ID: "missing"}, workflow.Event{Type: workflow.EventKickoff})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Create(context.Background(), &store.Record{Kind: "podcast", Script: "s"})
	if !errors.Is(err, workflow.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []dispatch.Task
}

func (r *recordingDispatcher) Submit(_ context.Context, task dispatch.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func TestHandleQueuesEffectsOnDispatcher(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	render := &fakeRender{}
	queue := &recordingDispatcher{}
	engine := workflow.NewEngine(st, workflow.Providers{Render: render}, workflow.WithDispatcher(queue))
	ctx := context.Background()

	rec, err := engine.Create(ctx, &store.Record{Kind: store.KindProperty, Script: "s"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := engine.Kickoff(ctx, rec.Ref(), workflow.SourceAPI); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	if render.count() != 0 {
		t.Fatal("render should not be submitted on the caller's goroutine")
	}
	if len(queue.tasks) != 1 || queue.tasks[0].Name != string(workflow.EffectSubmitRender) || queue.tasks[0].Stage != store.StatusRendering {
		t.Fatalf("unexpected tasks %+v", queue.tasks)
	}
	if err := queue.tasks[0].Run(ctx); err != nil {
		t.Fatalf("task Run: %v", err)
	}
	got := testsupport.MustGetRecord(t, st, rec.Ref())
	if got.RenderCorrelationID != "render-1" {
		t.Fatalf("expected render id after task ran, got %q", got.RenderCorrelationID)
	}
}

func TestLookupStrategies(t *testing.T) {
	for _, kind := range store.Kinds() {
		strategy, err := workflow.Lookup(kind)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", kind, err)
		}
		if strategy.Kind != kind || strategy.Partition != kind.Table() || len(strategy.Platforms) == 0 {
			t.Fatalf("incomplete strategy %+v", strategy)
		}
		rec := &store.Record{Kind: kind, Script: "s"}
		if strategy.RenderRequest(rec).Title == "" || strategy.Plan(rec).Build == nil {
			t.Fatalf("strategy for %s does not build requests", kind)
		}
	}
	if _, err := workflow.Lookup("podcast"); !errors.Is(err, workflow.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
