package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"reelcast/internal/alerts"
	"reelcast/internal/fanout"
	"reelcast/internal/services"
	"reelcast/internal/services/caption"
	"reelcast/internal/services/distribution"
	"reelcast/internal/services/render"
	"reelcast/internal/store"
	"reelcast/internal/testsupport"
	"reelcast/internal/workflow"
)

// Wednesday 2026-03-04 08:00 UTC: every property platform's hour is still ahead.
var wednesdayMorning = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

type fakeRender struct {
	mu    sync.Mutex
	calls []render.Request
	err   error
}

func (f *fakeRender) Submit(_ context.Context, req render.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("render-%d", len(f.calls)), nil
}

func (f *fakeRender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCaption struct {
	mu     sync.Mutex
	calls  []caption.Request
	errs   []error
	prefix string
}

func (f *fakeCaption) Submit(_ context.Context, req caption.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	prefix := f.prefix
	if prefix == "" {
		prefix = "caption"
	}
	return fmt.Sprintf("%s-%d", prefix, len(f.calls)), nil
}

func (f *fakeCaption) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRelay struct {
	mu      sync.Mutex
	sources []string
	keys    []string
}

func (f *fakeRelay) Relay(_ context.Context, sourceURL, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, sourceURL)
	f.keys = append(f.keys, key)
	return "https://cdn.test/" + key, nil
}

type fakePoster struct {
	mu    sync.Mutex
	calls []distribution.Request
	fail  map[string]bool
}

func (f *fakePoster) Post(_ context.Context, req distribution.Request) (distribution.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	platform := req.Platforms[0]
	if f.fail[platform] || f.fail["*"] {
		return distribution.Result{}, services.NewPermanentError("distribution", "post", errors.New(platform+" disconnected"))
	}
	return distribution.Result{Success: true, PostID: fmt.Sprintf("post-%d", len(f.calls))}, nil
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	store   *store.Store
	render  *fakeRender
	caption *fakeCaption
	poster  *fakePoster
	relay   *fakeRelay
	alerts  *alerts.Service
	engine  *workflow.Engine
	now     time.Time
}

type harnessOption func(*harness, *workflow.Providers)

func withRelay() harnessOption {
	return func(h *harness, p *workflow.Providers) {
		h.relay = &fakeRelay{}
		p.Relay = h.relay
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		store:   st,
		render:  &fakeRender{},
		caption: &fakeCaption{},
		poster:  &fakePoster{fail: map[string]bool{}},
		now:     wednesdayMorning,
	}
	clock := func() time.Time { return h.now }
	orch := fanout.New(h.poster,
		fanout.WithDelay(0),
		fanout.WithLocation(time.UTC),
		fanout.WithClock(clock),
	)
	providers := workflow.Providers{Render: h.render, Caption: h.caption, Distribution: orch}
	for _, opt := range opts {
		opt(h, &providers)
	}
	h.alerts = alerts.NewService(st, nil, alerts.WithClock(clock))
	h.engine = workflow.NewEngine(st, providers,
		workflow.WithClock(clock),
		workflow.WithAlerter(h.alerts),
	)
	return h
}

func (h *harness) create(t *testing.T, kind store.Kind) *store.Record {
	t.Helper()
	rec, err := h.engine.Create(context.Background(), &store.Record{
		Kind:        kind,
		Script:      "Three bedrooms, two baths, a wraparound porch.",
		CaptionText: "Just listed",
		Title:       "123 Elm",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

// inRendering creates a record and kicks it off so it holds a render id.
func (h *harness) inRendering(t *testing.T, kind store.Kind) *store.Record {
	t.Helper()
	rec := h.create(t, kind)
	if _, err := h.engine.Kickoff(context.Background(), rec.Ref(), workflow.SourceAPI); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	return testsupport.MustGetRecord(t, h.store, rec.Ref())
}

func (h *harness) unresolvedAlerts(t *testing.T) []store.Alert {
	t.Helper()
	page, err := h.alerts.ListUnresolved(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ListUnresolved: %v", err)
	}
	return page.Alerts
}
