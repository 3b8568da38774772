package feedhealth

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"reelcast/internal/alerts"
	"reelcast/internal/config"
	"reelcast/internal/logging"
	"reelcast/internal/notifications"
	"reelcast/internal/store"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultTTL       = time.Hour
	maxFeedBytes     = 4 << 20
	probeConcurrency = 4
)

// FeedStatus is the outcome of probing one source.
type FeedStatus struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Healthy    bool      `json:"healthy"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Report is one full check across every source.
type Report struct {
	CheckedAt time.Time    `json:"checkedAt"`
	Feeds     []FeedStatus `json:"feeds"`
	Cached    bool         `json:"cached"`
}

// HealthyCount returns the number of reachable sources.
func (r Report) HealthyCount() int {
	n := 0
	for _, feed := range r.Feeds {
		if feed.Healthy {
			n++
		}
	}
	return n
}

// Healthy reports whether at least one source is reachable. A report with no
// sources is healthy.
func (r Report) Healthy() bool {
	return len(r.Feeds) == 0 || r.HealthyCount() > 0
}

// Store persists the latest report.
type Store interface {
	SaveFeedHealth(ctx context.Context, snapshot store.FeedHealthSnapshot) error
	LatestFeedHealth(ctx context.Context) (*store.FeedHealthSnapshot, error)
}

// Alerter records the all-sources-down alert.
type Alerter interface {
	LogAlert(ctx context.Context, alertType alerts.Type, severity alerts.Severity, message string, details map[string]any, workflowID string) (*store.Alert, error)
}

// Checker probes content sources.
type Checker struct {
	store    Store
	feeds    []config.Feed
	client   *http.Client
	timeout  time.Duration
	ttl      time.Duration
	alerts   Alerter
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient overrides the HTTP client used for probes.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTTL sets how long a stored report is reused.
func WithTTL(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logging.NewComponentLogger(logger, "feedhealth")
	}
}

// WithAlerter records an alert when every source is down.
func WithAlerter(a Alerter) Option {
	return func(c *Checker) {
		c.alerts = a
	}
}

// WithNotifier pushes a notification when every source is down.
func WithNotifier(n notifications.Service) Option {
	return func(c *Checker) {
		c.notifier = n
	}
}

// New constructs a checker for feeds.
func New(st Store, feeds []config.Feed, opts ...Option) *Checker {
	c := &Checker{
		store:   st,
		feeds:   append([]config.Feed(nil), feeds...),
		client:  &http.Client{},
		timeout: defaultTimeout,
		ttl:     defaultTTL,
		logger:  logging.NewComponentLogger(nil, "feedhealth"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds a checker from the [[feeds]] and [feed_health] sections.
func FromConfig(cfg *config.Config, st Store, opts ...Option) *Checker {
	base := []Option{
		WithTimeout(time.Duration(cfg.FeedHealth.TimeoutSeconds) * time.Second),
		WithTTL(time.Duration(cfg.FeedHealth.CacheTTLSeconds) * time.Second),
	}
	return New(st, cfg.Feeds, append(base, opts...)...)
}

// Check returns the stored report when it is younger than the TTL and
// otherwise probes every source.
func (c *Checker) Check(ctx context.Context) (Report, error) {
	if report, ok, err := c.Cached(ctx); err != nil {
		c.logger.Warn("feed health cache unreadable; probing", logging.Error(err))
	} else if ok && c.now().Sub(report.CheckedAt) < c.ttl {
		return report, nil
	}
	return c.Refresh(ctx)
}

// Cached returns the stored report without probing.
func (c *Checker) Cached(ctx context.Context) (Report, bool, error) {
	snapshot, err := c.store.LatestFeedHealth(ctx)
	if err != nil || snapshot == nil {
		return Report{}, false, err
	}
	var feeds []FeedStatus
	if err := json.Unmarshal(snapshot.Payload, &feeds); err != nil {
		return Report{}, false, fmt.Errorf("decode feed health: %w", err)
	}
	return Report{CheckedAt: snapshot.CheckedAt, Feeds: feeds, Cached: true}, true, nil
}

// Refresh probes every source, stores the result and alerts when none is
// reachable.
func (c *Checker) Refresh(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: c.now().UTC(), Feeds: make([]FeedStatus, len(c.feeds))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, feed := range c.feeds {
		g.Go(func() error {
			report.Feeds[i] = c.probe(gctx, feed)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	payload, err := json.Marshal(report.Feeds)
	if err != nil {
		return report, fmt.Errorf("encode feed health: %w", err)
	}
	if err := c.store.SaveFeedHealth(ctx, store.FeedHealthSnapshot{CheckedAt: report.CheckedAt, Payload: payload}); err != nil {
		return report, err
	}

	c.logger.Info("feed health checked",
		logging.Int("feeds", len(report.Feeds)),
		logging.Int("healthy", report.HealthyCount()),
		logging.String(logging.FieldEventType, "feed_health_checked"),
	)
	if !report.Healthy() {
		c.allDown(ctx, report)
	}
	return report, nil
}

func (c *Checker) allDown(ctx context.Context, report Report) {
	failures := make(map[string]any, len(report.Feeds))
	for _, feed := range report.Feeds {
		failures[feed.Name] = feed.Error
	}
	logging.ErrorWithContext(c.logger, "no content source is reachable", "feeds_unhealthy",
		logging.Int("feeds", len(report.Feeds)),
		logging.String(logging.FieldErrorHint, "check feed URLs with `reelcast feeds check`"),
	)
	if c.alerts != nil {
		message := fmt.Sprintf("all %d content sources are unreachable", len(report.Feeds))
		if _, err := c.alerts.LogAlert(ctx, alerts.TypeFeedUnhealthy, alerts.SeverityError, message, map[string]any{"feeds": failures}, ""); err != nil {
			c.logger.Warn("failed to record feed alert", logging.Error(err))
		}
	}
	if c.notifier != nil {
		if err := c.notifier.Publish(ctx, notifications.EventFeedsUnhealthy, notifications.Payload{"checked": len(report.Feeds)}); err != nil {
			c.logger.Warn("feed notification failed", logging.Error(err))
		}
	}
}

func (c *Checker) probe(ctx context.Context, feed config.Feed) FeedStatus {
	status := FeedStatus{Name: feed.Name, URL: feed.URL, CheckedAt: c.now().UTC()}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")
	resp, err := c.client.Do(req)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()
	status.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return status
	}
	if err := expectFeedDocument(io.LimitReader(resp.Body, maxFeedBytes)); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

var errNotAFeed = errors.New("response is not an rss or atom document")

// expectFeedDocument accepts a document whose root element is rss, feed (Atom)
// or RDF (RSS 1.0).
func expectFeedDocument(r io.Reader) error {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errNotAFeed
			}
			return fmt.Errorf("%w: %v", errNotAFeed, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch strings.ToLower(start.Name.Local) {
		case "rss", "feed", "rdf":
			return nil
		}
		return fmt.Errorf("%w: root element <%s>", errNotAFeed, start.Name.Local)
	}
}
