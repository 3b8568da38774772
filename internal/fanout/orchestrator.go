package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reelcast/internal/logging"
	"reelcast/internal/schedule"
	"reelcast/internal/services/distribution"
	"reelcast/internal/store"
)

// Mode selects how posting times are chosen.
type Mode string

const (
	// ModeSameDay posts every platform on today's date at its optimal hour.
	ModeSameDay Mode = "same_day"
	// ModeWeekly posts every platform at its next weekly slot.
	ModeWeekly Mode = "weekly"
)

// Plan describes where and how one record is published.
type Plan struct {
	Platforms []schedule.Platform
	Mode      Mode
	// Caption overrides the record's caption text when set.
	Caption string
	Title   string
	Build   RequestBuilder
}

// Poster submits one post to the distribution provider.
type Poster interface {
	Post(ctx context.Context, req distribution.Request) (distribution.Result, error)
}

// Call is the result of one provider submission.
type Call struct {
	Platform     schedule.Platform
	Placement    string
	ScheduledFor *time.Time
	PostID       string
	Err          string
}

// Outcome aggregates every call made for a record.
type Outcome struct {
	Calls        []Call
	PostIDs      []string
	Errors       []string
	ScheduledFor *time.Time
	Succeeded    int
	Failed       int
}

// AllFailed reports whether no call succeeded.
func (o Outcome) AllFailed() bool {
	return o.Succeeded == 0
}

// Partial reports whether some but not all calls failed.
func (o Outcome) Partial() bool {
	return o.Succeeded > 0 && o.Failed > 0
}

// Orchestrator fans a finished video out to platforms.
type Orchestrator struct {
	poster Poster
	loc    *time.Location
	delay  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocation sets the timezone posting hours are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithDelay sets the pause between successive provider calls.
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.NewComponentLogger(logger, "fanout")
	}
}

// New constructs an orchestrator.
func New(poster Poster, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		poster: poster,
		loc:    time.UTC,
		delay:  time.Second,
		now:    time.Now,
		logger: logging.NewComponentLogger(nil, "fanout"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type pendingCall struct {
	platform schedule.Platform
	at       *time.Time
	req      distribution.Request
}

// Distribute submits every call the plan requires. Provider failures are
// recorded in the outcome rather than returned; the error is non-nil only
// when the context ends before all calls were made.
func (o *Orchestrator) Distribute(ctx context.Context, rec *store.Record, videoURL string, plan Plan) (Outcome, error) {
	var outcome Outcome
	if rec == nil {
		return outcome, errors.New("record is nil")
	}
	if strings.TrimSpace(videoURL) == "" {
		return outcome, fmt.Errorf("distribute %s: video url required", rec.Ref())
	}
	if len(plan.Platforms) == 0 {
		return outcome, fmt.Errorf("distribute %s: plan has no platforms", rec.Ref())
	}
	build := plan.Build
	if build == nil {
		build = StandardRequests
	}

	calls := o.plan(rec, videoURL, plan, build)
	logger := o.logger.With(
		logging.String(logging.FieldWorkflowID, rec.ID),
		logging.String(logging.FieldKind, string(rec.Kind)),
	)

	for i, call := range calls {
		if i > 0 && o.delay > 0 {
			if err := sleepWithContext(ctx, o.delay); err != nil {
				return outcome, err
			}
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		placement := call.req.PostTypes[string(call.platform)]
		record := Call{Platform: call.platform, Placement: placement, ScheduledFor: call.at}

		result, err := o.poster.Post(ctx, call.req)
		switch {
		case err != nil:
			record.Err = err.Error()
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s/%s: %s", call.platform, placement, err.Error()))
			logging.WarnWithContext(logger, "distribution call failed", "distribution_call_failed",
				logging.String(logging.FieldPlatform, string(call.platform)),
				logging.String("placement", placement),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the platform connection in the distribution provider"),
			)
		default:
			record.PostID = result.PostID
			outcome.Succeeded++
			outcome.PostIDs = append(outcome.PostIDs, result.PostID)
			logger.Info("distribution call accepted",
				logging.String(logging.FieldPlatform, string(call.platform)),
				logging.String("placement", placement),
				logging.String("post_id", result.PostID),
				logging.Bool("scheduled", call.at != nil),
			)
		}
		outcome.Calls = append(outcome.Calls, record)
		outcome.ScheduledFor = earliest(outcome.ScheduledFor, call.at, o.now())
	}
	return outcome, nil
}

func (o *Orchestrator) plan(rec *store.Record, videoURL string, plan Plan, build RequestBuilder) []pendingCall {
	now := o.now().In(o.loc)
	var postings []schedule.Posting
	if plan.Mode == ModeWeekly {
		postings = schedule.WeeklyFanOut(plan.Platforms, now)
	} else {
		postings = schedule.SameDayFanOut(plan.Platforms, now, o.loc)
	}

	title := strings.TrimSpace(plan.Title)
	if title == "" {
		title = strings.TrimSpace(rec.Title)
	}
	base := distribution.Request{
		VideoURL: strings.TrimSpace(videoURL),
		Caption:  captionFor(rec, plan),
		Title:    title,
	}

	var calls []pendingCall
	for _, posting := range postings {
		var at *time.Time
		// past same-day hours are posted immediately
		if posting.At.After(now) {
			v := posting.At
			at = &v
		}
		for _, req := range build(rec, posting.Platform, base) {
			req.ScheduleTime = at
			calls = append(calls, pendingCall{platform: posting.Platform, at: at, req: req})
		}
	}
	return calls
}

// earliest keeps the soonest posting time; immediate posts count as now.
func earliest(current, at *time.Time, now time.Time) *time.Time {
	candidate := now
	if at != nil {
		candidate = *at
	}
	if current == nil || candidate.Before(*current) {
		return &candidate
	}
	return current
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
