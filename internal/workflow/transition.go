package workflow

import (
	"fmt"
	"strings"
	"time"

	"reelcast/internal/alerts"
	"reelcast/internal/store"
)

// EffectType names a side effect a transition requires.
type EffectType string

const (
	EffectSubmitRender  EffectType = "submit_render"
	EffectSubmitCaption EffectType = "submit_caption"
	EffectDistribute    EffectType = "distribute"
)

// Effect is work to perform after a transition commits.
type Effect struct {
	Type EffectType
	Ref  store.Ref
	// Stage is the status the record must still hold when the effect runs.
	Stage store.Status
}

// AlertSpec describes the alert a failing transition raises.
type AlertSpec struct {
	Type     alerts.Type
	Severity alerts.Severity
	Message  string
}

// Outcome is the result of applying an event to a record.
type Outcome struct {
	Next     *store.Record
	Expected store.Status
	Effects  []Effect
	Alert    *AlertSpec
	// Partial is set when distribution succeeded on some platforms only.
	Partial bool
}

// Transition computes the next record for ev. It never mutates rec.
// ErrDuplicateOrStale reports an event the record has already moved past;
// ErrIllegalTransition an event that can never apply.
func Transition(rec *store.Record, ev Event, now time.Time) (Outcome, error) {
	if rec == nil {
		return Outcome{}, fmt.Errorf("%w: nil record", ErrIllegalTransition)
	}
	if rec.Status.IsTerminal() {
		return Outcome{}, fmt.Errorf("%w: %s is %s", ErrDuplicateOrStale, rec.Ref(), rec.Status)
	}

	next := rec.Clone()
	next.UpdatedAt = now
	out := Outcome{Next: next, Expected: rec.Status}

	switch ev.Type {
	case EventKickoff:
		if rec.Status != store.StatusQueued {
			return stale(rec, ev)
		}
		next.Status = store.StatusRendering
		out.Effects = append(out.Effects, Effect{Type: EffectSubmitRender, Ref: rec.Ref(), Stage: store.StatusRendering})

	case EventRenderSubmitted:
		if rec.Status != store.StatusRendering || rec.RenderCorrelationID != "" {
			return stale(rec, ev)
		}
		id := strings.TrimSpace(ev.CorrelationID)
		if id == "" {
			return Outcome{}, fmt.Errorf("%s: %w", ev.Type, ErrMissingCorrelationID)
		}
		next.RenderCorrelationID = id

	case EventRenderCompleted:
		if rec.Status != store.StatusRendering || mismatched(rec.RenderCorrelationID, ev.CorrelationID) {
			return stale(rec, ev)
		}
		url := strings.TrimSpace(ev.ResultURL)
		if url == "" {
			return Outcome{}, fmt.Errorf("%s: %w", ev.Type, ErrMissingResultURL)
		}
		if next.RenderCorrelationID == "" {
			next.RenderCorrelationID = strings.TrimSpace(ev.CorrelationID)
		}
		next.RenderVideoURL = url
		next.Status = store.StatusCaptionProcessing
		out.Effects = append(out.Effects, Effect{Type: EffectSubmitCaption, Ref: rec.Ref(), Stage: store.StatusCaptionProcessing})

	case EventRenderFailed:
		if rec.Status != store.StatusRendering || mismatched(rec.RenderCorrelationID, ev.CorrelationID) {
			return stale(rec, ev)
		}
		reason := firstNonEmpty(ev.Error, "render failed")
		fail(next, reason)
		out.Alert = &AlertSpec{Type: alerts.TypeRenderFailed, Severity: alerts.SeverityError, Message: "render failed: " + reason}

	case EventCaptionSubmitted:
		if rec.Status != store.StatusCaptionProcessing || rec.CaptionCorrelationID != "" {
			return stale(rec, ev)
		}
		id := strings.TrimSpace(ev.CorrelationID)
		if id == "" {
			return Outcome{}, fmt.Errorf("%s: %w", ev.Type, ErrMissingCorrelationID)
		}
		next.CaptionCorrelationID = id
		if relayed := strings.TrimSpace(ev.RelayedURL); relayed != "" {
			next.RelayedVideoURL = relayed
		}

	case EventCaptionCompleted:
		if rec.Status != store.StatusCaptionProcessing || mismatched(rec.CaptionCorrelationID, ev.CorrelationID) {
			return stale(rec, ev)
		}
		url := strings.TrimSpace(ev.ResultURL)
		if url == "" {
			return Outcome{}, fmt.Errorf("%s: %w", ev.Type, ErrMissingResultURL)
		}
		if next.CaptionCorrelationID == "" {
			next.CaptionCorrelationID = strings.TrimSpace(ev.CorrelationID)
		}
		next.FinalVideoURL = url
		next.Status = store.StatusDistributing
		out.Effects = append(out.Effects, Effect{Type: EffectDistribute, Ref: rec.Ref(), Stage: store.StatusDistributing})

	case EventCaptionFailed:
		if rec.Status != store.StatusCaptionProcessing || mismatched(rec.CaptionCorrelationID, ev.CorrelationID) {
			return stale(rec, ev)
		}
		reason := firstNonEmpty(ev.Error, "caption project failed")
		fail(next, reason)
		out.Alert = &AlertSpec{Type: alerts.TypeCaptionFailed, Severity: alerts.SeverityError, Message: "caption failed: " + reason}

	case EventDistributed:
		if rec.Status != store.StatusDistributing || len(rec.DistributionPostIDs) > 0 {
			return stale(rec, ev)
		}
		next.DistributionPostIDs = append(next.DistributionPostIDs, ev.PostIDs...)
		next.DistributionErrors = append(next.DistributionErrors, ev.Errors...)
		if ev.ScheduledFor != nil {
			at := *ev.ScheduledFor
			next.ScheduledFor = &at
		}
		if len(next.DistributionPostIDs) == 0 {
			reason := fmt.Sprintf("all %d distribution calls failed", len(ev.Errors))
			if len(ev.Errors) > 0 {
				reason += ": " + strings.Join(ev.Errors, "; ")
			}
			fail(next, reason)
			out.Alert = &AlertSpec{Type: alerts.TypeDistributionFailed, Severity: alerts.SeverityCritical, Message: reason}
			break
		}
		next.Status = store.StatusCompleted
		completed := now
		next.CompletedAt = &completed
		if len(ev.Errors) > 0 {
			out.Partial = true
			next.ErrorMessage = fmt.Sprintf("%s: %s", ErrPartialDistribution, strings.Join(ev.Errors, "; "))
		}

	case EventTimedOut:
		if ev.Stage == "" {
			return Outcome{}, fmt.Errorf("%w: %s without stage", ErrIllegalTransition, ev.Type)
		}
		if rec.Status != ev.Stage {
			return stale(rec, ev)
		}
		reason := firstNonEmpty(ev.Error, ErrMissingCorrelationID.Error())
		fail(next, reason)
		alertType := alerts.TypeMissingCorrelationID
		if ev.Stage == store.StatusDistributing {
			alertType = alerts.TypeDistributionStuck
		}
		out.Alert = &AlertSpec{Type: alertType, Severity: alerts.SeverityError, Message: fmt.Sprintf("%s stuck: %s", ev.Stage, reason)}

	case EventAborted:
		if ev.Stage != "" && rec.Status != ev.Stage {
			return stale(rec, ev)
		}
		reason := firstNonEmpty(ev.Error, "background task failed")
		fail(next, reason)
		out.Alert = &AlertSpec{Type: alerts.TypeBackgroundTaskFailed, Severity: alerts.SeverityCritical, Message: fmt.Sprintf("%s continuation failed: %s", rec.Status, reason)}

	case EventEffectRetry:
		if ev.Stage == "" || rec.Status != ev.Stage {
			return stale(rec, ev)
		}
		next.RetryCount++
		next.ErrorMessage = firstNonEmpty(ev.Error, next.ErrorMessage)

	default:
		return Outcome{}, fmt.Errorf("%w: unknown event %q", ErrIllegalTransition, ev.Type)
	}

	if !CanTransition(rec.Status, next.Status) {
		return Outcome{}, fmt.Errorf("%w: %s → %s on %s", ErrIllegalTransition, rec.Status, next.Status, ev.Type)
	}
	if next.Status != rec.Status {
		next.StatusChangedAt = now
	}
	return out, nil
}

func stale(rec *store.Record, ev Event) (Outcome, error) {
	return Outcome{}, fmt.Errorf("%w: %s on %s (%s)", ErrDuplicateOrStale, ev.Type, rec.Ref(), rec.Status)
}

func fail(next *store.Record, reason string) {
	next.Status = store.StatusFailed
	next.ErrorMessage = reason
}

// mismatched reports a stored correlation id that differs from the event's.
// An empty side matches anything.
func mismatched(stored, incoming string) bool {
	stored = strings.TrimSpace(stored)
	incoming = strings.TrimSpace(incoming)
	return stored != "" && incoming != "" && stored != incoming
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
