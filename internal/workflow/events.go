package workflow

import (
	"time"

	"reelcast/internal/store"
)

// EventType names a signal that can move a workflow.
type EventType string

const (
	EventKickoff          EventType = "kickoff"
	EventRenderSubmitted  EventType = "render_submitted"
	EventRenderCompleted  EventType = "render_completed"
	EventRenderFailed     EventType = "render_failed"
	EventCaptionSubmitted EventType = "caption_submitted"
	EventCaptionCompleted EventType = "caption_completed"
	EventCaptionFailed    EventType = "caption_failed"
	EventDistributed      EventType = "distributed"
	EventTimedOut         EventType = "timed_out"
	EventAborted          EventType = "aborted"
	EventEffectRetry      EventType = "effect_retry"
)

// Source names the actor that observed an event.
type Source string

const (
	SourceWebhook    Source = "webhook"
	SourceFailsafe   Source = "failsafe"
	SourceAPI        Source = "api"
	SourceDispatcher Source = "dispatcher"
	SourceCLI        Source = "cli"
)

// Event is a provider signal or internal bookkeeping step for one record.
type Event struct {
	Type   EventType
	Source Source

	CorrelationID string
	ResultURL     string
	// RelayedURL is the storage copy the caption submission was built from.
	RelayedURL string
	Error      string

	// Stage guards timeouts, aborts and retries: the event only applies
	// while the record is still in this status.
	Stage store.Status

	PostIDs      []string
	Errors       []string
	ScheduledFor *time.Time
}

// RenderCompleted builds the event both webhook and failsafe paths use when
// the render provider reports success.
func RenderCompleted(source Source, correlationID, resultURL string) Event {
	return Event{Type: EventRenderCompleted, Source: source, CorrelationID: correlationID, ResultURL: resultURL}
}

// RenderFailed builds a render failure event.
func RenderFailed(source Source, correlationID, reason string) Event {
	return Event{Type: EventRenderFailed, Source: source, CorrelationID: correlationID, Error: reason}
}

// CaptionCompleted builds the event both webhook and failsafe paths use when
// the caption provider reports success.
func CaptionCompleted(source Source, correlationID, resultURL string) Event {
	return Event{Type: EventCaptionCompleted, Source: source, CorrelationID: correlationID, ResultURL: resultURL}
}

// CaptionFailed builds a caption failure event.
func CaptionFailed(source Source, correlationID, reason string) Event {
	return Event{Type: EventCaptionFailed, Source: source, CorrelationID: correlationID, Error: reason}
}

// TimedOut builds a stuck-threshold event for a record still in stage.
func TimedOut(stage store.Status, reason string) Event {
	return Event{Type: EventTimedOut, Source: SourceFailsafe, Stage: stage, Error: reason}
}
