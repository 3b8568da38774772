package store

import (
	"strings"
	"time"
)

// Kind selects the brand partition a workflow belongs to.
type Kind string

const (
	KindProperty       Kind = "property"
	KindMarketUpdate   Kind = "market_update"
	KindAgentSpotlight Kind = "agent_spotlight"
)

var allKinds = []Kind{KindProperty, KindMarketUpdate, KindAgentSpotlight}

// Kinds returns every partition in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind converts a string into a Kind, accepting dashes for underscores.
func ParseKind(value string) (Kind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, kind := range allKinds {
		if string(kind) == normalized {
			return kind, true
		}
	}
	return "", false
}

// Valid reports whether the kind names a known partition.
func (k Kind) Valid() bool {
	for _, kind := range allKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Table is the SQLite table holding the partition.
func (k Kind) Table() string {
	return "workflows_" + string(k)
}

// Status is the lifecycle position of a workflow record.
type Status string

const (
	StatusQueued            Status = "queued"
	StatusRendering         Status = "rendering"
	StatusCaptionProcessing Status = "caption_processing"
	StatusDistributing      Status = "distributing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRendering,
	StatusCaptionProcessing,
	StatusDistributing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CorrelationField names a provider correlation id column.
type CorrelationField string

const (
	CorrelationRender  CorrelationField = "render_correlation_id"
	CorrelationCaption CorrelationField = "caption_correlation_id"
)

func (f CorrelationField) valid() bool {
	return f == CorrelationRender || f == CorrelationCaption
}

// Ref addresses one record across partitions.
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Record is the persisted state of one content item moving through the pipeline.
type Record struct {
	ID     string
	Kind   Kind
	Status Status

	RenderCorrelationID  string
	CaptionCorrelationID string
	DistributionPostIDs  []string
	DistributionErrors   []string

	Script      string
	CaptionText string
	Title       string

	RenderVideoURL  string
	RelayedVideoURL string
	FinalVideoURL   string
	ScheduledFor    *time.Time

	ErrorMessage string
	RetryCount   int

	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusChangedAt time.Time
	CompletedAt     *time.Time
}

// Ref returns the record's address.
func (r *Record) Ref() Ref {
	return Ref{Kind: r.Kind, ID: r.ID}
}

// Clone returns a deep copy safe to mutate.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.DistributionPostIDs = append([]string(nil), r.DistributionPostIDs...)
	out.DistributionErrors = append([]string(nil), r.DistributionErrors...)
	if r.ScheduledFor != nil {
		v := *r.ScheduledFor
		out.ScheduledFor = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

// CorrelationID returns the value stored in the named field.
func (r *Record) CorrelationID(field CorrelationField) string {
	switch field {
	case CorrelationRender:
		return r.RenderCorrelationID
	case CorrelationCaption:
		return r.CaptionCorrelationID
	}
	return ""
}

// Alert is one persisted pipeline failure or operational notice.
type Alert struct {
	ID         string
	Type       string
	Severity   string
	Message    string
	Details    map[string]any
	WorkflowID string
	Kind       Kind
	Stack      string
	Resolved   bool
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// FeedHealthSnapshot is the cached result of the last feed reachability check.
type FeedHealthSnapshot struct {
	CheckedAt time.Time
	Payload   []byte
}

// DeadLetter records a background task that exhausted its retries.
type DeadLetter struct {
	ID           string
	Task         string
	WorkflowID   string
	Kind         Kind
	ErrorMessage string
	Attempts     int
	CreatedAt    time.Time
}
