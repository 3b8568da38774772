package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Workflow describes a workflow record in a transport-friendly format.
type Workflow struct {
	ID                   string   `json:"id"`
	Kind                 string   `json:"kind"`
	Status               string   `json:"status"`
	Title                string   `json:"title,omitempty"`
	Script               string   `json:"script,omitempty"`
	CaptionText          string   `json:"captionText,omitempty"`
	RenderCorrelationID  string   `json:"renderCorrelationId,omitempty"`
	CaptionCorrelationID string   `json:"captionCorrelationId,omitempty"`
	RenderVideoURL       string   `json:"renderVideoUrl,omitempty"`
	RelayedVideoURL      string   `json:"relayedVideoUrl,omitempty"`
	FinalVideoURL        string   `json:"finalVideoUrl,omitempty"`
	PostIDs              []string `json:"postIds,omitempty"`
	DistributionErrors   []string `json:"distributionErrors,omitempty"`
	ScheduledFor         string   `json:"scheduledFor,omitempty"`
	ErrorMessage         string   `json:"errorMessage,omitempty"`
	RetryCount           int      `json:"retryCount"`
	CreatedAt            string   `json:"createdAt,omitempty"`
	UpdatedAt            string   `json:"updatedAt,omitempty"`
	StatusChangedAt      string   `json:"statusChangedAt,omitempty"`
	CompletedAt          string   `json:"completedAt,omitempty"`
}

// WorkflowListResponse wraps a collection of workflows.
type WorkflowListResponse struct {
	Workflows []Workflow     `json:"workflows"`
	Counts    map[string]int `json:"counts"`
}

// WorkflowResponse wraps a single workflow.
type WorkflowResponse struct {
	Workflow Workflow `json:"workflow"`
}

// CreateWorkflowRequest is the body accepted when creating a workflow.
type CreateWorkflowRequest struct {
	Kind        string `json:"kind" binding:"required"`
	Script      string `json:"script" binding:"required"`
	Title       string `json:"title"`
	CaptionText string `json:"captionText"`
	// Kickoff submits the render immediately instead of waiting for the
	// next failsafe pass.
	Kickoff *bool `json:"kickoff"`
}

// Alert is a persisted alert.
type Alert struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	WorkflowID string         `json:"workflowId,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Resolved   bool           `json:"resolved"`
	CreatedAt  string         `json:"createdAt"`
	ResolvedAt string         `json:"resolvedAt,omitempty"`
}

// AlertPage is one page of unresolved alerts, newest first.
type AlertPage struct {
	Alerts []Alert `json:"alerts"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Size   int     `json:"size"`
}

// AlertStats summarizes alerts over the rolling window.
type AlertStats struct {
	Since      string         `json:"since"`
	Total      int            `json:"total"`
	Unresolved int            `json:"unresolved"`
	Last24h    int            `json:"last24h"`
	BySeverity map[string]int `json:"bySeverity"`
	ByType     map[string]int `json:"byType"`
}

// DeadLetter is a background task that exhausted its retries.
type DeadLetter struct {
	ID           string `json:"id"`
	Task         string `json:"task"`
	WorkflowID   string `json:"workflowId,omitempty"`
	Kind         string `json:"kind,omitempty"`
	ErrorMessage string `json:"errorMessage"`
	Attempts     int    `json:"attempts"`
	CreatedAt    string `json:"createdAt"`
}

// ReconcileReport summarizes one failsafe pass.
type ReconcileReport struct {
	Stage           string `json:"stage"`
	Total           int    `json:"total"`
	Advanced        int    `json:"advanced"`
	Failed          int    `json:"failed"`
	StillProcessing int    `json:"stillProcessing"`
	Skipped         int    `json:"skipped"`
	Errors          int    `json:"errors"`
	DurationMS      int64  `json:"durationMs"`
}

// ReconcileResponse wraps the reports of a triggered run.
type ReconcileResponse struct {
	Reports []ReconcileReport `json:"reports"`
	Error   string            `json:"error,omitempty"`
}

// WebhookAck acknowledges a provider callback. WorkflowID is empty when no
// record carries the correlation id.
type WebhookAck struct {
	Received      bool   `json:"received"`
	CorrelationID string `json:"correlationId"`
	WorkflowID    string `json:"workflowId"`
}

// FeedStatus reports one content source.
type FeedStatus struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

// Health is the /healthz body.
type Health struct {
	Status       string       `json:"status"`
	Database     string       `json:"database"`
	FeedsHealthy *bool        `json:"feedsHealthy,omitempty"`
	Feeds        []FeedStatus `json:"feeds,omitempty"`
	FeedsAsOf    string       `json:"feedsCheckedAt,omitempty"`
	QueueDepth   int          `json:"queueDepth"`
}
