package services

import "strings"

// JobState is the normalized state of an asynchronous provider job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is the result of polling a render or caption job.
type JobStatus struct {
	State     JobState
	ResultURL string
	Error     string
}

var jobStateAliases = map[string]JobState{
	"completed":   JobCompleted,
	"complete":    JobCompleted,
	"success":     JobCompleted,
	"succeeded":   JobCompleted,
	"done":        JobCompleted,
	"finished":    JobCompleted,
	"ready":       JobCompleted,
	"failed":      JobFailed,
	"failure":     JobFailed,
	"error":       JobFailed,
	"errored":     JobFailed,
	"cancelled":   JobFailed,
	"canceled":    JobFailed,
	"pending":     JobPending,
	"queued":      JobPending,
	"waiting":     JobPending,
	"processing":  JobPending,
	"rendering":   JobPending,
	"exporting":   JobPending,
	"in_progress": JobPending,
}

// ParseJobState maps a provider status string onto a JobState. The boolean is
// false for values outside the alias table.
func ParseJobState(raw string) (JobState, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	state, ok := jobStateAliases[key]
	return state, ok
}
