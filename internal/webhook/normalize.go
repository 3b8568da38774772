package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reelcast/internal/services"
)

// ErrUnparseablePayload marks a body that is not a JSON object or carries no
// recognizable correlation id.
var ErrUnparseablePayload = errors.New("unparseable webhook payload")

// Provider names the service a callback came from.
type Provider string

const (
	ProviderRender  Provider = "render"
	ProviderCaption Provider = "caption"
)

// ParseProvider converts a URL segment into a Provider.
func ParseProvider(value string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(value))) {
	case ProviderRender:
		return ProviderRender, true
	case ProviderCaption:
		return ProviderCaption, true
	}
	return "", false
}

// Event is a normalized provider callback.
type Event struct {
	Provider      Provider
	CorrelationID string
	State         services.JobState
	ResultURL     string
	Error         string
	// RawStatus is the provider's own status or event name.
	RawStatus string
}

type aliasTable struct {
	correlation []string
	resultURL   []string
	status      []string
	errors      []string
}

// Nested objects searched after the top level, in order.
var nestedScopes = []string{"data", "event_data", "payload"}

var renderAliases = aliasTable{
	correlation: []string{"video_id", "videoId", "correlationId", "correlation_id", "id"},
	resultURL:   []string{"video_url", "videoUrl", "url", "media_url", "downloadUrl"},
	status:      []string{"status", "event_type", "event", "state"},
	errors:      []string{"error", "msg", "message", "failure_reason"},
}

var captionAliases = aliasTable{
	correlation: []string{"projectId", "project_id", "correlationId", "correlation_id", "id"},
	resultURL:   []string{"downloadUrl", "download_url", "media_url", "video_url", "directUrl", "url"},
	status:      []string{"status", "event", "state"},
	errors:      []string{"failureReason", "failure_reason", "error", "message"},
}

// NormalizeRender parses a render provider callback.
func NormalizeRender(body []byte) (Event, error) {
	return normalize(ProviderRender, renderAliases, body)
}

// NormalizeCaption parses a caption provider callback.
func NormalizeCaption(body []byte) (Event, error) {
	return normalize(ProviderCaption, captionAliases, body)
}

// Normalize dispatches to the provider's normalizer.
func Normalize(provider Provider, body []byte) (Event, error) {
	switch provider {
	case ProviderRender:
		return NormalizeRender(body)
	case ProviderCaption:
		return NormalizeCaption(body)
	}
	return Event{}, fmt.Errorf("%w: unknown provider %q", ErrUnparseablePayload, provider)
}

func normalize(provider Provider, aliases aliasTable, body []byte) (Event, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrUnparseablePayload, err)
	}
	if raw == nil {
		return Event{}, fmt.Errorf("%w: body is not an object", ErrUnparseablePayload)
	}
	scopes := []map[string]any{raw}
	for _, key := range nestedScopes {
		if nested, ok := raw[key].(map[string]any); ok {
			scopes = append(scopes, nested)
		}
	}

	ev := Event{
		Provider:      provider,
		CorrelationID: lookup(scopes, aliases.correlation),
		ResultURL:     lookup(scopes, aliases.resultURL),
		RawStatus:     lookup(scopes, aliases.status),
		Error:         lookupError(scopes, aliases.errors),
	}
	if ev.CorrelationID == "" {
		return Event{}, fmt.Errorf("%w: no correlation id (tried %s)", ErrUnparseablePayload, strings.Join(aliases.correlation, ", "))
	}
	ev.State = classify(ev.RawStatus, ev.ResultURL)
	if ev.State == services.JobCompleted && ev.ResultURL == "" {
		// same rule the pollers apply: nothing to hand to the next stage yet
		ev.State = services.JobPending
	}
	if ev.State != services.JobFailed {
		ev.Error = ""
	}
	return ev, nil
}

// lookup walks aliases in priority order, each across every scope, so a
// specific key nested in an envelope beats a generic top-level one.
func lookup(scopes []map[string]any, aliases []string) string {
	for _, alias := range aliases {
		for _, scope := range scopes {
			if v := scalar(scope[alias]); v != "" {
				return v
			}
		}
	}
	return ""
}

func lookupError(scopes []map[string]any, aliases []string) string {
	for _, alias := range aliases {
		for _, scope := range scopes {
			switch v := scope[alias].(type) {
			case map[string]any:
				for _, key := range []string{"message", "detail", "code"} {
					if s := scalar(v[key]); s != "" {
						return s
					}
				}
			default:
				if s := scalar(v); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func scalar(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	}
	return ""
}

// classify maps a provider status or event name ("completed",
// "avatar_video.success", "project.failed") onto a job state.
func classify(raw, resultURL string) services.JobState {
	if state, ok := services.ParseJobState(raw); ok {
		return state
	}
	lowered := strings.ToLower(raw)
	for _, sep := range []string{".", ":", "/"} {
		if i := strings.LastIndex(lowered, sep); i >= 0 {
			suffix := lowered[i+1:]
			if state, ok := services.ParseJobState(suffix); ok {
				return state
			}
			if suffix == "fail" {
				return services.JobFailed
			}
		}
	}
	if raw == "" && resultURL != "" {
		return services.JobCompleted
	}
	return services.JobPending
}
