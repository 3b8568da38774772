package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelcast/internal/config"
)

const userAgent = "Reelcast-Go/0.1.0"

// Event names a notification type.
type Event string

const (
	EventCriticalAlert     Event = "critical_alert"
	EventFeedsUnhealthy    Event = "feeds_unhealthy"
	EventReconcileSummary  Event = "reconcile_summary"
	EventWorkflowCompleted Event = "workflow_completed"
	EventTest              Event = "test"
)

// Payload carries event fields. Values are rendered with %v.
type Payload map[string]any

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventCriticalAlert:
		body := fmt.Sprintf("🚨 %s", payload.text("message"))
		if alertType := payload.text("type"); alertType != "" {
			body = fmt.Sprintf("🚨 [%s] %s", alertType, payload.text("message"))
		}
		if id := payload.text("workflowId"); id != "" {
			body = fmt.Sprintf("%s\nWorkflow: %s", body, id)
		}
		return message{
			title:    "Reelcast - Critical Alert",
			body:     body,
			tags:     []string{"reelcast", "alert", "critical"},
			priority: "urgent",
		}, true
	case EventFeedsUnhealthy:
		return message{
			title:    "Reelcast - Feeds Down",
			body:     fmt.Sprintf("📡 No content source is reachable (%s checked)", payload.text("checked")),
			tags:     []string{"reelcast", "feeds", "down"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Reelcast - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reelcast", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
