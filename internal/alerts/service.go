package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"reelcast/internal/logging"
	"reelcast/internal/notifications"
	"reelcast/internal/store"
)

// Type names the failure or notice an alert describes.
type Type string

const (
	TypeRenderFailed         Type = "render_failed"
	TypeCaptionFailed        Type = "caption_failed"
	TypeMissingCorrelationID Type = "missing_correlation_id"
	TypeDistributionFailed   Type = "distribution_failed"
	TypeDistributionStuck    Type = "distribution_stuck"
	TypeBackgroundTaskFailed Type = "background_task_failed"
	TypeProviderError        Type = "provider_error"
	TypeFeedUnhealthy        Type = "feed_unhealthy"
	TypeFailsafeSummary      Type = "failsafe_summary"
)

// Severity ranks alerts.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ParseSeverity converts a string into a Severity.
func ParseSeverity(value string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityCritical:
		return SeverityCritical, true
	case SeverityError:
		return SeverityError, true
	case SeverityWarning:
		return SeverityWarning, true
	case SeverityInfo:
		return SeverityInfo, true
	}
	return "", false
}

func (s Severity) level() slog.Level {
	switch s {
	case SeverityCritical, SeverityError:
		return slog.LevelError
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Store is the persistence the service needs.
type Store interface {
	InsertAlert(ctx context.Context, alert *store.Alert) error
	ListUnresolvedAlerts(ctx context.Context, limit, offset int) ([]store.Alert, int, error)
	ResolveAlert(ctx context.Context, id string, at time.Time) error
	AlertsSince(ctx context.Context, since time.Time) ([]store.Alert, error)
}

// Service is the alert log.
type Service struct {
	store    Store
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier pushes critical alerts through notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// NewService constructs an alert service.
func NewService(st Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: logging.NewComponentLogger(logger, "alerts"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogAlert records an alert. A "kind" string in details is stored as the
// alert's partition.
func (s *Service) LogAlert(ctx context.Context, alertType Type, severity Severity, message string, details map[string]any, workflowID string) (*store.Alert, error) {
	if _, ok := ParseSeverity(string(severity)); !ok {
		severity = SeverityError
	}
	alert := &store.Alert{
		Type:       string(alertType),
		Severity:   string(severity),
		Message:    strings.TrimSpace(message),
		Details:    details,
		WorkflowID: workflowID,
		CreatedAt:  s.now().UTC(),
	}
	if kind, ok := details["kind"].(string); ok {
		alert.Kind = store.Kind(kind)
	}
	if severity == SeverityCritical {
		alert.Stack = string(debug.Stack())
	}

	attrs := []logging.Attr{
		logging.Alert(string(alertType)),
		logging.String("severity", string(severity)),
		logging.String(logging.FieldEventType, "alert_raised"),
	}
	if workflowID != "" {
		attrs = append(attrs, logging.String(logging.FieldWorkflowID, workflowID))
	}
	if alert.Kind != "" {
		attrs = append(attrs, logging.String(logging.FieldKind, string(alert.Kind)))
	}
	for key, value := range details {
		if key == "kind" {
			continue
		}
		attrs = append(attrs, logging.Any(key, value))
	}
	logging.WithContext(ctx, s.logger).LogAttrs(ctx, severity.level(), alert.Message, attrs...)

	if err := s.store.InsertAlert(ctx, alert); err != nil {
		s.logger.Error("failed to persist alert",
			logging.String("alert_type", string(alertType)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "alert_persist_failed"),
			logging.String(logging.FieldErrorHint, "check database health"),
		)
		return nil, fmt.Errorf("persist alert: %w", err)
	}

	if severity == SeverityCritical && s.notifier != nil {
		payload := notifications.Payload{
			"type":       string(alertType),
			"message":    alert.Message,
			"workflowId": workflowID,
		}
		if err := s.notifier.Publish(ctx, notifications.EventCriticalAlert, payload); err != nil {
			logging.WarnWithContext(s.logger, "critical alert notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}
	return alert, nil
}

// Page is one slice of the unresolved alert list.
type Page struct {
	Alerts []store.Alert
	Total  int
	Page   int
	Size   int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListUnresolved returns page (1-based) of unresolved alerts, newest first.
func (s *Service) ListUnresolved(ctx context.Context, page, size int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	alerts, total, err := s.store.ListUnresolvedAlerts(ctx, size, (page-1)*size)
	if err != nil {
		return Page{}, err
	}
	return Page{Alerts: alerts, Total: total, Page: page, Size: size}, nil
}

// Resolve marks an alert resolved.
func (s *Service) Resolve(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("alert id required")
	}
	return s.store.ResolveAlert(ctx, id, s.now().UTC())
}

// StatsWindow is the rolling window Stats aggregates over.
const StatsWindow = 7 * 24 * time.Hour

// Stats summarizes recent alerts.
type Stats struct {
	Since      time.Time
	Total      int
	Unresolved int
	Last24h    int
	BySeverity map[string]int
	ByType     map[string]int
}

// Stats aggregates alerts created in the seven days before now.
func (s *Service) Stats(ctx context.Context, now time.Time) (Stats, error) {
	since := now.Add(-StatsWindow)
	alerts, err := s.store.AlertsSince(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Since:      since,
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
	dayAgo := now.Add(-24 * time.Hour)
	for _, alert := range alerts {
		if alert.CreatedAt.After(now) {
			continue
		}
		stats.Total++
		stats.BySeverity[alert.Severity]++
		stats.ByType[alert.Type]++
		if !alert.Resolved {
			stats.Unresolved++
		}
		if !alert.CreatedAt.Before(dayAgo) {
			stats.Last24h++
		}
	}
	return stats, nil
}
