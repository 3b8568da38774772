package logging

import (
	"context"
	"log/slog"

	"reelcast/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldWorkflowID is the standardized key for workflow record identifiers.
	FieldWorkflowID = "workflow_id"
	// FieldKind is the standardized key for the workflow kind (brand partition).
	FieldKind = "kind"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldCorrelationID is the standardized key for provider correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldRequestID identifies one inbound HTTP request.
	FieldRequestID = "request_id"
	// FieldProvider names the external provider involved in a call.
	FieldProvider = "provider"
	// FieldPlatform names a social distribution platform.
	FieldPlatform = "platform"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.WorkflowIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorkflowID, id))
	}
	if kind, ok := services.KindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldKind, kind))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRequestID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
