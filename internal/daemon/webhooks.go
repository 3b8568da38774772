package daemon

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelcast/internal/api"
	"reelcast/internal/logging"
	"reelcast/internal/services"
	"reelcast/internal/store"
	"reelcast/internal/webhook"
	"reelcast/internal/workflow"
)

// Webhook outcomes reported to metrics.
const (
	webhookInvalid   = "invalid"
	webhookUnmatched = "unmatched"
	webhookPending   = "pending"
	webhookApplied   = "applied"
	webhookIgnored   = "ignored"
	webhookError     = "error"
)

// handleWebhook ingests a provider callback. Only an unparseable body is
// rejected; unknown correlation ids and stale events are acknowledged so the
// provider stops retrying.
func (s *apiServer) handleWebhook(c *gin.Context) {
	provider, ok := webhook.ParseProvider(c.Param("provider"))
	if !ok {
		s.writeError(c, http.StatusNotFound, "unknown provider")
		return
	}
	logger := logging.WithContext(c.Request.Context(), s.logger).With(logging.String(logging.FieldProvider, string(provider)))

	if c.Request.ContentLength > maxWebhookBodyBytes {
		s.observeWebhook(provider, webhookInvalid)
		s.writeError(c, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		s.observeWebhook(provider, webhookInvalid)
		s.writeError(c, http.StatusBadRequest, "failed to read body")
		return
	}
	if int64(len(body)) > maxWebhookBodyBytes {
		s.observeWebhook(provider, webhookInvalid)
		s.writeError(c, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	ev, err := webhook.Normalize(provider, body)
	if err != nil {
		s.observeWebhook(provider, webhookInvalid)
		logging.WarnWithContext(logger, "webhook payload rejected", "webhook_invalid",
			logging.Error(err),
			logging.Int("bytes", len(body)),
			logging.String(logging.FieldErrorHint, "compare the provider payload against the webhook alias tables"),
		)
		if errors.Is(err, webhook.ErrUnparseablePayload) {
			s.writeError(c, http.StatusBadRequest, "unparseable payload")
			return
		}
		s.writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	ack := api.WebhookAck{Received: true, CorrelationID: ev.CorrelationID}
	logger = logger.With(
		logging.String(logging.FieldCorrelationID, ev.CorrelationID),
		logging.String("state", string(ev.State)),
	)

	field := store.CorrelationRender
	if provider == webhook.ProviderCaption {
		field = store.CorrelationCaption
	}
	rec, err := s.c.Store.FindByCorrelationID(c.Request.Context(), field, ev.CorrelationID)
	if err != nil {
		s.observeWebhook(provider, webhookError)
		logger.Error("webhook lookup failed", logging.Error(err))
		s.writeError(c, http.StatusInternalServerError, "lookup failed")
		return
	}
	if rec == nil {
		s.observeWebhook(provider, webhookUnmatched)
		logging.WarnWithContext(logger, "webhook matched no workflow", "webhook_unmatched",
			logging.String(logging.FieldErrorHint, "the failsafe reconciler will poll the record if the id was stored late"),
		)
		c.JSON(http.StatusOK, ack)
		return
	}
	ack.WorkflowID = rec.ID
	logger = logger.With(
		logging.String(logging.FieldWorkflowID, rec.ID),
		logging.String(logging.FieldKind, string(rec.Kind)),
	)

	event, ok := webhookEvent(provider, ev)
	if !ok {
		s.observeWebhook(provider, webhookPending)
		logger.Debug("webhook reported progress", logging.String("raw_status", ev.RawStatus))
		c.JSON(http.StatusOK, ack)
		return
	}

	ctx := services.WithWorkflowID(c.Request.Context(), rec.ID)
	ctx = services.WithKind(ctx, string(rec.Kind))
	result, err := s.c.Engine.Handle(ctx, rec.Ref(), event)
	switch {
	case err != nil && result.Applied:
		// committed; only scheduling the follow-up effect failed
		s.observeWebhook(provider, webhookApplied)
		logging.WarnWithContext(logger, "webhook applied but follow-up failed", "webhook_effect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the follow-up is not retried; the failsafe reconciler fails the record after the stuck threshold"),
		)
	case errors.Is(err, workflow.ErrIllegalTransition):
		s.observeWebhook(provider, webhookIgnored)
		logger.Info("webhook ignored", logging.Error(err))
	case err != nil:
		s.observeWebhook(provider, webhookError)
		logger.Error("webhook processing failed", logging.Error(err))
		s.writeError(c, http.StatusInternalServerError, "processing failed")
		return
	case !result.Applied:
		s.observeWebhook(provider, webhookIgnored)
		logger.Info("duplicate or stale webhook ignored", logging.String("status", string(result.Record.Status)))
	default:
		s.observeWebhook(provider, webhookApplied)
		logger.Info("webhook applied",
			logging.String("status", string(result.Record.Status)),
			logging.String(logging.FieldEventType, "webhook_applied"),
		)
	}
	c.JSON(http.StatusOK, ack)
}

// webhookEvent maps a terminal provider state onto a workflow event. Pending
// states produce no event.
func webhookEvent(provider webhook.Provider, ev webhook.Event) (workflow.Event, bool) {
	switch ev.State {
	case services.JobCompleted:
		if provider == webhook.ProviderCaption {
			return workflow.CaptionCompleted(workflow.SourceWebhook, ev.CorrelationID, ev.ResultURL), true
		}
		return workflow.RenderCompleted(workflow.SourceWebhook, ev.CorrelationID, ev.ResultURL), true
	case services.JobFailed:
		if provider == webhook.ProviderCaption {
			return workflow.CaptionFailed(workflow.SourceWebhook, ev.CorrelationID, ev.Error), true
		}
		return workflow.RenderFailed(workflow.SourceWebhook, ev.CorrelationID, ev.Error), true
	}
	return workflow.Event{}, false
}

func (s *apiServer) observeWebhook(provider webhook.Provider, outcome string) {
	if s.c.Metrics != nil {
		s.c.Metrics.ObserveWebhook(string(provider), outcome)
	}
}
