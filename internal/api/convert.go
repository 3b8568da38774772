package api

import (
	"time"

	"reelcast/internal/alerts"
	"reelcast/internal/feedhealth"
	"reelcast/internal/reconcile"
	"reelcast/internal/store"
)

// FromRecord converts a workflow record to its API representation.
func FromRecord(rec *store.Record) Workflow {
	if rec == nil {
		return Workflow{}
	}
	dto := Workflow{
		ID:                   rec.ID,
		Kind:                 string(rec.Kind),
		Status:               string(rec.Status),
		Title:                rec.Title,
		Script:               rec.Script,
		CaptionText:          rec.CaptionText,
		RenderCorrelationID:  rec.RenderCorrelationID,
		CaptionCorrelationID: rec.CaptionCorrelationID,
		RenderVideoURL:       rec.RenderVideoURL,
		RelayedVideoURL:      rec.RelayedVideoURL,
		FinalVideoURL:        rec.FinalVideoURL,
		PostIDs:              rec.DistributionPostIDs,
		DistributionErrors:   rec.DistributionErrors,
		ErrorMessage:         rec.ErrorMessage,
		RetryCount:           rec.RetryCount,
		CreatedAt:            formatTime(rec.CreatedAt),
		UpdatedAt:            formatTime(rec.UpdatedAt),
		StatusChangedAt:      formatTime(rec.StatusChangedAt),
	}
	if rec.ScheduledFor != nil {
		dto.ScheduledFor = formatTime(*rec.ScheduledFor)
	}
	if rec.CompletedAt != nil {
		dto.CompletedAt = formatTime(*rec.CompletedAt)
	}
	return dto
}

// FromRecords converts a slice of records into API DTOs.
func FromRecords(records []*store.Record) []Workflow {
	out := make([]Workflow, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromAlert converts a stored alert.
func FromAlert(alert store.Alert) Alert {
	dto := Alert{
		ID:         alert.ID,
		Type:       alert.Type,
		Severity:   alert.Severity,
		Message:    alert.Message,
		Details:    alert.Details,
		WorkflowID: alert.WorkflowID,
		Kind:       string(alert.Kind),
		Resolved:   alert.Resolved,
		CreatedAt:  formatTime(alert.CreatedAt),
	}
	if alert.ResolvedAt != nil {
		dto.ResolvedAt = formatTime(*alert.ResolvedAt)
	}
	return dto
}

// FromAlertPage converts a page of unresolved alerts.
func FromAlertPage(page alerts.Page) AlertPage {
	out := AlertPage{Alerts: make([]Alert, 0, len(page.Alerts)), Total: page.Total, Page: page.Page, Size: page.Size}
	for _, alert := range page.Alerts {
		out.Alerts = append(out.Alerts, FromAlert(alert))
	}
	return out
}

// FromAlertStats converts the rolling alert summary.
func FromAlertStats(stats alerts.Stats) AlertStats {
	return AlertStats{
		Since:      formatTime(stats.Since),
		Total:      stats.Total,
		Unresolved: stats.Unresolved,
		Last24h:    stats.Last24h,
		BySeverity: stats.BySeverity,
		ByType:     stats.ByType,
	}
}

// FromDeadLetters converts dead-lettered tasks.
func FromDeadLetters(letters []store.DeadLetter) []DeadLetter {
	out := make([]DeadLetter, 0, len(letters))
	for _, dl := range letters {
		out = append(out, DeadLetter{
			ID:           dl.ID,
			Task:         dl.Task,
			WorkflowID:   dl.WorkflowID,
			Kind:         string(dl.Kind),
			ErrorMessage: dl.ErrorMessage,
			Attempts:     dl.Attempts,
			CreatedAt:    formatTime(dl.CreatedAt),
		})
	}
	return out
}

// FromReconcileReports converts failsafe pass reports.
func FromReconcileReports(reports []reconcile.Report) []ReconcileReport {
	out := make([]ReconcileReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, ReconcileReport{
			Stage:           string(r.Stage),
			Total:           r.Total,
			Advanced:        r.Advanced,
			Failed:          r.Failed,
			StillProcessing: r.StillProcessing,
			Skipped:         r.Skipped,
			Errors:          r.Errors,
			DurationMS:      r.Duration.Milliseconds(),
		})
	}
	return out
}

// FromFeedReport converts a feed health report.
func FromFeedReport(report feedhealth.Report) []FeedStatus {
	out := make([]FeedStatus, 0, len(report.Feeds))
	for _, feed := range report.Feeds {
		out = append(out, FeedStatus{
			Name:      feed.Name,
			URL:       feed.URL,
			Healthy:   feed.Healthy,
			Error:     feed.Error,
			CheckedAt: formatTime(feed.CheckedAt),
		})
	}
	return out
}

// StatusCounts tallies records per status, including zero entries for every
// known status.
func StatusCounts(records []*store.Record) map[string]int {
	counts := make(map[string]int, len(store.AllStatuses()))
	for _, status := range store.AllStatuses() {
		counts[string(status)] = 0
	}
	for _, rec := range records {
		counts[string(rec.Status)]++
	}
	return counts
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
