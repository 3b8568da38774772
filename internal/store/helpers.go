package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// timeLayout is fixed width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = "id, kind, status, render_correlation_id, caption_correlation_id, distribution_post_ids, distribution_errors, script, caption_text, title, render_video_url, relayed_video_url, final_video_url, scheduled_for, error_message, retry_count, created_at, updated_at, status_changed_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var (
		id               string
		kindStr          string
		statusStr        string
		renderCID        sql.NullString
		captionCID       sql.NullString
		postIDsRaw       sql.NullString
		errorsRaw        sql.NullString
		script           string
		captionText      sql.NullString
		title            sql.NullString
		renderVideoURL   sql.NullString
		relayedVideoURL  sql.NullString
		finalVideoURL    sql.NullString
		scheduledRaw     sql.NullString
		errorMessage     sql.NullString
		retryCount       sql.NullInt64
		createdRaw       string
		updatedRaw       string
		statusChangedRaw string
		completedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&kindStr,
		&statusStr,
		&renderCID,
		&captionCID,
		&postIDsRaw,
		&errorsRaw,
		&script,
		&captionText,
		&title,
		&renderVideoURL,
		&relayedVideoURL,
		&finalVideoURL,
		&scheduledRaw,
		&errorMessage,
		&retryCount,
		&createdRaw,
		&updatedRaw,
		&statusChangedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:                   id,
		Kind:                 Kind(kindStr),
		Status:               Status(statusStr),
		RenderCorrelationID:  renderCID.String,
		CaptionCorrelationID: captionCID.String,
		DistributionPostIDs:  decodeStrings(postIDsRaw.String),
		DistributionErrors:   decodeStrings(errorsRaw.String),
		Script:               script,
		CaptionText:          captionText.String,
		Title:                title.String,
		RenderVideoURL:       renderVideoURL.String,
		RelayedVideoURL:      relayedVideoURL.String,
		FinalVideoURL:        finalVideoURL.String,
		ErrorMessage:         errorMessage.String,
		RetryCount:           int(retryCount.Int64),
		ScheduledFor:         parseNullableTime(scheduledRaw),
		CompletedAt:          parseNullableTime(completedRaw),
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = t
	}
	if t, err := parseTimeString(statusChangedRaw); err == nil {
		rec.StatusChangedAt = t
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func encodeDetails(details map[string]any) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeDetails(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}
