package webhook_test

import (
	"errors"
	"testing"

	"reelcast/internal/services"
	"reelcast/internal/webhook"
)

func TestNormalizeCaptionAliases(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		id     string
		state  services.JobState
		result string
	}{
		{"projectId and downloadUrl", `{"projectId":"p-1","status":"COMPLETE","downloadUrl":"https://c/1.mp4"}`, "p-1", services.JobCompleted, "https://c/1.mp4"},
		{"id and media_url", `{"id":"p-2","status":"done","media_url":"https://c/2.mp4"}`, "p-2", services.JobCompleted, "https://c/2.mp4"},
		{"nested data", `{"event":"project.completed","data":{"project_id":"p-3","video_url":"https://c/3.mp4"}}`, "p-3", services.JobCompleted, "https://c/3.mp4"},
		{"processing", `{"projectId":"p-4","status":"processing"}`, "p-4", services.JobPending, ""},
		{"completed without url stays pending", `{"projectId":"p-5","status":"completed"}`, "p-5", services.JobPending, ""},
		{"url without status", `{"projectId":"p-6","directUrl":"https://c/6.mp4"}`, "p-6", services.JobCompleted, "https://c/6.mp4"},
		{"envelope id loses to nested projectId", `{"id":"evt_123","type":"project.completed","data":{"projectId":"proj-9","status":"completed","downloadUrl":"https://cdn.test/final.mp4"}}`, "proj-9", services.JobCompleted, "https://cdn.test/final.mp4"},
		{"numeric id", `{"id":12345,"status":"failed","failureReason":"bad audio"}`, "12345", services.JobFailed, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := webhook.NormalizeCaption([]byte(tc.body))
			if err != nil {
				t.Fatalf("NormalizeCaption: %v", err)
			}
			if ev.Provider != webhook.ProviderCaption || ev.CorrelationID != tc.id || ev.State != tc.state || ev.ResultURL != tc.result {
				t.Fatalf("unexpected event %+v", ev)
			}
		})
	}
}

func TestNormalizeRenderEventNames(t *testing.T) {
	ev, err := webhook.NormalizeRender([]byte(`{"event_type":"avatar_video.success","event_data":{"video_id":"v-1","url":"https://r/1.mp4"}}`))
	if err != nil {
		t.Fatalf("NormalizeRender: %v", err)
	}
	if ev.CorrelationID != "v-1" || ev.State != services.JobCompleted || ev.ResultURL != "https://r/1.mp4" {
		t.Fatalf("unexpected event %+v", ev)
	}

	ev, err = webhook.NormalizeRender([]byte(`{"event_type":"avatar_video.fail","event_data":{"video_id":"v-2","msg":"avatar not found"}}`))
	if err != nil {
		t.Fatalf("NormalizeRender: %v", err)
	}
	if ev.State != services.JobFailed || ev.Error != "avatar not found" {
		t.Fatalf("unexpected failure event %+v", ev)
	}

	ev, err = webhook.NormalizeRender([]byte(`{"data":{"videoId":"v-3","status":"error","error":{"message":"quota exceeded"}}}`))
	if err != nil {
		t.Fatalf("NormalizeRender: %v", err)
	}
	if ev.State != services.JobFailed || ev.Error != "quota exceeded" {
		t.Fatalf("unexpected nested error event %+v", ev)
	}
}

func TestNormalizeRejectsUnparseable(t *testing.T) {
	bodies := []string{
		``,
		`not json`,
		`[1,2,3]`,
		`null`,
		`{"status":"completed","downloadUrl":"https://c/x.mp4"}`,
		`{"projectId":"  "}`,
	}
	for _, body := range bodies {
		if _, err := webhook.NormalizeCaption([]byte(body)); !errors.Is(err, webhook.ErrUnparseablePayload) {
			t.Errorf("body %q: expected ErrUnparseablePayload, got %v", body, err)
		}
	}
	if _, err := webhook.Normalize("distribution", []byte(`{"id":"x"}`)); !errors.Is(err, webhook.ErrUnparseablePayload) {
		t.Fatalf("expected ErrUnparseablePayload for unknown provider, got %v", err)
	}
}

func TestParseProvider(t *testing.T) {
	if p, ok := webhook.ParseProvider(" Caption "); !ok || p != webhook.ProviderCaption {
		t.Fatalf("unexpected parse %q %v", p, ok)
	}
	if _, ok := webhook.ParseProvider("distribution"); ok {
		t.Fatal("distribution has no webhook")
	}
}
