package render_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelcast/internal/services"
	"reelcast/internal/services/render"
)

func TestSubmitSendsPresenterAndReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/videos" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["script"] != "Welcome home" || body["avatar_id"] != "avatar-1" || body["voice_id"] != "voice-override" {
			t.Errorf("unexpected body %v", body)
		}
		dim, _ := body["dimension"].(map[string]any)
		if dim["width"] != float64(1080) || dim["height"] != float64(1920) {
			t.Errorf("unexpected dimension %v", dim)
		}
		_, _ = w.Write([]byte(`{"data":{"video_id":"vid-123"}}`))
	}))
	defer srv.Close()

	client := render.NewClient(render.Config{
		BaseURL: srv.URL, APIKey: "secret", AvatarID: "avatar-1", VoiceID: "voice-1", Width: 1080, Height: 1920,
	})
	id, err := client.Submit(context.Background(), render.Request{Script: "Welcome home", VoiceID: "voice-override"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "vid-123" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestSubmitRejectedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"script too long"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := render.NewClient(render.Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := client.Submit(context.Background(), render.Request{Script: "x"})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestSubmitRequiresScript(t *testing.T) {
	client := render.NewClient(render.Config{BaseURL: "http://127.0.0.1:1", APIKey: "k"})
	if _, err := client.Submit(context.Background(), render.Request{Script: "  "}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPollStatusStates(t *testing.T) {
	responses := map[string]string{
		"done":    `{"data":{"status":"completed","video_url":"https://cdn.test/done.mp4"}}`,
		"failed":  `{"data":{"status":"failed","error":{"message":"avatar missing"}}}`,
		"pending": `{"data":{"status":"processing"}}`,
		"nourl":   `{"data":{"status":"completed"}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(responses[r.URL.Query().Get("video_id")]))
	}))
	defer srv.Close()

	client := render.NewClient(render.Config{BaseURL: srv.URL, APIKey: "k"})
	ctx := context.Background()

	status, err := client.PollStatus(ctx, "done")
	if err != nil || status.State != services.JobCompleted || status.ResultURL != "https://cdn.test/done.mp4" {
		t.Fatalf("unexpected completed status %+v err=%v", status, err)
	}
	status, err = client.PollStatus(ctx, "failed")
	if err != nil || status.State != services.JobFailed || status.Error != "avatar missing" {
		t.Fatalf("unexpected failed status %+v err=%v", status, err)
	}
	status, err = client.PollStatus(ctx, "pending")
	if err != nil || status.State != services.JobPending {
		t.Fatalf("unexpected pending status %+v err=%v", status, err)
	}
	status, err = client.PollStatus(ctx, "nourl")
	if err != nil || status.State != services.JobPending {
		t.Fatalf("completed without url should stay pending, got %+v err=%v", status, err)
	}
}
