package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelcast/internal/services"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveProviderCall(_, _, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func newTestClient(t *testing.T, url string, obs services.Observer) *services.HTTPClient {
	t.Helper()
	return services.NewHTTPClient(
		services.HTTPConfig{Provider: "test", BaseURL: url, APIKey: "key", Timeout: time.Second},
		services.WithRetryBackoff(2, time.Millisecond, 2*time.Millisecond),
		services.WithObserver(obs),
	)
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer header")
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"done"}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	client := newTestClient(t, srv.URL, obs)
	var out struct {
		Status string `json:"status"`
	}
	if err := client.GetJSON(context.Background(), "poll", "/status", nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Status != "done" {
		t.Fatalf("unexpected status %q", out.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "success" {
		t.Fatalf("unexpected observed outcomes %v", obs.outcomes)
	}
}

func TestGetJSONDoesNotRetryPermanentFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown id", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	err := client.GetJSON(context.Background(), "poll", "/status", nil, nil)
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var perr *services.ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected provider error with status 404, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single attempt, got %d", got)
	}
}

func TestPostJSONIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type")
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	err := client.PostJSON(context.Background(), "submit", "/videos", map[string]string{"a": "b"}, nil)
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("submissions must not be retried, got %d attempts", got)
	}
}

func TestUnconfiguredClientFailsFast(t *testing.T) {
	client := services.NewHTTPClient(services.HTTPConfig{Provider: "test", BaseURL: "http://127.0.0.1:1"})
	err := client.GetJSON(context.Background(), "poll", "/x", nil, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCustomAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := services.NewHTTPClient(services.HTTPConfig{Provider: "test", BaseURL: srv.URL, APIKey: "key", AuthHeader: "X-Api-Key"})
	if err := client.GetJSON(context.Background(), "poll", "/x", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
}
