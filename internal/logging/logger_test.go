package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelcast/internal/config"
	"reelcast/internal/logging"
	"reelcast/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("file message", logging.String("k", "v"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "reelcast.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", content, err)
	}
	if entry["msg"] != "file message" || entry["k"] != "v" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestConsoleLoggerLiftsSubject(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "webhook")
	logger.Info("render completed",
		logging.String(logging.FieldWorkflowID, "0123456789abcdef"),
		logging.String(logging.FieldKind, "property"),
		logging.String(logging.FieldStage, "rendering"),
		logging.String("result_url", "https://cdn.test/a b.mp4"),
	)

	line := buf.String()
	if !strings.Contains(line, "webhook: [property/01234567 rendering] render completed") {
		t.Fatalf("expected lifted subject, got %q", line)
	}
	if !strings.Contains(line, `result_url="https://cdn.test/a b.mp4"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("dropped")
	logging.WarnWithContext(logger, "kept", "test_event")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, `"event_type":"test_event"`) || !strings.Contains(out, `"error_hint"`) {
		t.Fatalf("expected enforced fields, got %q", out)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithWorkflowID(context.Background(), "wf-1")
	ctx = services.WithStage(ctx, "caption_processing")
	ctx = services.WithRequestID(ctx, "req-9")

	logging.WithContext(ctx, base).Info("hello")

	out := buf.String()
	for _, want := range []string{`"workflow_id":"wf-1"`, `"stage":"caption_processing"`, `"request_id":"req-9"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should never be enabled")
	}
}
