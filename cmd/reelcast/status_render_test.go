package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not reachable", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not reachable")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestShouldColorizeIgnoresBuffers(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected table %q", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
