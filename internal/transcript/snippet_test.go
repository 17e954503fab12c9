package transcript

import (
	"strings"
	"testing"
)

func TestSnippet_WindowSelection(t *testing.T) {
	entries := []Entry{
		{Text: "a", OffsetMs: 0, DurationMs: 5000},
		{Text: "b", OffsetMs: 30000, DurationMs: 5000},
	}

	got := Snippet(entries, 2000, 20000)
	if !strings.Contains(got, "a") {
		t.Errorf("snippet at 2s should include entry a, got %q", got)
	}
	if strings.Contains(got, "b") {
		t.Errorf("snippet at 2s should exclude entry b, got %q", got)
	}

	got = Snippet(entries, 25000, 20000)
	if !strings.Contains(got, "a") || !strings.Contains(got, "b") {
		t.Errorf("snippet at 25s should include both entries, got %q", got)
	}
}

func TestSnippet_SpanningEntry(t *testing.T) {
	// One long cue fully spanning the query window.
	entries := []Entry{{Text: "long cue", OffsetMs: 0, DurationMs: 120000}}
	got := Snippet(entries, 60000, 1000)
	if !strings.Contains(got, "long cue") {
		t.Errorf("spanning cue not selected, got %q", got)
	}
}

func TestSnippet_MarkersAndLines(t *testing.T) {
	entries := []Entry{
		{Text: "first", OffsetMs: 62000, DurationMs: 2000},
		{Text: "second", OffsetMs: 65000, DurationMs: 2000},
	}
	got := Snippet(entries, 63000, 20000)
	want := "[01:02] first\n[01:05] second"
	if got != want {
		t.Errorf("snippet = %q, want %q", got, want)
	}
}

func TestSnippet_Empty(t *testing.T) {
	if got := Snippet(nil, 1000, 20000); got != "" {
		t.Errorf("snippet of empty transcript = %q, want empty", got)
	}

	entries := []Entry{{Text: "far away", OffsetMs: 500000, DurationMs: 1000}}
	if got := Snippet(entries, 0, 20000); got != "" {
		t.Errorf("snippet with no overlap = %q, want empty", got)
	}
}

func TestSnippet_DefaultWindow(t *testing.T) {
	entries := []Entry{{Text: "x", OffsetMs: 15000, DurationMs: 1000}}
	if got := Snippet(entries, 0, 0); !strings.Contains(got, "x") {
		t.Errorf("default window should cover 15s offset, got %q", got)
	}
}
