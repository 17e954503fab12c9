package transcript

import (
	"strings"

	"github.com/vidtalk/vidtalk/internal/timestamp"
)

// DefaultSnippetWindowMs is the symmetric window (±10s) around a timestamp.
const DefaultSnippetWindowMs = 20000

// Snippet returns the caption text surrounding timestampMs, one cue per line,
// each prefixed with its own [MM:SS] marker. Returns "" when the transcript
// is empty or no cue overlaps the window.
func Snippet(entries []Entry, timestampMs, windowMs int64) string {
	if len(entries) == 0 {
		return ""
	}
	if windowMs <= 0 {
		windowMs = DefaultSnippetWindowMs
	}

	lo := timestampMs - windowMs
	hi := timestampMs + windowMs

	var sb strings.Builder
	for _, e := range entries {
		start := e.OffsetMs
		end := e.OffsetMs + e.DurationMs

		// Three inclusive overlap tests: cue starts in range, cue ends
		// in range, or cue spans the whole range.
		startsIn := start >= lo && start <= hi
		endsIn := end >= lo && end <= hi
		spans := start <= lo && end >= hi
		if !startsIn && !endsIn && !spans {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("[" + timestamp.FormatMs(start) + "] " + e.Text)
	}
	return sb.String()
}
