// Package composer assembles the grounded prompt for one chat turn: the user
// message, an optional playback-position note, and timestamp-anchored
// transcript excerpts, plus the per-conversation system instruction.
package composer

import (
	"context"
	"fmt"
	"strings"

	"github.com/vidtalk/vidtalk/internal/timestamp"
	"github.com/vidtalk/vidtalk/internal/transcript"
)

// TranscriptSource yields cached caption cues for a video; nil means no
// transcript is available.
type TranscriptSource interface {
	Get(ctx context.Context, videoID string) []transcript.Entry
}

// Assembler builds per-turn prompts. The snippet window is the ± range in
// milliseconds around each referenced timestamp.
type Assembler struct {
	transcripts TranscriptSource
	windowMs    int64
}

// New creates an Assembler. If windowMs <= 0, the default (±10s) is used.
func New(transcripts TranscriptSource, windowMs int64) *Assembler {
	if windowMs <= 0 {
		windowMs = transcript.DefaultSnippetWindowMs
	}
	return &Assembler{transcripts: transcripts, windowMs: windowMs}
}

// Compose returns the full text for the next user turn. playbackMs is the
// explicit player position, or nil when the client did not send one.
// Transcript absence is silent: the message is still a valid prompt without
// the excerpt section.
func (a *Assembler) Compose(ctx context.Context, videoID, userMessage string, playbackMs *int64) string {
	candidates := collectTimestamps(userMessage, playbackMs)

	var excerpts string
	if len(candidates) > 0 {
		entries := a.transcripts.Get(ctx, videoID)
		excerpts = a.buildExcerpts(entries, candidates)
	}

	var sb strings.Builder
	sb.WriteString(userMessage)

	if playbackMs != nil {
		sb.WriteString(fmt.Sprintf("\n\n(The user is currently at [%s] in the video.)", timestamp.FormatMs(*playbackMs)))
	}

	if excerpts != "" {
		sb.WriteString("\n\n--- Relevant transcript excerpts ---\n")
		sb.WriteString(excerpts)
	}

	return sb.String()
}

// collectTimestamps gathers the explicit playback position plus every
// reference in the message text, deduplicated in discovery order.
func collectTimestamps(userMessage string, playbackMs *int64) []int64 {
	var candidates []int64
	if playbackMs != nil {
		candidates = append(candidates, *playbackMs)
	}
	candidates = append(candidates, timestamp.Extract(userMessage)...)

	seen := make(map[int64]struct{}, len(candidates))
	unique := candidates[:0]
	for _, ts := range candidates {
		if _, ok := seen[ts]; ok {
			continue
		}
		seen[ts] = struct{}{}
		unique = append(unique, ts)
	}
	return unique
}

func (a *Assembler) buildExcerpts(entries []transcript.Entry, candidates []int64) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, ts := range candidates {
		snippet := transcript.Snippet(entries, ts, a.windowMs)
		if snippet == "" {
			continue
		}
		rendered := timestamp.FormatMs(ts)
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("Around [%s]:\n%s\n(excerpt answering the question about [%s])", rendered, snippet, rendered))
	}
	return sb.String()
}

// SystemInstruction is the fixed instruction established once per
// conversation. It pins the assistant to the named video and the strict
// [MM:SS] convention the client's link rendering depends on.
func SystemInstruction(title, description string) string {
	var sb strings.Builder
	sb.WriteString("You are an assistant helping a viewer discuss the YouTube video ")
	sb.WriteString(fmt.Sprintf("%q.\n\n", title))
	if description != "" {
		sb.WriteString("Video description:\n")
		sb.WriteString(description)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Rules:\n")
	sb.WriteString("- You cannot watch the video. Rely only on the description, the conversation so far, and the transcript excerpts supplied with each question.\n")
	sb.WriteString("- Every reference to a moment in the video must use the exact bracketed form [MM:SS], e.g. [02:10]. Never write times any other way (no \"2:10\", \"2m10s\", or \"at two minutes\").\n")
	sb.WriteString("- Do not repeat earlier answers. Keep responses concise unless the question calls for detail.\n")
	return sb.String()
}
