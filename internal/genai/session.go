package genai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
)

// ErrStreamInFlight is returned when a second stream is requested on a
// session whose previous stream has not finished.
var ErrStreamInFlight = errors.New("a stream is already in flight on this session")

// syntheticUserTurn opens the history when the first recorded turn is
// model-authored (e.g. a client-side greeting): the API requires the role
// sequence to start with a user turn.
const syntheticUserTurn = "Hello."

// ChatSession holds the system instruction and role-tagged history for one
// conversation. It retains sequential state, so only one stream may be open
// at a time.
type ChatSession struct {
	client    *Client
	system    *Content
	history   []Content
	streaming atomic.Bool
}

// NewChat creates a session with the given system instruction and prior
// history. History starting with a model turn gets a synthetic leading user
// turn.
func (c *Client) NewChat(systemInstruction string, history []Content) *ChatSession {
	var system *Content
	if systemInstruction != "" {
		system = &Content{Parts: []Part{{Text: systemInstruction}}}
	}

	normalized := make([]Content, 0, len(history)+1)
	if len(history) > 0 && history[0].Role == "model" {
		normalized = append(normalized, Content{Role: "user", Parts: []Part{{Text: syntheticUserTurn}}})
	}
	normalized = append(normalized, history...)

	return &ChatSession{
		client:  c,
		system:  system,
		history: normalized,
	}
}

// History returns the session's current turn sequence.
func (s *ChatSession) History() []Content {
	return s.history
}

// streamChunk is one SSE data payload of a streamed completion.
type streamChunk struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
}

// SendMessageStream sends text as the next user turn and streams the model's
// reply, invoking onDelta once per text delta. It returns the accumulated
// full response and records the exchange in the session history on success.
// On mid-stream failure the partial text is not recorded and the error is
// returned; the caller decides how to surface it.
func (s *ChatSession) SendMessageStream(ctx context.Context, text string, onDelta func(string)) (string, error) {
	if !s.streaming.CompareAndSwap(false, true) {
		return "", ErrStreamInFlight
	}
	defer s.streaming.Store(false)

	contents := append(append([]Content{}, s.history...), Content{
		Role:  "user",
		Parts: []Part{{Text: text}},
	})

	rc, err := s.client.stream(ctx, s.system, contents)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", &APIError{Kind: KindTransient, Msg: "decoding stream chunk: " + err.Error()}
		}

		resp := generateResponse{Candidates: chunk.Candidates, PromptFeedback: chunk.PromptFeedback}
		if blocked, reason := blockedBy(&resp); blocked {
			return "", &APIError{Kind: KindSafetyBlocked, Msg: reason}
		}

		if delta := joinParts(chunk.Candidates); delta != "" {
			full.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &APIError{Kind: KindTransient, Msg: "reading stream: " + err.Error()}
	}

	response := full.String()
	s.history = append(s.history,
		Content{Role: "user", Parts: []Part{{Text: text}}},
		Content{Role: "model", Parts: []Part{{Text: response}}},
	)
	return response, nil
}
