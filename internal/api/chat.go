package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vidtalk/vidtalk/internal/composer"
	"github.com/vidtalk/vidtalk/internal/genai"
)

// ChatRequest is one chat turn from the extension. Timestamp is the playback
// position in seconds; nil means the player position is unknown.
type ChatRequest struct {
	UserID       string        `json:"userId"`
	VideoID      string        `json:"videoId"`
	UserMessage  string        `json:"userMessage"`
	Timestamp    *float64      `json:"timestamp"`
	ChatHistory  []HistoryTurn `json:"chatHistory"`
	VideoDetails VideoInfo     `json:"videoDetails"`
}

// HistoryTurn mirrors the upstream content shape so the extension can replay
// prior turns verbatim.
type HistoryTurn struct {
	Role  string `json:"role"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

// VideoInfo is the metadata the extension scraped from the watch page.
type VideoInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// streamLine is one NDJSON line of the chat response. The terminal line has
// Done set with either FullResponse or Error.
type streamLine struct {
	Chunk        string `json:"chunk"`
	Done         bool   `json:"done"`
	FullResponse string `json:"fullResponse,omitempty"`
	Error        string `json:"error,omitempty"`
}

func handleChat(deps Deps, guard *chatGuard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: %v", err)
			return
		}

		if req.UserMessage == "" {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "userMessage is required")
			return
		}
		if req.VideoID == "" {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "videoId is required")
			return
		}
		guardUser := req.UserID
		if req.UserID == "" {
			req.UserID = "anonymous"
			// Identity-less requests cannot be told apart, so each gets
			// its own guard key; two unauthenticated viewers of the same
			// video must not contend.
			guardUser = "anon:" + uuid.NewString()
		}

		history, err := toContents(req.ChatHistory)
		if err != nil {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "%v", err)
			return
		}

		if !guard.acquire(guardUser, req.VideoID) {
			httpError(w, http.StatusConflict, codeChatInProgress, "a response for this video is already streaming")
			return
		}
		defer guard.release(guardUser, req.VideoID)

		var playbackMs *int64
		if req.Timestamp != nil && *req.Timestamp >= 0 {
			ms := int64(*req.Timestamp * 1000)
			playbackMs = &ms
		}

		prompt := deps.Composer.Compose(r.Context(), req.VideoID, req.UserMessage, playbackMs)
		system := composer.SystemInstruction(req.VideoDetails.Title, req.VideoDetails.Description)
		session := deps.GenAI.NewChat(system, history)

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, codeInternalError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		enc := json.NewEncoder(w)
		wrote := false
		full, err := session.SendMessageStream(r.Context(), prompt, func(delta string) {
			wrote = true
			enc.Encode(streamLine{Chunk: delta})
			flusher.Flush()
		})

		if err != nil {
			if !wrote {
				writeChatError(w, err)
				return
			}
			slog.Warn("stream aborted mid-response", "video_id", req.VideoID, "error", err)
			enc.Encode(streamLine{Done: true, Error: chatErrorMessage(err)})
			flusher.Flush()
			return
		}

		enc.Encode(streamLine{Done: true, FullResponse: full})
		flusher.Flush()
	}
}

// toContents validates roles and converts the wire history to upstream turns.
func toContents(history []HistoryTurn) ([]genai.Content, error) {
	contents := make([]genai.Content, 0, len(history))
	for i, turn := range history {
		role := turn.Role
		if role == "assistant" {
			role = "model"
		}
		if role != "user" && role != "model" {
			return nil, errors.New("chatHistory roles must be \"user\" or \"model\"")
		}
		parts := make([]genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genai.Part{Text: p.Text})
		}
		if len(parts) == 0 {
			slog.Debug("dropping empty history turn", "index", i)
			continue
		}
		contents = append(contents, genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

// writeChatError maps a pre-stream upstream failure onto a status code. Once
// bytes have been flushed this is no longer an option and errors travel in
// the NDJSON terminal line instead.
func writeChatError(w http.ResponseWriter, err error) {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case genai.KindSafetyBlocked:
			httpError(w, http.StatusBadRequest, codeSafetyBlocked, "%s", apiErr.Msg)
			return
		case genai.KindRateLimit:
			w.Header().Set("Retry-After", "30")
			httpError(w, http.StatusTooManyRequests, codeRateLimited, "%s", apiErr.Msg)
			return
		}
	}
	if errors.Is(err, genai.ErrStreamInFlight) {
		httpError(w, http.StatusConflict, codeChatInProgress, "a response is already streaming")
		return
	}
	httpError(w, http.StatusBadGateway, codeUpstreamError, "upstream error: %v", err)
}

func chatErrorMessage(err error) string {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Msg
	}
	return err.Error()
}
