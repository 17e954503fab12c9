package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidtalk/vidtalk/internal/prefetch"
	"github.com/vidtalk/vidtalk/internal/storage"
)

// SaveConversationRequest opens (or re-opens) the conversation for a video.
type SaveConversationRequest struct {
	UserID     string `json:"userId"`
	VideoID    string `json:"videoId"`
	VideoTitle string `json:"videoTitle"`
}

func handleSaveConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SaveConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: %v", err)
			return
		}
		if req.UserID == "" || req.VideoID == "" {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "userId and videoId are required")
			return
		}

		id, err := deps.Store.SaveConversation(req.UserID, req.VideoID, req.VideoTitle)
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "failed to save conversation: %v", err)
			return
		}

		// Warm the transcript cache in the background; failure to enqueue
		// never fails the save.
		payload, err := json.Marshal(prefetch.Payload{VideoID: req.VideoID})
		if err == nil {
			job := storage.Job{
				ID:          uuid.New().String(),
				Type:        prefetch.JobType,
				PayloadJSON: string(payload),
			}
			if err := deps.Store.EnqueueJob(job); err != nil {
				slog.Warn("failed to enqueue transcript prefetch", "video_id", req.VideoID, "error", err)
			}
		}

		conv, err := deps.Store.GetConversation(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "failed to load conversation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conv)
	}
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "userId is required")
			return
		}

		limit := parseIntParam(r, "limit", 20)
		offset := parseIntParam(r, "offset", 0)

		convs, err := deps.Store.ListConversations(userID, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "failed to list conversations: %v", err)
			return
		}
		if convs == nil {
			convs = []storage.Conversation{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(convs)
	}
}

func handleDeleteConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteConversation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, codeNotFound, "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "failed to delete conversation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetConversation(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, codeNotFound, "conversation not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "failed to load conversation: %v", err)
			return
		}

		limit := parseIntParam(r, "limit", 50)
		offset := parseIntParam(r, "offset", 0)

		msgs, err := deps.Store.ListMessages(id, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "failed to list messages: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msgs)
	}
}

// SaveMessageRequest persists one finalized chat turn half.
type SaveMessageRequest struct {
	Role        string `json:"role"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestampMs"`
}

func handleSaveMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SaveMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: %v", err)
			return
		}
		if req.Role != "user" && req.Role != "assistant" {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, `role must be "user" or "assistant"`)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "text is required")
			return
		}

		if _, err := deps.Store.GetConversation(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, codeNotFound, "conversation not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "failed to load conversation: %v", err)
			return
		}

		saved := deps.Store.SaveMessage(r.Context(), id, storage.Message{
			Role:        req.Role,
			Text:        req.Text,
			TimestampMs: req.TimestampMs,
		})

		// A failed save is reported, not escalated; the chat flow on the
		// client carries on with its in-memory copy.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"saved": saved})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
