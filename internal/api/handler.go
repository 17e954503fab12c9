// Package api exposes the HTTP surface of the vidtalk backend: the streaming
// chat endpoint, video metadata lookups, and the conversation gateway.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidtalk/vidtalk/internal/composer"
	"github.com/vidtalk/vidtalk/internal/genai"
	"github.com/vidtalk/vidtalk/internal/storage"
	"github.com/vidtalk/vidtalk/internal/youtube"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the wired dependencies for the HTTP handler.
type Deps struct {
	Store    *storage.Store
	Composer *composer.Assembler
	GenAI    *genai.Client
	Videos   *youtube.Client // optional; nil when no Data API key is configured
	Token    string          // optional; empty disables bearer auth
}

// NewHandler builds the router. /health is always open; everything else sits
// behind bearer auth when a token is configured.
func NewHandler(deps Deps) http.Handler {
	guard := newChatGuard()

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/chat", handleChat(deps, guard))
		r.Get("/youtube/details", handleVideoDetails(deps))

		r.Post("/conversations", handleSaveConversation(deps))
		r.Get("/conversations", handleListConversations(deps))
		r.Delete("/conversations/{id}", handleDeleteConversation(deps))
		r.Get("/conversations/{id}/messages", handleListMessages(deps))
		r.Post("/conversations/{id}/messages", handleSaveMessage(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
