package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vidtalk/vidtalk/internal/prefetch"
	"github.com/vidtalk/vidtalk/internal/storage"
)

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSaveConversation(t *testing.T) {
	store := openAPITestStore(t)
	handler := NewHandler(Deps{Store: store})

	rec := doJSON(t, handler, http.MethodPost, "/conversations",
		`{"userId":"u1","videoId":"v1","videoTitle":"Go Concurrency Patterns"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var conv storage.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if conv.ID == "" || conv.VideoTitle != "Go Concurrency Patterns" {
		t.Errorf("conversation = %+v", conv)
	}

	// A prefetch job was queued for the video.
	job, err := store.ClaimNextJob([]string{prefetch.JobType})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no prefetch job enqueued")
	}
	var payload prefetch.Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.VideoID != "v1" {
		t.Errorf("payload video = %q", payload.VideoID)
	}
}

func TestSaveConversation_Validation(t *testing.T) {
	handler := NewHandler(Deps{Store: openAPITestStore(t)})

	rec := doJSON(t, handler, http.MethodPost, "/conversations", `{"videoId":"v1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListConversations(t *testing.T) {
	store := openAPITestStore(t)
	handler := NewHandler(Deps{Store: store})

	rec := doJSON(t, handler, http.MethodGet, "/conversations", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing userId: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/conversations?userId=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list = %s, want []", rec.Body.String())
	}

	store.SaveConversation("u1", "v1", "A")
	rec = doJSON(t, handler, http.MethodGet, "/conversations?userId=u1", "")
	var convs []storage.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &convs); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("got %d conversations", len(convs))
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	store := openAPITestStore(t)
	handler := NewHandler(Deps{Store: store})
	convID, _ := store.SaveConversation("u1", "v1", "T")

	rec := doJSON(t, handler, http.MethodPost, "/conversations/"+convID+"/messages",
		`{"role":"user","text":"What happens at [02:10]?","timestampMs":95000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"saved":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/conversations/"+convID+"/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var msgs []storage.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "What happens at [02:10]?" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSaveMessage_Validation(t *testing.T) {
	store := openAPITestStore(t)
	handler := NewHandler(Deps{Store: store})
	convID, _ := store.SaveConversation("u1", "v1", "T")

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad role", "/conversations/" + convID + "/messages", `{"role":"system","text":"x"}`, http.StatusBadRequest},
		{"empty text", "/conversations/" + convID + "/messages", `{"role":"user","text":""}`, http.StatusBadRequest},
		{"unknown conversation", "/conversations/missing/messages", `{"role":"user","text":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestListMessages_UnknownConversation(t *testing.T) {
	handler := NewHandler(Deps{Store: openAPITestStore(t)})

	rec := doJSON(t, handler, http.MethodGet, "/conversations/missing/messages", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteConversation(t *testing.T) {
	store := openAPITestStore(t)
	handler := NewHandler(Deps{Store: store})
	convID, _ := store.SaveConversation("u1", "v1", "T")

	rec := doJSON(t, handler, http.MethodDelete, "/conversations/"+convID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/conversations/"+convID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	handler := NewHandler(Deps{Store: openAPITestStore(t), Token: "secret"})

	rec := doJSON(t, handler, http.MethodGet, "/conversations?userId=u1", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations?userId=u1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", rec.Code)
	}

	// Health stays open.
	rec = doJSON(t, handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", rec.Code)
	}
}
