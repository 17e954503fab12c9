package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is one (user, video) chat thread. The (UserID, VideoID) pair
// is unique; repeated saves update the title and timestamp in place.
type Conversation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	VideoID       string    `json:"video_id"`
	VideoTitle    string    `json:"video_title"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Message is one finalized chat turn half. Rows are append-only; CreatedAt is
// server-assigned and orders reads.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "assistant"
	Text           string    `json:"text"`
	TimestampMs    int64     `json:"timestamp_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Job is one queued background task (transcript prefetch).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
