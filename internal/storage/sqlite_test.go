package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveConversation_UpsertIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.SaveConversation("u1", "v1", "First Title")
	if err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	id2, err := s.SaveConversation("u1", "v1", "Second Title")
	if err != nil {
		t.Fatalf("SaveConversation again: %v", err)
	}

	if id1 != id2 {
		t.Errorf("upsert created a new row: %s != %s", id1, id2)
	}

	convs, err := s.ListConversations("u1", 10, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	if convs[0].VideoTitle != "Second Title" {
		t.Errorf("title = %q, want latest title", convs[0].VideoTitle)
	}
}

func TestSaveConversation_DistinctPairsDistinctRows(t *testing.T) {
	s := openTestStore(t)

	idA, _ := s.SaveConversation("u1", "v1", "A")
	idB, _ := s.SaveConversation("u1", "v2", "B")
	idC, _ := s.SaveConversation("u2", "v1", "C")

	if idA == idB || idA == idC || idB == idC {
		t.Errorf("distinct (user, video) pairs shared an id: %s %s %s", idA, idB, idC)
	}
}

func TestSaveMessage_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")

	ok := s.SaveMessage(context.Background(), convID, Message{
		Role:        "user",
		Text:        "What happens at [02:10]?",
		TimestampMs: 95000,
	})
	if !ok {
		t.Fatal("SaveMessage returned false")
	}

	msgs, err := s.ListMessages(convID, 10, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Role != "user" || m.Text != "What happens at [02:10]?" || m.TimestampMs != 95000 {
		t.Errorf("message = %+v", m)
	}
	if m.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestSaveMessage_TruncatesOversizedContent(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")

	original := strings.Repeat("x", 10000)
	if ok := s.SaveMessage(context.Background(), convID, Message{Role: "assistant", Text: original}); !ok {
		t.Fatal("SaveMessage returned false")
	}

	msgs, err := s.ListMessages(convID, 10, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	got := msgs[0].Text
	if len(got) > maxMessageBytes {
		t.Errorf("persisted %d bytes, want <= %d", len(got), maxMessageBytes)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Errorf("truncated content missing trailing marker: ...%q", got[len(got)-8:])
	}
	if len(original) != 10000 {
		t.Fatal("caller's copy was modified")
	}
}

func TestListMessages_ChronologicalOrder(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")

	// Both halves of a turn are saved back-to-back within the same
	// wall-clock second; reads must still replay them in insert order.
	const pairs = 20
	for i := 0; i < pairs; i++ {
		q := fmt.Sprintf("question %d", i)
		a := fmt.Sprintf("answer %d", i)
		if !s.SaveMessage(context.Background(), convID, Message{Role: "user", Text: q}) {
			t.Fatalf("SaveMessage(%q) returned false", q)
		}
		if !s.SaveMessage(context.Background(), convID, Message{Role: "assistant", Text: a}) {
			t.Fatalf("SaveMessage(%q) returned false", a)
		}
	}

	msgs, err := s.ListMessages(convID, 2*pairs, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2*pairs {
		t.Fatalf("got %d messages, want %d", len(msgs), 2*pairs)
	}
	for i := 0; i < pairs; i++ {
		user, assistant := msgs[2*i], msgs[2*i+1]
		if user.Role != "user" || user.Text != fmt.Sprintf("question %d", i) {
			t.Fatalf("position %d = %s %q, want the user half of turn %d", 2*i, user.Role, user.Text, i)
		}
		if assistant.Role != "assistant" || assistant.Text != fmt.Sprintf("answer %d", i) {
			t.Fatalf("position %d = %s %q, want the assistant half of turn %d", 2*i+1, assistant.Role, assistant.Text, i)
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit, max, want int
	}{
		{0, 100, 20},
		{-1, 100, 20},
		{50, 100, 50},
		{1000, 100, 100},
		{1000, 200, 200},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.limit, tt.max); got != tt.want {
			t.Errorf("clampLimit(%d, %d) = %d, want %d", tt.limit, tt.max, got, tt.want)
		}
	}
}

func TestDeleteConversation_RemovesMessages(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")
	s.SaveMessage(context.Background(), convID, Message{Role: "user", Text: "hi"})

	if err := s.DeleteConversation(convID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	if _, err := s.GetConversation(convID); err != ErrNotFound {
		t.Errorf("GetConversation after delete = %v, want ErrNotFound", err)
	}
	msgs, err := s.ListMessages(convID, 10, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after delete, want 0", len(msgs))
	}
}

func TestDeleteConversation_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.DeleteConversation("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListConversations_FiltersByUser(t *testing.T) {
	s := openTestStore(t)
	s.SaveConversation("u1", "v1", "A")
	s.SaveConversation("u2", "v1", "B")

	convs, err := s.ListConversations("u1", 10, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 || convs[0].VideoTitle != "A" {
		t.Errorf("conversations = %+v, want only u1's", convs)
	}
}

func TestJobs_ClaimCompleteLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "transcript_prefetch", PayloadJSON: `{"video_id":"abc"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob([]string{"transcript_prefetch"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("claimed job = %+v, want j1", job)
	}

	// The same job cannot be claimed twice while running.
	again, err := s.ClaimNextJob([]string{"transcript_prefetch"})
	if err != nil {
		t.Fatalf("ClaimNextJob again: %v", err)
	}
	if again != nil {
		t.Errorf("claimed a running job: %+v", again)
	}

	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
}

func TestJobs_FailRetriesWithBackoff(t *testing.T) {
	s := openTestStore(t)
	s.EnqueueJob(Job{ID: "j1", Type: "transcript_prefetch", PayloadJSON: `{}`, MaxAttempts: 2})

	job, _ := s.ClaimNextJob([]string{"transcript_prefetch"})
	if job == nil {
		t.Fatal("claim failed")
	}
	if err := s.FailJob("j1", "network down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// Back in pending with a future run_after; not yet claimable.
	job, err := s.ClaimNextJob([]string{"transcript_prefetch"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Errorf("claimed a backed-off job immediately: %+v", job)
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("applied migrations = %v, want at least [1]", versions)
	}
}

func TestSaveMessage_TouchesConversation(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")

	before, _ := s.GetConversation(convID)
	time.Sleep(10 * time.Millisecond)
	s.SaveMessage(context.Background(), convID, Message{Role: "user", Text: "hi"})

	after, _ := s.GetConversation(convID)
	if !after.LastUpdatedAt.After(before.LastUpdatedAt) {
		t.Errorf("last_updated_at not refreshed: %v -> %v", before.LastUpdatedAt, after.LastUpdatedAt)
	}
}

func TestSaveMessage_RetriesTransientThenSucceeds(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")

	realExec := s.exec
	var calls int
	s.exec = func(query string, args ...any) (sql.Result, error) {
		calls++
		if calls < 3 {
			return nil, context.DeadlineExceeded
		}
		return realExec(query, args...)
	}
	s.saveBackoff = time.Millisecond

	if !s.SaveMessage(context.Background(), convID, Message{Role: "user", Text: "hi"}) {
		t.Fatal("SaveMessage returned false despite the write eventually succeeding")
	}
	if calls != 3 {
		t.Errorf("write attempted %d times, want 3", calls)
	}

	msgs, err := s.ListMessages(convID, 10, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
}

func TestSaveMessage_FalseAfterExhaustedRetries(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")

	var calls int
	s.exec = func(query string, args ...any) (sql.Result, error) {
		calls++
		return nil, context.DeadlineExceeded
	}
	s.saveBackoff = time.Millisecond

	if s.SaveMessage(context.Background(), convID, Message{Role: "user", Text: "hi"}) {
		t.Fatal("SaveMessage returned true while every write failed")
	}
	if calls != saveRetryAttempts {
		t.Errorf("write attempted %d times, want %d", calls, saveRetryAttempts)
	}
}

func TestSaveMessage_PermanentErrorNoRetry(t *testing.T) {
	s := openTestStore(t)
	convID, _ := s.SaveConversation("u1", "v1", "T")

	var calls int
	s.exec = func(query string, args ...any) (sql.Result, error) {
		calls++
		return nil, errors.New("UNIQUE constraint failed: messages.id")
	}

	if s.SaveMessage(context.Background(), convID, Message{Role: "user", Text: "hi"}) {
		t.Fatal("SaveMessage returned true on a permanent failure")
	}
	if calls != 1 {
		t.Errorf("write attempted %d times, want 1 (no retry on permanent errors)", calls)
	}
}

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want writeKind
	}{
		{"deadline", context.DeadlineExceeded, writeTransient},
		{"wrapped deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), writeTransient},
		{"unknown", errors.New("syntax error"), writePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyWriteError(tt.err); got != tt.want {
				t.Errorf("classifyWriteError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
