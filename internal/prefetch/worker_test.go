package prefetch

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vidtalk/vidtalk/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueuePrefetchJob(t *testing.T, store *storage.Store, jobID, videoID string) {
	t.Helper()
	payload, _ := json.Marshal(Payload{VideoID: videoID})
	job := storage.Job{
		ID:          jobID,
		Type:        JobType,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

func TestRunOnce_WarmsCacheAndCompletes(t *testing.T) {
	store := openTestStore(t)
	enqueuePrefetchJob(t, store, "job-1", "video-abc")

	var warmed atomic.Value
	w := NewWorker(store, func(ctx context.Context, videoID string) int {
		warmed.Store(videoID)
		return 12
	}, 10*time.Millisecond)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce found no job")
	}
	if got, _ := warmed.Load().(string); got != "video-abc" {
		t.Errorf("warmed %q, want video-abc", got)
	}

	// Completed: nothing left to claim.
	done, err = w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("completed job was claimed again")
	}
}

func TestRunOnce_NoTranscriptStillCompletes(t *testing.T) {
	store := openTestStore(t)
	enqueuePrefetchJob(t, store, "job-1", "video-abc")

	w := NewWorker(store, func(ctx context.Context, videoID string) int {
		return 0
	}, 10*time.Millisecond)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce found no job")
	}

	done, _ = w.RunOnce(context.Background())
	if done {
		t.Error("an unavailable transcript should complete the job, not retry it")
	}
}

func TestRunOnce_BadPayloadFailsJob(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(storage.Job{ID: "job-1", Type: JobType, PayloadJSON: "{not json"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	var calls atomic.Int64
	w := NewWorker(store, func(ctx context.Context, videoID string) int {
		calls.Add(1)
		return 1
	}, 10*time.Millisecond)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce found no job")
	}
	if calls.Load() != 0 {
		t.Error("warm called despite unparseable payload")
	}
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, func(ctx context.Context, videoID string) int { return 0 }, 10*time.Millisecond)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("claimed a job from an empty queue")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, func(ctx context.Context, videoID string) int { return 0 }, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
