// Package prefetch warms the transcript cache in the background so the first
// chat turn on a freshly opened conversation doesn't pay the fetch latency.
package prefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidtalk/vidtalk/internal/storage"
)

// JobType is the queue type this worker claims.
const JobType = "transcript_prefetch"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Worker processes transcript_prefetch jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	warmer warmFunc
	poll   time.Duration
	logger *slog.Logger
}

type warmFunc func(ctx context.Context, videoID string) int

// NewWorker creates a Worker that warms the cache through warm; warm returns
// the number of transcript entries loaded. If pollInterval is <= 0, it
// defaults to 500ms.
func NewWorker(store JobStore, warm func(ctx context.Context, videoID string) int, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		warmer: warm,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("prefetch iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single prefetch job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("prefetch job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// Payload is the job payload for a transcript prefetch.
type Payload struct {
	VideoID string `json:"video_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.VideoID == "" {
		return fmt.Errorf("payload missing video_id")
	}

	n := w.warmer(ctx, payload.VideoID)
	if n == 0 {
		w.logger.Info("no transcript available", "video_id", payload.VideoID)
	} else {
		w.logger.Info("transcript cached", "video_id", payload.VideoID, "entries", n)
	}
	return nil
}
