package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL          = time.Hour
	defaultWindow       = time.Minute
	defaultMaxPerWindow = 10
	defaultResetMargin  = time.Second
	defaultMaxAttempts  = 3
	defaultBackoffBase  = 500 * time.Millisecond
)

// CacheOptions tune the cache; zero values take the production defaults.
// Tests shrink the durations so limiter and backoff paths run in milliseconds.
type CacheOptions struct {
	TTL          time.Duration
	Window       time.Duration
	MaxPerWindow int
	ResetMargin  time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

type cachedTranscript struct {
	entries   []Entry
	fetchedAt time.Time
}

// Cache keeps fetched transcripts in memory with a TTL and throttles provider
// access to a fixed per-window request budget.
type Cache struct {
	provider Provider
	opts     CacheOptions
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	entries     map[string]cachedTranscript
	requests    int
	windowReset time.Time

	group singleflight.Group
}

// NewCache creates a transcript cache backed by the given provider.
func NewCache(provider Provider, opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.MaxPerWindow <= 0 {
		opts.MaxPerWindow = defaultMaxPerWindow
	}
	if opts.ResetMargin <= 0 {
		opts.ResetMargin = defaultResetMargin
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		provider: provider,
		opts:     opts,
		logger:   logger,
		now:      now,
		entries:  make(map[string]cachedTranscript),
	}
}

// Get returns the cached transcript for videoID, fetching it if the cache is
// cold or stale. A nil result means "no transcript available" and is never an
// error the caller should surface: provider failures are logged and swallowed
// here. Blocks while the per-window fetch budget is exhausted.
func (c *Cache) Get(ctx context.Context, videoID string) []Entry {
	if entries, ok := c.lookup(videoID); ok {
		return entries
	}

	// Collapse concurrent fetches of the same video into one provider call.
	v, _, _ := c.group.Do(videoID, func() (any, error) {
		return c.fetchAndStore(ctx, videoID), nil
	})
	entries, _ := v.([]Entry)
	return entries
}

func (c *Cache) lookup(videoID string) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[videoID]
	if !ok || c.now().Sub(cached.fetchedAt) >= c.opts.TTL {
		// Stale entries stay in the map; they are overwritten on the
		// next successful fetch.
		return nil, false
	}
	return cached.entries, true
}

func (c *Cache) fetchAndStore(ctx context.Context, videoID string) []Entry {
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		// Another request may have filled the cache while we waited on
		// the limiter or a backoff.
		if entries, ok := c.lookup(videoID); ok {
			return entries
		}

		if err := c.reserveSlot(ctx); err != nil {
			return nil
		}

		entries, err := c.provider.Fetch(ctx, videoID)
		if err == nil {
			if len(entries) == 0 {
				// No negative caching: a later fetch may find cues.
				return nil
			}
			c.mu.Lock()
			c.entries[videoID] = cachedTranscript{entries: entries, fetchedAt: c.now()}
			c.mu.Unlock()
			return entries
		}

		fe, ok := err.(*FetchError)
		if !ok || !fe.Retryable() {
			c.logger.Warn("transcript unavailable", "video_id", videoID, "error", err)
			return nil
		}

		c.logger.Warn("transcript fetch failed, retrying",
			"video_id", videoID, "attempt", attempt, "kind", fe.Kind.String())
		if attempt < c.opts.MaxAttempts {
			backoff := time.Duration(attempt*attempt) * c.opts.BackoffBase
			if !sleep(ctx, backoff) {
				return nil
			}
		}
	}

	c.logger.Warn("transcript fetch retries exhausted", "video_id", videoID)
	return nil
}

// reserveSlot accounts one fetch attempt against the per-window budget,
// sleeping past the window reset when the budget is spent. Between the check
// and the sleep another goroutine may also observe a free slot; the small
// over-admission is accepted rather than serialized away.
func (c *Cache) reserveSlot(ctx context.Context) error {
	for {
		c.mu.Lock()
		now := c.now()
		if now.After(c.windowReset) {
			c.requests = 0
			c.windowReset = now.Add(c.opts.Window)
		}
		if c.requests < c.opts.MaxPerWindow {
			c.requests++
			c.mu.Unlock()
			return nil
		}
		wait := c.windowReset.Sub(now) + c.opts.ResetMargin
		c.mu.Unlock()

		c.logger.Info("transcript rate limit reached, waiting", "wait", wait)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done; returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
