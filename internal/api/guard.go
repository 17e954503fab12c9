package api

import "sync"

// chatGuard allows at most one in-flight chat stream per (user, video) pair.
// A second request for the same pair is rejected instead of queued; the
// extension retries after the active stream finishes.
type chatGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newChatGuard() *chatGuard {
	return &chatGuard{active: make(map[string]struct{})}
}

func guardKey(userID, videoID string) string {
	return userID + "\x00" + videoID
}

func (g *chatGuard) acquire(userID, videoID string) bool {
	key := guardKey(userID, videoID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return false
	}
	g.active[key] = struct{}{}
	return true
}

func (g *chatGuard) release(userID, videoID string) {
	key := guardKey(userID, videoID)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}
