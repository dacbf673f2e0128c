package webhooks

import (
	"sync"
	"time"
)

// DefaultRetention keeps delivery ids long enough that anything still inside
// the freshness window is guaranteed to be found here.
const DefaultRetention = time.Hour

// ReplayGuard is a time-bounded set of recently accepted delivery ids. The
// lookup and the insert are one atomic operation so two concurrent
// deliveries of the same id cannot both pass.
type ReplayGuard struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
}

// NewReplayGuard creates a guard that remembers delivery ids for the given
// retention. A non-positive retention falls back to DefaultRetention.
func NewReplayGuard(retention time.Duration) *ReplayGuard {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &ReplayGuard{
		seen:      make(map[string]time.Time),
		retention: retention,
	}
}

// CheckAndInsert records the delivery id and reports whether it was new.
// Entries past retention are pruned opportunistically on each call.
func (g *ReplayGuard) CheckAndInsert(deliveryID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-g.retention)
	for id, insertedAt := range g.seen {
		if insertedAt.Before(cutoff) {
			delete(g.seen, id)
		}
	}

	if _, ok := g.seen[deliveryID]; ok {
		return false
	}
	g.seen[deliveryID] = now
	return true
}

// Len reports the number of retained delivery ids.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
