package web

import (
	"context"
	"sync"
	"time"

	"github.com/meridianlabs/topoview/pkg/explore"
	"github.com/meridianlabs/topoview/pkg/logging"
	"github.com/meridianlabs/topoview/pkg/topology"
)

// sessionRegistry owns the live sessions and evicts the ones that go idle
// past the TTL
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*explore.Session
	ttl      time.Duration

	onEvict func(*explore.Session)
}

func newSessionRegistry(ttl time.Duration, onEvict func(*explore.Session)) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*explore.Session),
		ttl:      ttl,
		onEvict:  onEvict,
	}
}

// create builds and registers a session. The caller supplies the id so it
// can wire publish topics before the session constructs; restoration may
// publish from inside NewSession.
func (r *sessionRegistry) create(id string, cfg explore.Config, initialQuery string) *explore.Session {
	s := explore.NewSession(id, cfg, initialQuery)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

func (r *sessionRegistry) get(id string) (*explore.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove closes and drops a session; it reports whether the id was live
func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	if r.onEvict != nil {
		r.onEvict(s)
	}
	return true
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// broadcastInventory forwards a new snapshot to every live session
func (r *sessionRegistry) broadcastInventory(snap *topology.Snapshot) {
	r.mu.RLock()
	sessions := make([]*explore.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.OnInventory(snap)
	}
}

// runJanitor evicts idle sessions until the context ends
func (r *sessionRegistry) runJanitor(ctx context.Context) {
	if r.ttl <= 0 {
		return
	}
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}

func (r *sessionRegistry) evictIdle(now time.Time) {
	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		if now.Sub(s.LastAccess()) > r.ttl {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		if r.remove(id) {
			logging.Info("evicted idle session", "sessionID", id)
		}
	}
}
