package api

import (
	"sync"
	"time"

	"github.com/soaringjerry/icc-checker/internal/services"
)

const DefaultSessionTTL = 2 * time.Hour

// SessionRegistry holds the open audit sessions by id. Sessions idle longer
// than ttl are dropped on the next access.
type SessionRegistry struct {
	mu        sync.Mutex
	sessions  map[string]*services.Session
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRegistry{
		sessions: make(map[string]*services.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *SessionRegistry) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < r.ttl/4 {
		return
	}
	for id, s := range r.sessions {
		if now.Sub(s.LastActive()) > r.ttl {
			delete(r.sessions, id)
		}
	}
	r.lastSweep = now
}

// Put registers s.
func (r *SessionRegistry) Put(s *services.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)
	s.Touch(now)
	r.sessions[s.ID] = s
}

// Get returns the session and refreshes its idle clock. Expired sessions are
// reported as missing.
func (r *SessionRegistry) Get(id string) (*services.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if now.Sub(s.LastActive()) > r.ttl {
		delete(r.sessions, id)
		return nil, false
	}
	s.Touch(now)
	return s, true
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
