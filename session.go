package errorexplorer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session tracks a period of host activity. A session expires after the
// configured inactivity timeout; any access past expiry rotates the id.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	PageViews int       `json:"page_views"`
}

// SessionManager owns the current session for a pipeline instance.
type SessionManager struct {
	mu       sync.Mutex
	current  Session
	lastSeen time.Time
	timeout  time.Duration
	now      func() time.Time
}

// NewSessionManager creates a manager with the given inactivity timeout.
func NewSessionManager(timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	return &SessionManager{
		timeout: timeout,
		now:     time.Now,
	}
}

// Current returns the active session, creating a fresh one on first use or
// when the previous session has been inactive past the timeout. Every call
// counts as activity.
func (sm *SessionManager) Current() Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.refreshLocked()
	return sm.current
}

// TrackPageView counts one page view (or request, on server runtimes)
// against the active session and returns it.
func (sm *SessionManager) TrackPageView() Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.refreshLocked()
	sm.current.PageViews++
	return sm.current
}

// refreshLocked rotates the session id past the inactivity timeout and
// records the access. Callers hold sm.mu.
func (sm *SessionManager) refreshLocked() {
	now := sm.now()
	if sm.current.ID == "" || now.Sub(sm.lastSeen) > sm.timeout {
		sm.current = Session{
			ID:        uuid.NewString(),
			StartedAt: now,
		}
	}
	sm.lastSeen = now
}
