package pool

import (
	"math"
	"time"

	"github.com/use-agent/reader/browser"
)

// Status is a session's position in its lifecycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusBusy      Status = "busy"
	StatusRecycling Status = "recycling"
	StatusUnhealthy Status = "unhealthy"
)

// Session is one pooled browser tab. All bookkeeping fields are guarded by the
// owning Pool's mutex; callers holding a session only touch Page.
type Session struct {
	id      string
	slot    int
	page    browser.Page
	created time.Time

	lastUsed   time.Time
	acquiredAt time.Time
	requests   int
	errScore   float64
	status     Status
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Page returns the browser tab owned by the session.
func (s *Session) Page() browser.Page { return s.page }

// recordResult applies the same scoring the page handles used: a success
// forgives half a failure, a failure adds one.
func (s *Session) recordResult(failed bool) {
	if failed {
		s.errScore += 1.0
		return
	}
	s.errScore = math.Max(0, s.errScore-0.5)
}

const maxErrScore = 3.0

// shouldRecycle reports whether the session has worn out. A zero limit
// disables that condition.
func (s *Session) shouldRecycle(cfg Config, now time.Time) bool {
	if cfg.RetireAfterRequests > 0 && s.requests >= cfg.RetireAfterRequests {
		return true
	}
	if cfg.RetireAfterAge > 0 && now.Sub(s.created) >= cfg.RetireAfterAge {
		return true
	}
	return s.errScore >= maxErrScore
}

// SessionInfo is a point-in-time copy of a session's bookkeeping.
type SessionInfo struct {
	ID       string    `json:"id"`
	Slot     int       `json:"slot"`
	Status   Status    `json:"status"`
	Requests int       `json:"requests"`
	Created  time.Time `json:"created"`
	LastUsed time.Time `json:"last_used"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:       s.id,
		Slot:     s.slot,
		Status:   s.status,
		Requests: s.requests,
		Created:  s.created,
		LastUsed: s.lastUsed,
	}
}
