package service

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/eventcast/internal/domain/event"
	"github.com/Strob0t/eventcast/internal/domain/marking"
	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/port/broadcast"
)

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Session is one authenticated client's live subscription. It is plain data:
// filtering, delivery and closing are done by the Broadcaster.
type Session struct {
	ID        string
	Identity  string
	Name      string
	Allowed   marking.Set
	Transport broadcast.Transport

	expiresAt  atomic.Int64 // unix nanoseconds
	catchingUp atomic.Bool
	closed     atomic.Bool
}

// NewSession builds a session for principal p on transport t.
func NewSession(id string, p *user.Principal, t broadcast.Transport) *Session {
	s := &Session{
		ID:        id,
		Identity:  p.ID,
		Name:      p.Name,
		Allowed:   p.Markings(),
		Transport: t,
	}
	s.expiresAt.Store(p.ExpiresAt.UnixNano())
	s.catchingUp.Store(true)
	return s
}

// ExpiresAt returns the instant after which the session is no longer valid.
func (s *Session) ExpiresAt() time.Time {
	return time.Unix(0, s.expiresAt.Load())
}

// Extend moves the expiry forward to t. Earlier instants are ignored.
// It reports whether the expiry changed.
func (s *Session) Extend(t time.Time) bool {
	next := t.UnixNano()
	for {
		cur := s.expiresAt.Load()
		if next <= cur {
			return false
		}
		if s.expiresAt.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Expired reports whether now is at or past the session's expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.UnixNano() >= s.expiresAt.Load()
}

// Alive reports whether the session may still receive messages at now.
func (s *Session) Alive(now time.Time) bool {
	return !s.closed.Load() && !s.Expired(now)
}

// CanObserve reports whether the session is authorized to see ev.
func (s *Session) CanObserve(ev event.Event) bool {
	return marking.Permits(s.Allowed, ev.Markings)
}

// CatchingUp reports whether no log event has been delivered yet.
func (s *Session) CatchingUp() bool {
	return s.catchingUp.Load()
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// markClosed flips the session to closed. Only the first call returns true.
func (s *Session) markClosed() bool {
	return s.closed.CompareAndSwap(false, true)
}
