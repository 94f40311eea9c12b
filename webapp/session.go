// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package webapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/z5labs/harbor/connector"
	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// SessionCookieName is the cookie carrying the session id.
const SessionCookieName = "JSESSIONID"

// DefaultSweepSchedule is how often expired sessions are removed.
const DefaultSweepSchedule = "@every 1m"

// Session holds per-client state between requests.
type Session struct {
	ID      string
	Created time.Time

	mu         sync.Mutex
	lastAccess time.Time
	values     map[string]any
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// LastAccessed is when the session was last looked up.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = now
}

func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastAccessed()) >= timeout
}

// SessionOption configures a [SessionManager].
type SessionOption func(*SessionManager)

// SweepSchedule overrides [DefaultSweepSchedule]. Any robfig/cron
// spec is accepted.
func SweepSchedule(spec string) SessionOption {
	return func(sm *SessionManager) {
		sm.schedule = spec
	}
}

// SessionLogger sets the logger.
func SessionLogger(log *slog.Logger) SessionOption {
	return func(sm *SessionManager) {
		sm.log = log
	}
}

func sessionClock(now func() time.Time) SessionOption {
	return func(sm *SessionManager) {
		sm.now = now
	}
}

// SessionManager tracks sessions in memory and expires them after a
// period of inactivity.
type SessionManager struct {
	timeout  time.Duration
	schedule string
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	cron     *cron.Cron
}

// NewSessionManager returns a manager that expires sessions idle for
// longer than timeout.
func NewSessionManager(timeout time.Duration, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		timeout:  timeout,
		schedule: DefaultSweepSchedule,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.log = logging.OrDiscard(sm.log)
	return sm
}

// Timeout returns the inactivity timeout.
func (sm *SessionManager) Timeout() time.Duration {
	return sm.timeout
}

// Start schedules the expiry sweep.
func (sm *SessionManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.cron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(sm.schedule, func() {
		n := sm.Expire()
		if n > 0 {
			sm.log.Debug("expired sessions", slogfield.Int("count", n))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid session sweep schedule %q: %w", sm.schedule, err)
	}
	c.Start()
	sm.cron = c
	return nil
}

// Stop halts the sweep, waits for a running sweep to finish and drops
// every session.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	c := sm.cron
	sm.cron = nil
	sm.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	clear(sm.sessions)
	return nil
}

// Create starts a new session.
func (sm *SessionManager) Create() *Session {
	now := sm.now()
	s := &Session{
		ID:         uuid.NewString(),
		Created:    now,
		lastAccess: now,
		values:     make(map[string]any),
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.ID] = s
	return s
}

// Lookup returns the live session with the given id and marks it
// accessed. Expired sessions are removed and not returned.
func (sm *SessionManager) Lookup(id string) (*Session, bool) {
	now := sm.now()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(now, sm.timeout) {
		delete(sm.sessions, id)
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Invalidate removes the session with the given id.
func (sm *SessionManager) Invalidate(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Expire removes every session idle for longer than the timeout and
// returns how many were removed.
func (sm *SessionManager) Expire() int {
	now := sm.now()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for id, s := range sm.sessions {
		if s.expired(now, sm.timeout) {
			delete(sm.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

type sessionCtxKey struct{}

type sessionBinding struct {
	manager *SessionManager
	path    string
}

// SessionFromRequest returns the session bound to r. If none exists and
// create is set, a new session is started and its cookie written to w.
// It returns false when sessions are disabled for the application.
func SessionFromRequest(w http.ResponseWriter, r *http.Request, create bool) (*Session, bool) {
	b, ok := r.Context().Value(sessionCtxKey{}).(*sessionBinding)
	if !ok {
		return nil, false
	}

	if c, err := r.Cookie(SessionCookieName); err == nil {
		if s, ok := b.manager.Lookup(c.Value); ok {
			return s, true
		}
	}
	if !create {
		return nil, false
	}

	s := b.manager.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     b.path,
		HttpOnly: true,
		Secure:   connector.IsSecure(r),
	})
	return s, true
}
