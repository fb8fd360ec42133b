// Package review exposes shepherd's claim verification over MCP so an
// agent host can have its transcript text checked against the
// filesystem before surfacing it to the user.
//
// Work happens inside explicit sessions: a session pins the directory
// under review and optionally carries a pre-change snapshot, so
// modification claims can be judged against recorded file states
// rather than bare existence.
package review

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvalverde/shepherd/internal/claims"
	"go.uber.org/zap"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// newToken is a package-level variable for testability.
var newToken = uuid.NewString

// ErrSessionNotFound is returned for unknown or already-ended tokens.
var ErrSessionNotFound = errors.New("review session not found")

// ErrSessionExpired is returned when a session idled past the timeout.
var ErrSessionExpired = errors.New("review session expired")

// Session is one live review conversation.
type Session struct {
	Token      string
	Root       string
	StartedAt  time.Time
	LastActive time.Time

	// Snapshot is the optional pre-change baseline. Nil until the
	// host calls review_snapshot.
	Snapshot *claims.Snapshot
}

// Manager owns the live session set and expires idle sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	logger   *zap.Logger
}

// NewManager creates a Manager expiring sessions idle longer than
// timeout. A zero timeout disables expiry.
func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		logger:   logger,
	}
}

// Start opens a session rooted at root and returns it with a fresh
// token.
func (m *Manager) Start(root string) *Session {
	now := timeNow()
	s := &Session{
		Token:      newToken(),
		Root:       root,
		StartedAt:  now,
		LastActive: now,
	}

	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()

	m.logger.Info("review session started",
		zap.String("token", s.Token),
		zap.String("root", root))
	return s
}

// Get resolves a token to its session, refreshing its activity clock.
// An idle-expired session is removed and reported as expired.
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(s) {
		delete(m.sessions, token)
		return nil, ErrSessionExpired
	}
	s.LastActive = timeNow()
	return s, nil
}

// End closes a session. Ending an unknown token reports false.
func (m *Manager) End(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[token]; !ok {
		return false
	}
	delete(m.sessions, token)
	return true
}

// Active returns the number of live sessions, sweeping expired ones
// first.
func (m *Manager) Active() int {
	m.sweep()
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes idle-expired sessions and returns how many were
// dropped.
func (m *Manager) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for token, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, token)
			dropped++
		}
	}
	return dropped
}

// expired reports idleness past the timeout. Callers hold m.mu.
func (m *Manager) expired(s *Session) bool {
	return m.timeout > 0 && timeNow().Sub(s.LastActive) > m.timeout
}

// Janitor sweeps expired sessions until stop is closed. Run it in its
// own goroutine.
func (m *Manager) Janitor(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Info("expired review sessions swept", zap.Int("count", n))
			}
		}
	}
}
