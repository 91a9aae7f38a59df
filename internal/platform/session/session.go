// Package session holds the process-wide bearer token used by every
// connection to the clinical gateway. The dashboard shell pushes a new token
// here on login, refresh, or account switch; interested components register
// a watcher and rebuild their connections when the token changes.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenSource provides the current session token.
type TokenSource interface {
	Token() string
}

// Manager is a thread-safe holder for the active session token.
type Manager struct {
	mu       sync.RWMutex
	token    string
	watchers map[string]func(token string)
	logger   zerolog.Logger
}

// NewManager creates a Manager seeded with an initial token (may be empty).
func NewManager(initial string, logger zerolog.Logger) *Manager {
	return &Manager{
		token:    initial,
		watchers: make(map[string]func(string)),
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

// Token returns the current session token.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SetToken replaces the active token and notifies all watchers. Setting the
// same token again is a no-op so repeated refresh responses don't churn
// connections.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	if token == m.token {
		m.mu.Unlock()
		return
	}
	m.token = token

	fns := make([]func(string), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	evt := m.logger.Info()
	if exp, ok := Expiry(token); ok {
		evt = evt.Time("expires_at", exp)
	}
	evt.Msg("session token replaced")

	for _, fn := range fns {
		fn(token)
	}
}

// Watch registers a callback invoked with the new token on every change.
// The returned cancel function removes the watcher.
func (m *Manager) Watch(fn func(token string)) (cancel func()) {
	id := uuid.New().String()
	m.mu.Lock()
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Expiry extracts the expiration claim from a JWT without verifying its
// signature. Token issuance and validation belong to the gateway; this is
// used only for logging and for flagging auth-expired request failures.
func Expiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
