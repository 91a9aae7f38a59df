// Package realtime maintains the push connections to the clinical
// gateway's event stream. One Manager owns exactly one WebSocket
// connection for its event category and fans every inbound event out to
// all registered subscribers.
//
// The connection is deliberately not reference-counted: it stays open when
// the subscriber count drops to zero so that page navigation in the
// dashboard does not thrash connect/disconnect cycles. It is torn down
// only on session switch, transport failure, or Close.
package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/carebridge/cds-agent/internal/platform/session"
)

const (
	// pingInterval is how often a keepalive ping frame is written while
	// the connection is open.
	pingInterval = 30 * time.Second
	// reconnectDelay is the fixed wait before a reconnect attempt.
	reconnectDelay = 3 * time.Second
	// maxReconnectAttempts caps consecutive failures; after that the
	// manager stays closed until the next Subscribe call.
	maxReconnectAttempts = 5
	// dialTimeout bounds a single connection attempt.
	dialTimeout = 10 * time.Second
)

// State is the lifecycle state of a Manager's connection.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer overrides the production WebSocket dialer.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) { m.dialer = d }
}

// WithPingInterval overrides the keepalive interval.
func WithPingInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pingInterval = d }
}

// WithReconnectDelay overrides the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.reconnectDelay = d }
}

// Manager owns the single connection for one event category.
type Manager struct {
	category string
	wsBase   string
	tokens   session.TokenSource
	dialer   Dialer
	logger   zerolog.Logger

	pingInterval   time.Duration
	reconnectDelay time.Duration

	subs *fanout

	mu        sync.Mutex
	state     State
	conn      Conn
	connDone  chan struct{}
	connToken string
	gen       uint64
	retries   int
	closed    bool
}

// NewManager creates a Manager for one event category. No connection is
// opened until the first Subscribe call.
func NewManager(category, wsBase string, tokens session.TokenSource, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		category:       category,
		wsBase:         wsBase,
		tokens:         tokens,
		dialer:         gorillaDialer{},
		logger:         logger.With().Str("component", "realtime").Str("category", category).Logger(),
		pingInterval:   pingInterval,
		reconnectDelay: reconnectDelay,
		subs:           newFanout(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Subscribe registers a callback set and returns its subscription id. The
// first subscriber triggers the connection; later subscribers share it. A
// Subscribe call also re-arms a manager that gave up after repeated
// reconnect failures.
func (m *Manager) Subscribe(cb Callbacks) string {
	id := m.subs.add(&cb)

	m.mu.Lock()
	m.retries = 0
	needConnect := m.state == StateClosed && !m.closed
	m.mu.Unlock()

	if needConnect {
		m.connect()
	}
	return id
}

// Unsubscribe removes a callback set. The connection is left open even at
// zero subscribers.
func (m *Manager) Unsubscribe(id string) {
	m.subs.remove(id)
}

// SubscriberCount returns the number of registered callback sets.
func (m *Manager) SubscriberCount() int {
	return m.subs.count()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the connection is open.
func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

// Category returns the event category this manager serves.
func (m *Manager) Category() string {
	return m.category
}

// SessionChanged reacts to a session token replacement. An open or
// connecting manager rebuilds its connection under the new token; a closed
// manager with subscribers gets a fresh retry budget and reconnects.
func (m *Manager) SessionChanged() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.retries = 0
	active := m.state != StateClosed || m.subs.count() > 0
	m.mu.Unlock()

	if active {
		m.connect()
	}
}

// Close tears the connection down for process shutdown. Unlike reaching
// zero subscribers, Close is final: no reconnect is scheduled and later
// Subscribe calls will not dial.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.teardownLocked()
	m.mu.Unlock()
}

// connect opens the connection if needed. Already open or connecting under
// the current session token, it is a no-op; under a stale token, the old
// connection is torn down first and a fresh dial starts against the new
// one.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	token := m.tokens.Token()
	if m.state != StateClosed {
		if m.connToken == token {
			m.mu.Unlock()
			return
		}
		m.logger.Info().Msg("session token changed, rebuilding connection")
		m.teardownLocked()
	}

	m.state = StateConnecting
	m.connToken = token
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen, token)
}

// dial opens the transport and hands the connection to the read and
// keepalive loops. The generation check discards a dial whose manager
// moved on while it was in flight (session switch, Close).
func (m *Manager) dial(gen uint64, token string) {
	endpoint := fmt.Sprintf("%s/%s/?token=%s", m.wsBase, m.category, url.QueryEscape(token))

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, err := m.dialer.Dial(ctx, endpoint)
	cancel()

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.state = StateClosed
		m.mu.Unlock()
		m.logger.Warn().Err(err).Msg("dial failed")
		m.subs.notifyError(err, m.logger)
		m.scheduleReconnect()
		return
	}

	m.conn = conn
	m.connDone = make(chan struct{})
	done := m.connDone
	m.state = StateOpen
	m.retries = 0
	m.mu.Unlock()

	m.logger.Info().Msg("connection open")
	m.subs.notifyOpen(m.logger)

	go m.readLoop(conn, gen)
	go m.pingLoop(conn, done)
}

// readLoop reads frames until the connection dies, decoding and fanning
// out each event. Malformed frames are logged and dropped, never fatal.
func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if gen != m.gen {
				// The manager already tore this connection down.
				m.mu.Unlock()
				return
			}
			m.teardownLocked()
			closed := m.closed
			m.mu.Unlock()

			if closed {
				return
			}
			m.logger.Warn().Err(err).Msg("connection lost")
			m.subs.notifyClose(m.logger)
			m.scheduleReconnect()
			return
		}

		evt, err := decodeFrame(data)
		if err != nil {
			m.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if evt == nil {
			continue // keepalive pong
		}
		m.subs.dispatch(evt, m.logger)
	}
}

// pingLoop writes a keepalive frame every pingInterval until the
// connection is torn down.
func (m *Manager) pingLoop(conn Conn, done chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(gorillawebsocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				// The read loop observes the same failure and owns
				// teardown and reconnect.
				return
			}
		}
	}
}

// scheduleReconnect arms one reconnect attempt after the fixed delay, as
// long as subscribers remain and the consecutive-failure budget is not
// exhausted.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed || m.subs.count() == 0 {
		m.mu.Unlock()
		return
	}
	if m.retries >= maxReconnectAttempts {
		m.mu.Unlock()
		m.logger.Error().
			Int("attempts", maxReconnectAttempts).
			Msg("giving up on reconnect until next subscribe")
		return
	}
	m.retries++
	attempt := m.retries
	delay := m.reconnectDelay
	m.mu.Unlock()

	m.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("scheduling reconnect")

	time.AfterFunc(delay, m.connect)
}

// teardownLocked closes the current connection and invalidates every
// goroutine attached to it. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	m.state = StateClosed
	m.gen++
}
