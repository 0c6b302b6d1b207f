package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quickbite/backend/internal/hub"
)

const (
	dialAttempts   = 5
	dialRetryDelay = 2 * time.Second
)

// ConnManager owns the one physical push-channel connection shared by all
// controllers in the process. Subscriptions are reference counted; the
// last release closes the connection. A plain "connect if not connected"
// guard would let two controllers tear the channel down underneath each
// other.
type ConnManager struct {
	dialer *websocket.Dialer
	logger *log.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	gen     int
	subs    map[*subscription]struct{}
	writeMu sync.Mutex
}

type subscription struct {
	mgr         *ConnManager
	events      chan hub.Envelope
	reconnected chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

var shared = NewConnManager(nil)

// SharedConns is the process-wide connection manager. Controllers default
// to it; tests construct their own.
func SharedConns() *ConnManager { return shared }

func NewConnManager(logger *log.Logger) *ConnManager {
	if logger == nil {
		logger = log.Default()
	}
	return &ConnManager{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
}

// Acquire registers a subscriber, dialing the channel if this is the
// first one. Dialing is bounded: a handful of attempts with a fixed
// delay, then the caller falls back to pull-only mode.
func (m *ConnManager) Acquire(wsBaseURL, credential string) (*subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		conn, err := m.dial(wsBaseURL, credential)
		if err != nil {
			return nil, err
		}
		m.conn = conn
		m.gen++
		go m.readLoop(conn, m.gen, wsBaseURL, credential)
	}

	sub := &subscription{
		mgr:         m,
		events:      make(chan hub.Envelope, 16),
		reconnected: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
	m.subs[sub] = struct{}{}
	return sub, nil
}

func (m *ConnManager) dial(wsBaseURL, credential string) (*websocket.Conn, error) {
	endpoint := wsBaseURL + "/ws?token=" + url.QueryEscape(credential)

	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, _, err := m.dialer.Dial(endpoint, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		m.logger.Printf("push channel dial attempt %d/%d failed: %v", attempt, dialAttempts, err)
		if attempt < dialAttempts {
			time.Sleep(dialRetryDelay)
		}
	}
	return nil, fmt.Errorf("push channel unavailable after %d attempts: %w", dialAttempts, lastErr)
}

func (m *ConnManager) readLoop(conn *websocket.Conn, gen int, wsBaseURL, credential string) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleReadFailure(conn, gen, wsBaseURL, credential)
			return
		}

		var env hub.Envelope
		if unmarshalErr := json.Unmarshal(message, &env); unmarshalErr != nil {
			m.logger.Printf("push channel: dropping malformed event: %v", unmarshalErr)
			continue
		}

		m.mu.Lock()
		for sub := range m.subs {
			select {
			case sub.events <- env:
			default:
				// Subscriber is not draining; drop rather than stall the loop.
			}
		}
		m.mu.Unlock()
	}
}

// handleReadFailure redials once (with the usual bounded attempts) and, if
// that fails, shuts the channel down. Subscribers learn about it through
// their closed signal and degrade to pull-only behavior.
func (m *ConnManager) handleReadFailure(conn *websocket.Conn, gen int, wsBaseURL, credential string) {
	_ = conn.Close()

	m.mu.Lock()
	if m.gen != gen || len(m.subs) == 0 {
		// Released or superseded while we were reading; nothing to restore.
		if m.gen == gen {
			m.conn = nil
		}
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	reconn, err := m.dial(wsBaseURL, credential)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil || len(m.subs) == 0 {
		if reconn != nil {
			_ = reconn.Close()
		}
		m.logger.Printf("push channel lost, continuing in pull-only mode")
		for sub := range m.subs {
			sub.markClosed()
		}
		return
	}
	m.conn = reconn
	m.gen++
	go m.readLoop(reconn, m.gen, wsBaseURL, credential)

	// The server sees the redialed socket as a brand-new client with no
	// room state; subscribers must re-pull and re-join.
	for sub := range m.subs {
		select {
		case sub.reconnected <- struct{}{}:
		default:
		}
	}
}

// Send writes one JSON message to the shared connection. Writes are
// serialized; gorilla connections allow only one concurrent writer.
func (m *ConnManager) Send(v interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("push channel not connected")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (m *ConnManager) release(sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[sub]; !ok {
		return
	}
	delete(m.subs, sub)
	sub.markClosed()

	if len(m.subs) == 0 && m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
		m.gen++
	}
}

// Events delivers push-channel envelopes until the subscription closes.
func (s *subscription) Events() <-chan hub.Envelope { return s.events }

// Reconnected fires after the channel was lost and successfully redialed.
// Room membership does not survive a redial.
func (s *subscription) Reconnected() <-chan struct{} { return s.reconnected }

// Closed is signalled when the channel is lost or the subscription released.
func (s *subscription) Closed() <-chan struct{} { return s.closed }

// Release is safe to call more than once.
func (s *subscription) Release() { s.mgr.release(s) }

func (s *subscription) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}
