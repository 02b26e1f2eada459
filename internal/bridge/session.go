package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/protocol"
)

const (
	defaultAuthWindow = 10 * time.Second

	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 30 * time.Second

	// Download responses carry whole files as base64, so the read limit has
	// to clear the 50MB binary ceiling with JSON overhead.
	maxMessageSize = 80 << 20
)

// SessionState is the lifecycle state of an agent connection.
type SessionState string

const (
	StateAwaitingAuth SessionState = "awaiting_auth"
	StateConnected    SessionState = "connected"
	StateClosed       SessionState = "closed"
)

// Session owns one physical agent connection. Writes are serialized through
// a mutex; interleaving of application-level requests happens at the
// message-id layer, not at the transport layer. A closed session cannot be
// reused; a new connection must re-run the handshake.
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu    sync.RWMutex
	state SessionState

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn) *Session {
	return &Session{
		conn:  conn,
		state: StateAwaitingAuth,
		done:  make(chan struct{}),
	}
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// writeJSON sends one frame, serialized against concurrent senders.
func (s *Session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// close transitions to Closed and tears down the connection. Safe to call
// more than once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)
		s.conn.Close()
	})
}

// authenticate runs the handshake: within the auth window, exactly one
// frame carrying the shared secret must arrive. Anything else fails with
// Unauthorized and no further messages are processed.
func (s *Session) authenticate(secret string, window time.Duration) error {
	s.conn.SetReadDeadline(time.Now().Add(window))

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return fault.New(fault.Unauthorized, "no handshake received: %v", err)
	}

	var msg protocol.Auth
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != protocol.TypeAuth {
		return fault.New(fault.Unauthorized, "malformed handshake")
	}
	if secret == "" || msg.Secret != secret {
		return fault.New(fault.Unauthorized, "secret mismatch")
	}

	s.setState(StateConnected)
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	return nil
}

// rejectUnauthorized closes the connection with an unauthorized close code.
func (s *Session) rejectUnauthorized() {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.close()
}
