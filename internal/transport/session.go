// Package transport owns the persistent WebSocket connection to the agent
// server. It hides reconnection from callers: a dropped connection is
// replaced after a fixed delay, indefinitely, while the client identity and
// the registered callbacks stay the same.
package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tetherlabs/tether/internal/logging"
)

// DefaultReconnectDelay is the pause between losing a connection and the
// next (single) reconnect attempt. There is deliberately no backoff growth
// and no retry ceiling; this is a single-operator tool.
const DefaultReconnectDelay = 3 * time.Second

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// ErrNotConnected is returned by Send while the session is not open.
// Callers gate sends on connectivity instead of buffering; the session never
// queues frames.
var ErrNotConnected = errors.New("session not connected")

// State is the connection state of a Session.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks receives session signals. All callbacks are invoked from session
// goroutines; OnFrame is always called from a single goroutine in frame
// arrival order.
type Callbacks struct {
	// OnConnected fires after a connection (or reconnection) is established.
	OnConnected func()
	// OnDisconnected fires after the connection is lost or fails to open.
	OnDisconnected func(reason string)
	// OnFrame delivers one raw inbound text frame.
	OnFrame func(data []byte)
	// OnError surfaces transport-level errors. An error does not itself
	// change connection state; the close sequence is authoritative.
	OnError func(err error)
}

// Config holds the session parameters.
type Config struct {
	// ServerURL is the base URL of the agent server (http, https, ws or wss
	// scheme). The WebSocket scheme mirrors the security of this URL.
	ServerURL string
	// Identity is the stable per-process client identity token appended to
	// the connection path.
	Identity string
	// ReconnectDelay is the fixed pause before a reconnect attempt.
	// Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration
}

// Session is one logical connection to the agent server for a stable client
// identity. The underlying *websocket.Conn is discarded and rebuilt on every
// reconnect; the Session value itself lives as long as the process.
type Session struct {
	url      string
	identity string
	delay    time.Duration
	cb       Callbacks
	log      zerolog.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	gen     uint64 // bumped per dial; stale read loops check it before acting
	retry   *time.Timer
	closed  bool // deliberate Close; suppresses reconnects
	writeMu sync.Mutex
}

// NewSession builds a session for the given identity. Callbacks must be set
// before Open; they are not synchronized against it.
func NewSession(cfg Config, cb Callbacks) (*Session, error) {
	addr, err := connectionURL(cfg.ServerURL, cfg.Identity)
	if err != nil {
		return nil, err
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Session{
		url:      addr,
		identity: cfg.Identity,
		delay:    delay,
		cb:       cb,
		state:    StateClosed,
		log:      logging.WithComponent("transport"),
	}, nil
}

// connectionURL derives the WebSocket address <ws|wss>://<host>/ws/<identity>
// from the configured server URL. The secure variant is used iff the server
// URL itself is secure.
func connectionURL(serverURL, identity string) (string, error) {
	if identity == "" {
		return "", errors.New("empty client identity")
	}
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "ws"
	case "wss", "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL %q has no host", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + identity
	return u.String(), nil
}

// URL returns the derived connection address.
func (s *Session) URL() string {
	return s.url
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open establishes a new connection, tearing down any previous one first.
// A failed attempt reports the error, signals a disconnect, and schedules
// the next attempt; Open itself returns the dial error for callers that
// want it.
func (s *Session) Open() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	s.cancelRetryLocked()
	s.dropConnLocked()
	s.state = StateConnecting
	gen := s.gen + 1
	s.gen = gen
	s.mu.Unlock()

	s.log.Debug().Str("url", s.url).Msg("dialing")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.Dial(s.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		err = fmt.Errorf("dial %s: %w", s.url, err)
		s.emitError(err)
		s.handleDrop(gen, err.Error())
		return err
	}

	s.mu.Lock()
	if s.closed {
		// Closed while dialing; discard the fresh connection.
		s.mu.Unlock()
		_ = conn.Close()
		return errors.New("session closed")
	}
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()

	s.log.Info().Str("url", s.url).Msg("connected")
	if s.cb.OnConnected != nil {
		s.cb.OnConnected()
	}

	go s.readLoop(conn, gen)
	return nil
}

// Send transmits one text frame. It fails with ErrNotConnected unless the
// session is open.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	// gorilla/websocket does not allow concurrent writers.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Close tears the session down for good. No reconnect is scheduled and any
// pending reconnect timer is cancelled. Closing an already-closed session is
// a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelRetryLocked()
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	return nil
}

// readLoop delivers inbound frames in arrival order until the connection
// drops. It runs once per dialled connection.
func (s *Session) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.deliberatelyClosed() && !isNormalClose(err) {
				s.emitError(fmt.Errorf("read frame: %w", err))
			}
			s.handleDrop(gen, err.Error())
			return
		}
		if s.cb.OnFrame != nil {
			s.cb.OnFrame(data)
		}
	}
}

// handleDrop transitions to closed, signals the disconnect, and schedules
// exactly one reconnect attempt. Stale generations (a newer dial already
// happened) and deliberate closes are ignored.
func (s *Session) handleDrop(gen uint64, reason string) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.dropConnLocked()
	s.state = StateClosed
	s.cancelRetryLocked()
	s.retry = time.AfterFunc(s.delay, func() {
		_ = s.Open()
	})
	s.mu.Unlock()

	s.log.Warn().Str("reason", reason).Dur("retryIn", s.delay).Msg("disconnected")
	if s.cb.OnDisconnected != nil {
		s.cb.OnDisconnected(reason)
	}
}

func (s *Session) deliberatelyClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) dropConnLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) cancelRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Session) emitError(err error) {
	s.log.Error().Err(err).Msg("transport error")
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
