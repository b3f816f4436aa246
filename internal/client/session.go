package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
	handshakeTimeout   = 10 * time.Second

	// outboundQueueSize bounds frames waiting for the write pump.
	outboundQueueSize = 64
)

var (
	// ErrNotConnected is returned by Emit while the session has no live
	// connection. The frame is dropped.
	ErrNotConnected = errors.New("not connected")
	// ErrQueueFull is returned when the outbound queue cannot take another
	// frame. The frame is dropped.
	ErrQueueFull = errors.New("outbound queue full")
)

// Session manages the WebSocket connection to the listener. Its Status is
// only ever changed by the session itself.
type Session struct {
	url        string
	token      string
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff

	mu         sync.Mutex
	status     Status
	conn       *websocket.Conn
	out        chan []byte
	pumpCancel context.CancelFunc // stops the write pump of the active conn
	nextAck    uint64
	pending    map[uint64]chan struct{}
	handlers   map[string][]func()
}

// Option customises a Session.
type Option func(*Session)

// WithBackOff replaces the reconnect policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *Session) { s.newBackOff = fn }
}

// NewSession creates a disconnected session for the given WebSocket URL.
func NewSession(url, token string, opts ...Option) *Session {
	s := &Session{
		url:        url,
		token:      token,
		dialer:     &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		newBackOff: defaultBackOff,
		status:     StatusDisconnected,
		pending:    make(map[uint64]chan struct{}),
		handlers:   make(map[string][]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectBaseDelay
	b.MaxInterval = reconnectMaxDelay
	b.MaxElapsedTime = 0 // never give up
	return b
}

// --- Bubble Tea messages ---

// WSConnectedMsg is sent when the WebSocket connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the connection drops.
type WSDisconnectedMsg struct{ Err error }

// WSEventMsg delivers a frame from the listener that is not an ack.
type WSEventMsg struct{ Frame Frame }

// URL returns the endpoint the session dials.
func (s *Session) URL() string {
	return s.url
}

// Status returns the current connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// On registers a handler for "connect" or "disconnect". Handlers run on the
// goroutine that observed the transition and must not block.
func (s *Session) On(event string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
}

func (s *Session) fire(event string) {
	s.mu.Lock()
	hs := append([]func(){}, s.handlers[event]...)
	s.mu.Unlock()
	for _, fn := range hs {
		fn()
	}
}

// Connect returns a Bubble Tea command that dials the listener, retrying
// with backoff until it succeeds or ctx ends. Re-issue it after
// WSDisconnectedMsg to reconnect.
func (s *Session) Connect(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		b := s.newBackOff()
		b.Reset()
		for {
			if ctx.Err() != nil {
				return nil
			}

			s.setStatus(StatusConnecting)
			conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
			if err == nil {
				err = s.authenticate(conn)
			}
			if err != nil {
				s.setStatus(StatusDisconnected)
				delay := b.NextBackOff()
				if delay == backoff.Stop {
					return WSDisconnectedMsg{Err: fmt.Errorf("dial %s: %w", s.url, err)}
				}
				log.Printf("ws dial error: %v (retry in %v)", err, delay)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				continue
			}

			s.attach(ctx, conn)
			log.Printf("ws connected to %s", s.url)
			s.fire("connect")
			return WSConnectedMsg{}
		}
	}
}

// authenticate sends the auth frame if a token is set. No lock needed here
// because the connection isn't shared yet.
func (s *Session) authenticate(conn *websocket.Conn) error {
	if s.token == "" {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Frame{Type: EventAuth, Token: s.token}); err != nil {
		conn.Close()
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

func (s *Session) attach(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	if s.conn != nil && s.conn != conn {
		s.conn.Close()
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	out := make(chan []byte, outboundQueueSize)
	s.conn = conn
	s.out = out
	s.pumpCancel = cancel
	s.status = StatusConnected
	s.mu.Unlock()

	go s.writePump(pumpCtx, conn, out)
}

// detach forgets conn if it is still the active connection. It reports
// whether anything changed.
func (s *Session) detach(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return false
	}
	if s.pumpCancel != nil {
		s.pumpCancel()
		s.pumpCancel = nil
	}
	s.conn = nil
	s.out = nil
	s.status = StatusDisconnected
	// Acks for frames sent on this connection will never arrive.
	s.pending = make(map[uint64]chan struct{})
	s.mu.Unlock()

	conn.Close()
	s.fire("disconnect")
	return true
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		s.status = st
	}
}

// writePump is the only writer on conn. It drains the outbound queue and
// sends periodic pings until ctx is cancelled or a write fails.
func (s *Session) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("ws write error: %v", err)
				// Unblocks ReadLoop, which reports the disconnect.
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// ReadLoop returns a Bubble Tea command that reads frames from the
// connection. Acks are resolved in place; the command returns on the first
// other frame or when the connection drops.
func (s *Session) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: ErrNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if s.detach(conn) {
					log.Printf("ws disconnected: %v", err)
				}
				if ctx.Err() != nil {
					return nil
				}
				return WSDisconnectedMsg{Err: err}
			}

			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			if f.Type == EventAck {
				s.resolveAck(f.Ack)
				continue
			}
			return WSEventMsg{Frame: f}
		}
	}
}

func (s *Session) resolveAck(id uint64) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// ForgetAck stops tracking an ack channel returned by EmitWithAck. Callers
// that give up waiting use it so unanswered acks are not held for the life
// of the connection.
func (s *Session) ForgetAck(ack <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		if (<-chan struct{})(ch) == ack {
			delete(s.pending, id)
			return
		}
	}
}

// PendingAcks returns how many acks are still awaited.
func (s *Session) PendingAcks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Emit queues one frame for event carrying payload as a JSON string. It is
// best effort: while disconnected, or when the queue is full, the frame is
// dropped and the returned error says why. It never blocks.
func (s *Session) Emit(event, payload string) error {
	_, err := s.emit(event, payload, false)
	return err
}

// EmitWithAck is Emit with a remote acknowledgment request. The returned
// channel is closed when the listener acks this frame; it is never closed if
// the connection drops first.
func (s *Session) EmitWithAck(event, payload string) (<-chan struct{}, error) {
	return s.emit(event, payload, true)
}

func (s *Session) emit(event, payload string, wantAck bool) (<-chan struct{}, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.out == nil {
		return nil, ErrNotConnected
	}

	f := Frame{Type: event, Payload: raw}
	var ack chan struct{}
	if wantAck {
		s.nextAck++
		f.Ack = s.nextAck
		ack = make(chan struct{})
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	select {
	case s.out <- data:
	default:
		return nil, ErrQueueFull
	}
	if wantAck {
		s.pending[f.Ack] = ack
	}
	return ack, nil
}

// Close drops the active connection, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.detach(conn)
	return nil
}
