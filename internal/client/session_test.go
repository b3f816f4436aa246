package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

type testListener struct {
	srv    *httptest.Server
	frames chan Frame
	conns  chan *websocket.Conn
}

// newTestListener starts a WebSocket endpoint that records every frame it
// receives and, when autoAck is set, acknowledges frames that ask for it.
func newTestListener(t *testing.T, autoAck bool) *testListener {
	t.Helper()
	l := &testListener{
		frames: make(chan Frame, 16),
		conns:  make(chan *websocket.Conn, 4),
	}
	l.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		l.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Errorf("listener got bad frame %q: %v", data, err)
				continue
			}
			l.frames <- f
			if autoAck && f.Ack != 0 {
				conn.WriteJSON(Frame{Type: EventAck, Ack: f.Ack})
			}
		}
	}))
	t.Cleanup(l.srv.Close)
	return l
}

func (l *testListener) wsURL() string {
	return "ws" + strings.TrimPrefix(l.srv.URL, "http") + "/ws"
}

func (l *testListener) nextFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-l.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func connect(t *testing.T, s *Session) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if _, ok := s.Connect(ctx)().(WSConnectedMsg); !ok {
		t.Fatal("Connect did not return WSConnectedMsg")
	}
	return ctx
}

func payloadString(t *testing.T, f Frame) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(f.Payload, &s); err != nil {
		t.Fatalf("payload %s is not a JSON string: %v", f.Payload, err)
	}
	return s
}

func TestEmitWhileDisconnected(t *testing.T) {
	s := NewSession("ws://127.0.0.1:1/ws", "")
	if got := s.Status(); got != StatusDisconnected {
		t.Fatalf("initial status = %s, want disconnected", got)
	}
	if err := s.Emit(EventBarcode, "ABC123"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit while disconnected = %v, want ErrNotConnected", err)
	}
	if _, err := s.EmitWithAck(EventBarcode, "ABC123"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("EmitWithAck while disconnected = %v, want ErrNotConnected", err)
	}
}

func TestConnectAndEmit(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "")
	connect(t, s)

	if got := s.Status(); got != StatusConnected {
		t.Fatalf("status = %s, want connected", got)
	}
	if err := s.Emit(EventBarcode, "ABC123"); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	f := l.nextFrame(t)
	if f.Type != EventBarcode {
		t.Errorf("frame type = %q, want %q", f.Type, EventBarcode)
	}
	if got := payloadString(t, f); got != "ABC123" {
		t.Errorf("payload = %q, want ABC123", got)
	}
	if f.Ack != 0 {
		t.Errorf("plain emit carried ack id %d", f.Ack)
	}

	select {
	case extra := <-l.frames:
		t.Errorf("unexpected second frame: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEmitPayloadUntouched(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "")
	connect(t, s)

	for _, v := range []string{"  padded  ", "", "line\nbreak", "ünïcode"} {
		if err := s.Emit(EventBarcode, v); err != nil {
			t.Fatalf("Emit(%q): %v", v, err)
		}
		if got := payloadString(t, l.nextFrame(t)); got != v {
			t.Errorf("payload = %q, want %q", got, v)
		}
	}
}

func TestEmitWithAck(t *testing.T) {
	l := newTestListener(t, true)
	s := NewSession(l.wsURL(), "")
	ctx := connect(t, s)
	go s.ReadLoop(ctx)()

	ack, err := s.EmitWithAck(EventBarcode, "XYZ789")
	if err != nil {
		t.Fatalf("EmitWithAck: %v", err)
	}
	f := l.nextFrame(t)
	if f.Ack == 0 {
		t.Fatal("frame carries no ack id")
	}

	select {
	case <-ack:
	case <-time.After(2 * time.Second):
		t.Fatal("ack channel never closed")
	}
}

func TestForgetAckReleasesUnansweredAcks(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "")
	connect(t, s)

	var acks []<-chan struct{}
	for i := 0; i < 5; i++ {
		ack, err := s.EmitWithAck(EventBarcode, "unanswered")
		if err != nil {
			t.Fatalf("EmitWithAck: %v", err)
		}
		acks = append(acks, ack)
	}
	if got := s.PendingAcks(); got != 5 {
		t.Fatalf("pending = %d, want 5", got)
	}

	for _, ack := range acks {
		s.ForgetAck(ack)
	}
	if got := s.PendingAcks(); got != 0 {
		t.Errorf("pending after ForgetAck = %d, want 0", got)
	}
	if s.Status() != StatusConnected {
		t.Error("ForgetAck disturbed the connection")
	}
}

func TestAckIDsIncrease(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "")
	connect(t, s)

	s.EmitWithAck(EventBarcode, "a")
	s.EmitWithAck(EventBarcode, "b")
	first, second := l.nextFrame(t), l.nextFrame(t)
	if first.Ack == 0 || second.Ack <= first.Ack {
		t.Errorf("ack ids = %d, %d; want increasing non-zero", first.Ack, second.Ack)
	}
}

func TestAuthFrameSentFirst(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "secret")
	connect(t, s)
	s.Emit(EventBarcode, "ABC123")

	auth := l.nextFrame(t)
	if auth.Type != EventAuth || auth.Token != "secret" {
		t.Fatalf("first frame = %+v, want auth with token", auth)
	}
	if f := l.nextFrame(t); f.Type != EventBarcode {
		t.Errorf("second frame type = %q, want barcode", f.Type)
	}
}

func TestStatusConnectingDuringDial(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	s := NewSession("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "")
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan interface{}, 1)
	go func() { done <- s.Connect(ctx)() }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Status() != StatusConnecting {
		if time.Now().After(deadline) {
			t.Fatalf("status = %s while dial is held, want connecting", s.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	select {
	case msg := <-done:
		if _, ok := msg.(WSConnectedMsg); !ok {
			t.Fatalf("Connect returned %T, want WSConnectedMsg", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not finish after the server released the upgrade")
	}
	if got := s.Status(); got != StatusConnected {
		t.Errorf("status after dial = %s, want connected", got)
	}
}

func TestDisconnectDetected(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "")

	var connects, disconnects atomic.Int32
	s.On("connect", func() { connects.Add(1) })
	s.On("disconnect", func() { disconnects.Add(1) })

	ctx := connect(t, s)
	serverConn := <-l.conns

	done := make(chan interface{}, 1)
	go func() { done <- s.ReadLoop(ctx)() }()
	serverConn.Close()

	select {
	case msg := <-done:
		if _, ok := msg.(WSDisconnectedMsg); !ok {
			t.Fatalf("ReadLoop returned %T, want WSDisconnectedMsg", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLoop did not notice the drop")
	}

	if got := s.Status(); got != StatusDisconnected {
		t.Errorf("status = %s, want disconnected", got)
	}
	if err := s.Emit(EventBarcode, "late"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit after drop = %v, want ErrNotConnected", err)
	}
	if connects.Load() != 1 || disconnects.Load() != 1 {
		t.Errorf("handlers fired connect=%d disconnect=%d, want 1/1", connects.Load(), disconnects.Load())
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "")
	ctx := connect(t, s)

	(<-l.conns).Close()
	if _, ok := s.ReadLoop(ctx)().(WSDisconnectedMsg); !ok {
		t.Fatal("expected WSDisconnectedMsg")
	}

	if _, ok := s.Connect(ctx)().(WSConnectedMsg); !ok {
		t.Fatal("reconnect did not succeed")
	}
	if err := s.Emit(EventBarcode, "again"); err != nil {
		t.Fatalf("Emit after reconnect: %v", err)
	}
	if got := payloadString(t, l.nextFrame(t)); got != "again" {
		t.Errorf("payload = %q, want again", got)
	}
}

func TestConnectStopsWhenCancelled(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http") + "/ws"
	dead.Close()

	s := NewSession(url, "", WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if msg := s.Connect(ctx)(); msg != nil {
		t.Fatalf("Connect returned %T after cancel, want nil", msg)
	}
	if got := s.Status(); got == StatusConnected {
		t.Error("status connected after failed dial")
	}
}

func TestConnectGivesUpWhenBackOffStops(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http") + "/ws"
	dead.Close()

	s := NewSession(url, "", WithBackOff(func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}))
	if _, ok := s.Connect(context.Background())().(WSDisconnectedMsg); !ok {
		t.Fatal("expected WSDisconnectedMsg when backoff stops")
	}
}

func TestServerEventSurfaced(t *testing.T) {
	l := newTestListener(t, false)
	s := NewSession(l.wsURL(), "")
	ctx := connect(t, s)
	serverConn := <-l.conns

	serverConn.WriteJSON(Frame{Type: EventError, Payload: json.RawMessage(`{"message":"rate limited"}`)})

	msg, ok := s.ReadLoop(ctx)().(WSEventMsg)
	if !ok {
		t.Fatal("expected WSEventMsg")
	}
	if msg.Frame.Type != EventError {
		t.Errorf("frame type = %q, want error", msg.Frame.Type)
	}
}

func TestDeriveHTTPBase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ws://192.168.1.3:3000/ws", "http://192.168.1.3:3000"},
		{"wss://scans.example.com/ws", "https://scans.example.com"},
		{"::bad", "http://127.0.0.1:3000"},
	}
	for _, tt := range tests {
		if got := DeriveHTTPBase(tt.in); got != tt.want {
			t.Errorf("DeriveHTTPBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
