package listener

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	scanclient "github.com/scanrelay/scanrelay/internal/client"
	"github.com/scanrelay/scanrelay/internal/config"
)

type testServer struct {
	*Server
	http *httptest.Server
}

func newTestServer(t *testing.T, mutate func(*config.Listener)) *testServer {
	t.Helper()
	cfg := config.DefaultListener()
	if mutate != nil {
		mutate(cfg)
	}
	store := NewStore(cfg.Listener.HistorySize)
	s := NewServer(cfg, store, NewBroadcaster(store, cfg.Listener.BroadcastBuffer))
	ts := &testServer{Server: s, http: httptest.NewServer(s.Handler())}
	t.Cleanup(ts.http.Close)
	return ts
}

func (ts *testServer) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestBarcodeRecordedAndAcked(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.wsURL(""))

	conn.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`"ABC123"`), Ack: 7})

	f := readFrame(t, conn)
	if f.Type != EventAck || f.Ack != 7 {
		t.Fatalf("reply = %+v, want ack 7", f)
	}
	scans := ts.store.Recent(0)
	if len(scans) != 1 || scans[0].Value != "ABC123" {
		t.Errorf("stored scans = %+v", scans)
	}
}

func TestBarcodeWithoutAckGetsNoReply(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.wsURL(""))

	conn.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`"ABC123"`)})
	waitFor(t, "scan recorded", func() bool { return ts.store.Total() == 1 })

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("listener replied to a frame that did not ask for an ack")
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.wsURL(""))

	conn.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`{"not":"a string"}`), Ack: 3})
	f := readFrame(t, conn)
	if f.Type != EventError {
		t.Fatalf("reply type = %q, want error", f.Type)
	}
	var p ErrorPayload
	json.Unmarshal(f.Payload, &p)
	if p.Ack != 3 {
		t.Errorf("error ack = %d, want 3", p.Ack)
	}
	if ts.store.Total() != 0 {
		t.Error("malformed payload was recorded")
	}
}

func TestRateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *config.Listener) {
		c.Listener.EventsPerSecond = 0.001
		c.Listener.Burst = 1
	})
	conn := dial(t, ts.wsURL(""))

	conn.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`"one"`), Ack: 1})
	conn.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`"two"`), Ack: 2})

	if f := readFrame(t, conn); f.Type != EventAck || f.Ack != 1 {
		t.Fatalf("first reply = %+v, want ack 1", f)
	}
	if f := readFrame(t, conn); f.Type != EventError {
		t.Fatalf("second reply = %+v, want rate-limit error", f)
	}
	if ts.store.Total() != 1 {
		t.Errorf("recorded %d scans, want 1", ts.store.Total())
	}
}

func TestScannerAuthFrame(t *testing.T) {
	ts := newTestServer(t, func(c *config.Listener) { c.Server.Token = "tok" })

	good := dial(t, ts.wsURL(""))
	good.WriteJSON(Frame{Type: EventAuth, Token: "tok"})
	good.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`"ok"`), Ack: 1})
	if f := readFrame(t, good); f.Type != EventAck {
		t.Fatalf("authed scanner got %+v, want ack", f)
	}

	bad := dial(t, ts.wsURL(""))
	bad.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`"sneaky"`), Ack: 1})
	bad.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := bad.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("unauthenticated scanner read err = %v, want policy violation close", err)
	}
	if ts.store.Total() != 1 {
		t.Errorf("recorded %d scans, want 1", ts.store.Total())
	}
}

func TestViewerRequiresAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Listener) { c.Server.Token = "tok" })
	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL("role=viewer"), nil)
	if err == nil {
		t.Fatal("viewer connected without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestViewerReceivesScans(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.Record("before", "r")

	viewer := dial(t, ts.wsURL("role=viewer"))
	snap := readFrame(t, viewer)
	if snap.Type != EventSnapshot {
		t.Fatalf("first viewer frame = %q, want snapshot", snap.Type)
	}
	var history []Scan
	json.Unmarshal(snap.Payload, &history)
	if len(history) != 1 || history[0].Value != "before" {
		t.Errorf("snapshot = %+v", history)
	}

	scanner := dial(t, ts.wsURL(""))
	scanner.WriteJSON(Frame{Type: EventBarcode, Payload: json.RawMessage(`"live"`)})

	f := readFrame(t, viewer)
	if f.Type != EventScan {
		t.Fatalf("viewer frame = %q, want scan", f.Type)
	}
	var sc Scan
	json.Unmarshal(f.Payload, &sc)
	if sc.Value != "live" {
		t.Errorf("scan value = %q, want live", sc.Value)
	}
}

func TestScansEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.Record("a", "r")
	ts.store.Record("b", "r")

	c := scanclient.NewHTTPClient(ts.http.URL, "")
	scans, err := c.RecentScans(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(scans) != 1 || scans[0].Value != "b" {
		t.Errorf("scans = %+v", scans)
	}

	resp, err := http.Get(ts.http.URL + "/api/scans?limit=-2")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.Record("a", "r")

	h, err := scanclient.NewHTTPClient(ts.http.URL, "").Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" || h.ScansRecorded != 1 {
		t.Errorf("health = %+v", h)
	}
}

func TestCheckOrigin(t *testing.T) {
	ts := newTestServer(t, func(c *config.Listener) {
		c.Server.AllowedOrigins = []string{"http://dash.local:8080"}
	})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://dash.local:8080", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := ts.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

// TestSessionAgainstListener drives the scanner's transport session against
// a real listener in confirmed-ack mode.
func TestSessionAgainstListener(t *testing.T) {
	ts := newTestServer(t, func(c *config.Listener) { c.Server.Token = "tok" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := scanclient.NewSession(ts.wsURL(""), "tok")
	if _, ok := s.Connect(ctx)().(scanclient.WSConnectedMsg); !ok {
		t.Fatal("session did not connect")
	}
	go s.ReadLoop(ctx)()

	ack, err := s.EmitWithAck(scanclient.EventBarcode, "ABC123")
	if err != nil {
		t.Fatalf("EmitWithAck: %v", err)
	}
	select {
	case <-ack:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never acked")
	}

	scans := ts.store.Recent(0)
	if len(scans) != 1 || scans[0].Value != "ABC123" {
		t.Errorf("stored = %+v", scans)
	}
}
