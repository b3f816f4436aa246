// Package listener is the remote endpoint scanners report to. It records
// every barcode event, acknowledges it when asked, and relays it to viewer
// connections.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scanrelay/scanrelay/internal/config"
	"golang.org/x/time/rate"
)

// maxFrameBytes caps a single inbound WebSocket message.
const maxFrameBytes = 64 << 10

type Server struct {
	config         *config.Listener
	store          *Store
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	started        time.Time
	scanners       atomic.Int32
}

func NewServer(cfg *config.Listener, store *Store, broadcaster *Broadcaster) *Server {
	s := &Server{
		config:         cfg,
		store:          store,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.Token,
		started:        time.Now(),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/scans", s.handleScans)
	mux.HandleFunc("/api/health", s.handleHealth)
}

// Handler returns the full route set wrapped in the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	viewer := r.URL.Query().Get("role") == "viewer"
	authed := s.authorize(r)

	// Scanners may authenticate with their first frame instead.
	if viewer && !authed {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	if viewer {
		s.serveViewer(conn, r.RemoteAddr)
		return
	}
	go s.serveScanner(conn, r.RemoteAddr, authed)
}

func (s *Server) serveViewer(conn *websocket.Conn, remote string) {
	log.Printf("WebSocket viewer connected: %s", remote)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket viewer disconnected: %s", remote)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// serveScanner reads frames from one scanner until it disconnects. It is
// the only writer on conn.
func (s *Server) serveScanner(conn *websocket.Conn, remote string, authed bool) {
	s.scanners.Add(1)
	log.Printf("WebSocket scanner connected: %s", remote)
	defer func() {
		s.scanners.Add(-1)
		conn.Close()
		log.Printf("WebSocket scanner disconnected: %s", remote)
	}()

	limiter := rate.NewLimiter(rate.Limit(s.config.Listener.EventsPerSecond), s.config.Listener.Burst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.reply(conn, outFrame{Type: EventError, Payload: ErrorPayload{Message: "malformed frame"}})
			continue
		}

		if !authed {
			if f.Type == EventAuth && s.authToken != "" && f.Token == s.authToken {
				authed = true
				continue
			}
			log.Printf("ws scanner %s failed auth", remote)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
				time.Now().Add(time.Second))
			return
		}

		switch f.Type {
		case EventAuth:
		case EventBarcode:
			s.handleBarcode(conn, remote, f, limiter)
		default:
			s.reply(conn, outFrame{Type: EventError, Payload: ErrorPayload{Message: "unknown event " + f.Type, Ack: f.Ack}})
		}
	}
}

func (s *Server) handleBarcode(conn *websocket.Conn, remote string, f Frame, limiter *rate.Limiter) {
	if !limiter.Allow() {
		s.reply(conn, outFrame{Type: EventError, Payload: ErrorPayload{Message: "rate limited", Ack: f.Ack}})
		return
	}

	var value string
	if err := json.Unmarshal(f.Payload, &value); err != nil {
		s.reply(conn, outFrame{Type: EventError, Payload: ErrorPayload{Message: "barcode payload must be a string", Ack: f.Ack}})
		return
	}

	sc := s.store.Record(value, remote)
	log.Printf("scan %q from %s", value, remote)
	s.broadcaster.Publish(sc)

	if f.Ack != 0 {
		s.reply(conn, outFrame{Type: EventAck, Ack: f.Ack})
	}
}

func (s *Server) reply(conn *websocket.Conn, f outFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("ws reply error: %v", err)
	}
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Recent(limit))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.health())
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Scanrelay-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

// ListenAndServe serves handler until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listener on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
