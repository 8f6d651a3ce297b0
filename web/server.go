package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/keyguard/guard"
	"markestedt/keyguard/rules"
	"markestedt/keyguard/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkLoopbackOrigin,
}

// Controller is the control surface served over HTTP
type Controller interface {
	DisableAll(ctx context.Context) (bool, error)
	EnableAll() bool
	Start(ctx context.Context) (bool, error)
	Stop() bool
	SetRule(ctx context.Context, r rules.Rule, blocked bool) error
	Status() guard.Status
}

// Server exposes the controller on a loopback HTTP port
type Server struct {
	ctrl Controller
	db   *storage.DB
	port int
	hub  *Hub
	http *http.Server
}

// NewServer creates a new control server. db may be nil when the journal
// is disabled.
func NewServer(ctrl Controller, db *storage.DB, port int) *Server {
	hub := NewHub()
	go hub.Run()

	s := &Server{
		ctrl: ctrl,
		db:   db,
		port: port,
		hub:  hub,
	}
	s.http = &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", fmt.Sprint(port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/disable-all", s.handleDisableAll)
	mux.HandleFunc("/api/enable-all", s.handleEnableAll)
	mux.HandleFunc("/api/hook/start", s.handleHookStart)
	mux.HandleFunc("/api/hook/stop", s.handleHookStop)
	mux.HandleFunc("/api/rules", s.handleRules)
	mux.HandleFunc("/api/rules/", s.handleRule)
	mux.HandleFunc("/api/journal", s.handleJournal)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	slog.Info("Starting control server", "addr", s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and disconnects websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.http.Shutdown(ctx)
}

// BroadcastStatus pushes a status update to all connected clients
func (s *Server) BroadcastStatus(status guard.Status) {
	s.hub.BroadcastMessage(Message{
		Type: MessageTypeStatus,
		Data: status,
	})
}

// handleWebSocket handles WebSocket connections. The current status is
// queued before the pumps start so watchers see it first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	if data, err := json.Marshal(Message{Type: MessageTypeStatus, Data: s.ctrl.Status()}); err == nil {
		client.send <- data
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// checkLoopbackOrigin accepts non-browser clients and pages served from
// a loopback host.
func checkLoopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
