// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package remote is the ground station channel: a websocket endpoint that
// accepts the five governor events and pushes telemetry snapshots.
//
// Events are queued for the control loop; nothing here touches flight
// state directly.
package remote

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/kestrel/pkg/motion"
	"github.com/Thermoquad/kestrel/pkg/telemetry"
)

// Config configures the server
type Config struct {
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Username  string `yaml:"username"` // empty disables authentication
	Password  string `yaml:"password"`
	QueueSize int    `yaml:"queue_size"`
}

// DefaultConfig listens on all interfaces at /control
func DefaultConfig() Config {
	return Config{
		Listen:    ":8080",
		Path:      "/control",
		QueueSize: 32,
	}
}

const (
	clientSendQueue = 16
	writeTimeout    = time.Second
	// Safety-critical events wait this long for room in the queue
	criticalEnqueueTimeout = time.Second
)

// Reply is the JSON text acknowledgement sent for every event
type Reply struct {
	OK    bool   `json:"ok"`
	Event string `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}

// Server accepts remote events and broadcasts telemetry
type Server struct {
	cfg      Config
	logger   *slog.Logger
	events   chan motion.Event
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer creates a server. Call Handler or ListenAndServe to expose it.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		events: make(chan motion.Event, cfg.QueueSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// Events returns the queue drained by the control loop
func (s *Server) Events() <-chan motion.Event {
	return s.events
}

// Handler returns the HTTP handler serving the control endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleControl)
	return mux
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.logger.Info("remote channel listening", "addr", ln.Addr().String(), "path", s.cfg.Path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("remote channel: %w", err)
	}
	return nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) == 1
	return userOK && passOK
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache")
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="kestrel"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: ws, send: make(chan []byte, clientSendQueue)}
	s.register(c)
	defer s.unregister(c)

	go s.writeLoop(c)

	s.logger.Info("ground station connected", "remote", r.RemoteAddr)
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			s.logger.Info("ground station disconnected", "remote", r.RemoteAddr, "error", err)
			return
		}
		ev, err := DecodeEvent(messageType, data)
		if err != nil {
			s.logger.Warn("rejected remote event", "remote", r.RemoteAddr, "error", err)
			s.reply(c, Reply{Error: err.Error()})
			continue
		}
		if err := s.enqueue(r.Context(), ev); err != nil {
			s.logger.Error("dropped remote event", "event", ev.String(), "error", err)
			s.reply(c, Reply{Event: ev.Kind.String(), Error: err.Error()})
			continue
		}
		s.reply(c, Reply{OK: true, Event: ev.Kind.String()})
	}
}

// enqueue hands an event to the control loop. Kill and shutdown wait for
// room; other events are dropped when the queue is full.
func (s *Server) enqueue(ctx context.Context, ev motion.Event) error {
	select {
	case s.events <- ev:
		return nil
	default:
	}
	if ev.Kind != motion.EventKill && ev.Kind != motion.EventShutdown {
		return errors.New("event queue full")
	}
	timer := time.NewTimer(criticalEnqueueTimeout)
	defer timer.Stop()
	select {
	case s.events <- ev:
		return nil
	case <-timer.C:
		return errors.New("event queue full")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) reply(c *client, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		s.sendLocked(c, websocket.TextMessage, data)
	}
}

// sendLocked queues a frame tagged with its websocket type in the first
// byte. s.mu must be held so the channel cannot be closed underneath.
func (s *Server) sendLocked(c *client, messageType int, data []byte) {
	frame := make([]byte, 1+len(data))
	frame[0] = byte(messageType)
	copy(frame[1:], data)
	select {
	case c.send <- frame:
	default:
		// Slow client; it will catch up with the next snapshot
	}
}

func (s *Server) writeLoop(c *client) {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(int(frame[0]), frame[1:]); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	c.conn.Close()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// Clients returns the number of connected ground stations
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish broadcasts a snapshot to every connected client. It never blocks.
func (s *Server) Publish(snap telemetry.Snapshot) error {
	data, err := telemetry.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.sendLocked(c, websocket.BinaryMessage, data)
	}
	return nil
}
