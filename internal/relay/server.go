// Package relay is the WebSocket broker: it assigns identities, routes
// session requests between them and relays session frames.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/joebot/peerchat/internal/broker"
)

// Options configures a Server.
type Options struct {
	MaxMessageBytes int64
	PingInterval    time.Duration
}

// Server is the relay. The zero value is not usable; call New.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[string]*client
	links map[string]*link
}

// link is one session between two registered clients.
type link struct {
	initiator *client
	target    *client
	open      bool
}

func (l *link) other(c *client) *client {
	switch c {
	case l.initiator:
		return l.target
	case l.target:
		return l.initiator
	}
	return nil
}

// New creates a relay.
func New(opts Options) *Server {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 << 10
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		peers: make(map[string]*client),
		links: make(map[string]*link),
	}
}

// Routes returns the relay's HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/peerjs", s.handleWebSocket)
	r.Get("/peerjs/id", s.handleNewID)
	r.Get("/peerjs/peers", s.handlePeers)
	return r
}

// ListenAndServe serves the relay on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relay listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Shutdown leaves upgraded connections alone.
		s.DisconnectAll()
		if err != nil {
			return fmt.Errorf("relay shutdown: %w", err)
		}
		return nil
	}
}

// Peers returns the registered identities, sorted.
func (s *Server) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisconnectAll drops every registered client. New clients can still
// connect afterwards.
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.peers))
	for _, c := range s.peers {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
	if len(clients) > 0 {
		slog.Info("Relay dropped clients", "count", len(clients))
	}
}

func (s *Server) handleNewID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(uuid.NewString()))
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Peers())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(s, ws)
	go c.writePump()
	c.readPump()
}

func (s *Server) dispatch(c *client, f broker.Frame) {
	if c.id == "" && f.Type != broker.FrameRegister {
		c.fail("", broker.Errorf(broker.ErrServer, "register before %s", f.Type))
		return
	}

	switch f.Type {
	case broker.FrameRegister:
		s.register(c, f.ID)
	case broker.FrameConnect:
		s.connect(c, f)
	case broker.FrameAccept:
		s.accept(c, f.Conn)
	case broker.FrameData:
		s.relay(c, f)
	case broker.FrameClose:
		s.closeLink(c, f.Conn)
	default:
		slog.Debug("Ignoring client frame", "peer", c.id, "type", f.Type)
	}
}

func (s *Server) register(c *client, requested string) {
	if c.id != "" {
		c.deliver(broker.ErrorFrame("", broker.Errorf(broker.ErrServer, "already registered as %s", c.id)))
		return
	}

	id := requested
	if id == "" {
		id = uuid.NewString()
	}
	if !broker.ValidID(id) {
		c.fail("", broker.Errorf(broker.ErrInvalidID, "ID %q is invalid", id))
		return
	}

	s.mu.Lock()
	if _, taken := s.peers[id]; taken {
		s.mu.Unlock()
		c.fail("", broker.Errorf(broker.ErrUnavailableID, "ID %q is taken", id))
		return
	}
	s.peers[id] = c
	c.id = id
	s.mu.Unlock()

	slog.Info("Peer registered", "peer", id)
	c.deliver(broker.Frame{Type: broker.FrameOpen, ID: id})
}

func (s *Server) connect(c *client, f broker.Frame) {
	if f.Conn == "" {
		c.deliver(broker.ErrorFrame("", broker.Errorf(broker.ErrServer, "connect without conn id")))
		return
	}

	s.mu.Lock()
	if _, dup := s.links[f.Conn]; dup {
		s.mu.Unlock()
		c.deliver(broker.ErrorFrame(f.Conn, broker.Errorf(broker.ErrServer, "conn %s already exists", f.Conn)))
		return
	}
	target := s.peers[f.To]
	if target == nil {
		s.mu.Unlock()
		c.deliver(broker.ErrorFrame(f.Conn, broker.Errorf(broker.ErrPeerUnavailable, "could not connect to peer %s", f.To)))
		return
	}
	s.links[f.Conn] = &link{initiator: c, target: target}
	s.mu.Unlock()

	slog.Debug("Session requested", "from", c.id, "to", f.To, "conn", f.Conn)
	target.deliver(broker.Frame{Type: broker.FrameConnection, From: c.id, Conn: f.Conn})
}

func (s *Server) accept(c *client, conn string) {
	s.mu.Lock()
	l := s.links[conn]
	if l == nil || l.target != c || l.open {
		s.mu.Unlock()
		return
	}
	l.open = true
	s.mu.Unlock()

	opened := broker.Frame{Type: broker.FrameOpened, Conn: conn}
	l.initiator.deliver(opened)
	l.target.deliver(opened)
}

func (s *Server) relay(c *client, f broker.Frame) {
	s.mu.Lock()
	l := s.links[f.Conn]
	var to *client
	if l != nil && l.open {
		to = l.other(c)
	}
	s.mu.Unlock()

	if to == nil {
		c.deliver(broker.ErrorFrame(f.Conn, broker.Errorf(broker.ErrNotOpen, "conn %s is not open", f.Conn)))
		return
	}
	to.deliver(broker.Frame{Type: broker.FrameData, Conn: f.Conn, Payload: f.Payload})
}

func (s *Server) closeLink(c *client, conn string) {
	s.mu.Lock()
	l := s.links[conn]
	var to *client
	if l != nil {
		to = l.other(c)
	}
	if to != nil {
		delete(s.links, conn)
	}
	s.mu.Unlock()

	if to != nil {
		to.deliver(broker.Frame{Type: broker.FrameClose, Conn: conn})
	}
}

// drop forgets a disconnected client and closes every session it was in.
func (s *Server) drop(c *client) {
	type notice struct {
		to   *client
		conn string
	}
	var notices []notice

	s.mu.Lock()
	if c.id != "" && s.peers[c.id] == c {
		delete(s.peers, c.id)
	}
	for id, l := range s.links {
		if to := l.other(c); to != nil {
			delete(s.links, id)
			if to != c {
				notices = append(notices, notice{to, id})
			}
		}
	}
	s.mu.Unlock()

	for _, n := range notices {
		n.to.deliver(broker.Frame{Type: broker.FrameClose, Conn: n.conn})
	}
	if c.id != "" {
		slog.Info("Peer left", "peer", c.id)
	}
}
