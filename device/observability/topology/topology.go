// Package topology serves a node's live routing table over a WebSocket
// connection so an operator can watch edges and ETX weights churn during a
// flood/prune cycle. It is an optional, peripheral component per §6 — no
// testable property of the engine depends on it.
//
// Server lifecycle is grounded on
// firestige-Otus/internal/metrics/server.go's Start/Stop pair
// (http.Server behind a context-bounded Shutdown); the connection handling
// itself follows gorilla/websocket's own Upgrader idiom, since nothing in
// the rest of the corpus imports it directly.
package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dronemesh/relaynode/core/proto"
	"github.com/dronemesh/relaynode/core/routing"
)

// DefaultPushInterval is how often a connected client receives a fresh
// snapshot.
const DefaultPushInterval = 2 * time.Second

// Snapshot is the JSON shape pushed to every connected client.
type Snapshot struct {
	Nodes []proto.NodeID `json:"nodes"`
	Edges []edgeJSON     `json:"edges"`
}

type edgeJSON struct {
	From proto.NodeID `json:"from"`
	To   proto.NodeID `json:"to"`
	ETX  float64      `json:"etx"`
}

// Config configures a Server.
type Config struct {
	// Addr is the address the HTTP listener binds to, e.g. ":8080".
	Addr string
	// Path is the WebSocket upgrade path. Defaults to "/topology".
	Path string
	// Routing is the table snapshotted on every push.
	Routing *routing.Table
	// PushInterval overrides DefaultPushInterval if non-zero.
	PushInterval time.Duration
	// Logger falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Server pushes periodic routing.Table snapshots to every connected
// WebSocket client.
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewServer creates a Server. Call Start to begin listening.
func NewServer(cfg Config) *Server {
	if cfg.Path == "" {
		cfg.Path = "/topology"
	}
	if cfg.PushInterval == 0 {
		cfg.PushInterval = DefaultPushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		log:     logger.WithGroup("topology"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start begins listening and pushes snapshots until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleUpgrade)

	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: mux,
	}

	s.log.Info("starting topology server", "addr", s.cfg.Addr, "path", s.cfg.Path)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("topology server error", "error", err)
		}
	}()

	go s.pushLoop(ctx)
	return nil
}

// Stop gracefully shuts the server down and closes every client connection.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("topology server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	s.pushOnce(conn)

	// Drain and discard anything the client sends; we only care about its
	// close frame, which surfaces here as a read error.
	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pushAll()
		}
	}
}

func (s *Server) pushAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.pushOnce(c)
	}
}

func (s *Server) pushOnce(conn *websocket.Conn) {
	snap := s.snapshot()
	if err := conn.WriteJSON(snap); err != nil {
		s.log.Debug("failed to push topology snapshot", "error", err)
		s.removeClient(conn)
	}
}

func (s *Server) snapshot() Snapshot {
	nodes, edges := s.cfg.Routing.Snapshot()
	out := Snapshot{Nodes: nodes, Edges: make([]edgeJSON, len(edges))}
	for i, e := range edges {
		out.Edges[i] = edgeJSON{From: e.From, To: e.To, ETX: e.ETX}
	}
	return out
}

// encodeSnapshot is exposed for tests that want the wire JSON without a
// live connection.
func encodeSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}
