// Package server exposes the inspector over HTTP: a JSON API for the tree,
// a batch ingestion endpoint, Prometheus metrics, a minimal index page and a
// websocket feed streaming subtree membership deltas to connected clients.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/treescope/internal/config"
	"github.com/conneroisu/treescope/internal/errors"
	"github.com/conneroisu/treescope/internal/ingest"
	"github.com/conneroisu/treescope/internal/logging"
	"github.com/conneroisu/treescope/internal/metrics"
	"github.com/conneroisu/treescope/internal/subtree"
	"github.com/conneroisu/treescope/internal/tree"
)

// InspectorServer serves one tree to browsers and API consumers.
type InspectorServer struct {
	config  *config.Config
	log     logging.Logger
	tree    *tree.Tree
	applier *ingest.Applier
	metrics *metrics.Metrics

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *client
	unregister   chan *websocket.Conn
	hubDone      chan struct{}

	mirror       *subtree.Subscription
	shutdownOnce sync.Once
}

// deltaMessage streams one subtree membership change to clients.
type deltaMessage struct {
	Type      string    `json:"type"`
	Added     []tree.ID `json:"added,omitempty"`
	Removed   []tree.ID `json:"removed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// snapshotMessage is the first frame a client receives: the current tree in
// document order.
type snapshotMessage struct {
	Type      string     `json:"type"`
	Nodes     []nodeJSON `json:"nodes"`
	Timestamp time.Time  `json:"timestamp"`
}

// nodeJSON is the API shape of one node.
type nodeJSON struct {
	ID       tree.ID         `json:"id"`
	Parent   *tree.ID        `json:"parent,omitempty"`
	Children []tree.ID       `json:"children,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// New creates an inspector server around an existing tree. logger and m may
// be nil.
func New(cfg *config.Config, logger logging.Logger, t *tree.Tree, m *metrics.Metrics) *InspectorServer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &InspectorServer{
		config:     cfg,
		log:        logger.WithComponent("server"),
		tree:       t,
		applier:    ingest.NewApplier(t, logger, m),
		metrics:    m,
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
		hubDone:    make(chan struct{}),
	}
}

// Tree returns the served tree.
func (s *InspectorServer) Tree() *tree.Tree { return s.tree }

// Applier returns the applier behind POST /api/events, so callers can attach
// a session recorder before Start.
func (s *InspectorServer) Applier() *ingest.Applier { return s.applier }

// Start runs the server until ctx is cancelled or ListenAndServe fails. The
// root subtree subscription feeding the websocket hub is opened here and
// closed again by Shutdown.
func (s *InspectorServer) Start(ctx context.Context) error {
	go s.runWebSocketHub(ctx)

	s.mirror = subtree.Subscribe(s.tree, tree.RootID, s.broadcastDelta,
		subtree.WithDebounce(s.config.Mirror.Debounce))

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.log.Info(ctx, "inspector listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NewNetworkError(errors.ErrCodeServerStart, "inspector server failed", err).
			WithContext("addr", addr)
	}
	return nil
}

// routes builds the HTTP mux. Split out so handler tests can exercise the
// full surface without a listening socket.
func (s *InspectorServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/tree", s.handleTree)
	mux.HandleFunc("/api/node/", s.handleNode)
	mux.HandleFunc("/api/events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// broadcastDelta is the subtree subscription callback: one debounced
// membership change fanned out to every connected client.
func (s *InspectorServer) broadcastDelta(added, removed []tree.ID) {
	msg := deltaMessage{
		Type:      "delta",
		Added:     added,
		Removed:   removed,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error(context.Background(),
			errors.NewInternalError(errors.ErrCodeInternalState, "marshaling delta", err),
			"dropping delta")
		return
	}
	if s.metrics != nil {
		s.metrics.DeltasBroadcast.Inc()
	}
	select {
	case s.broadcast <- data:
	default:
		// Broadcast queue full; clients resynchronize from the next delta.
	}
}

// Shutdown stops the server: the subtree mirror closes first so no delta
// can chase a closing hub, then clients are disconnected and the HTTP server
// drained.
func (s *InspectorServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.log.Info(ctx, "shutting down")

		if s.mirror != nil {
			s.mirror.Close()
		}

		s.clientsMutex.Lock()
		for conn, c := range s.clients {
			close(c.send)
			conn.Close(websocket.StatusNormalClosure, "")
		}
		s.clients = make(map[*websocket.Conn]*client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
