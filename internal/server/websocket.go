package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/treescope/internal/errors"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to the peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from the peer. Clients only listen.
	maxMessageSize = 512
)

// client is one connected websocket consumer.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *InspectorServer
}

func (s *InspectorServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		rejection := errors.NewNetworkError(errors.ErrCodeOriginRejected, "origin not allowed", nil).
			WithContext("origin", r.Header.Get("Origin"))
		s.log.Warn(r.Context(), rejection, "rejecting websocket client")
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin already validated above
	})
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	// The first frame is a full snapshot; deltas take over from there.
	if snap, err := json.Marshal(s.snapshot()); err == nil {
		c.send <- snap
	}

	// A hub that already stopped will never drain register; turn the
	// client away instead of parking this handler goroutine forever.
	select {
	case s.register <- c:
	case <-s.hubDone:
		conn.Close(websocket.StatusGoingAway, "")
		return
	}

	go c.writePump()
	go c.readPump()
}

// snapshot captures the attached tree in document order.
func (s *InspectorServer) snapshot() snapshotMessage {
	return snapshotMessage{
		Type:      "snapshot",
		Nodes:     s.documentOrder(),
		Timestamp: time.Now(),
	}
}

// checkOrigin validates the request origin. The server's own host and
// localhost forms are always acceptable; anything else must be listed in
// server.allowed_origins.
func (s *InspectorServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	port := s.config.Server.Port
	allowedHosts := []string{
		s.hostPort(s.config.Server.Host, port),
		s.hostPort("localhost", port),
		s.hostPort("127.0.0.1", port),
	}
	for _, allowed := range allowedHosts {
		if originURL.Host == allowed {
			return true
		}
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *InspectorServer) hostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// runWebSocketHub owns the client set: registrations, departures and
// broadcast fan-out all pass through here. hubDone closes when the hub
// exits so blocked register/unregister senders can bail out.
func (s *InspectorServer) runWebSocketHub(ctx context.Context) {
	defer close(s.hubDone)
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-s.register:
			s.clientsMutex.Lock()
			s.clients[c.conn] = c
			count := len(s.clients)
			s.clientsMutex.Unlock()
			if s.metrics != nil {
				s.metrics.ClientsConnected.Set(float64(count))
			}
			s.log.Debug(ctx, "client connected", "total", count)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if c, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(c.send)
				conn.Close(websocket.StatusNormalClosure, "")
			}
			count := len(s.clients)
			s.clientsMutex.Unlock()
			if s.metrics != nil {
				s.metrics.ClientsConnected.Set(float64(count))
			}
			s.log.Debug(ctx, "client disconnected", "total", count)

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var stalled []*websocket.Conn
			for conn, c := range s.clients {
				select {
				case c.send <- message:
				default:
					// Send buffer full; drop the laggard.
					stalled = append(stalled, conn)
				}
			}
			s.clientsMutex.RUnlock()

			for _, conn := range stalled {
				select {
				case s.unregister <- conn:
				default:
				}
			}
		}
	}
}

// readPump drains (and discards) anything the peer sends, and unregisters
// the client when the connection dies.
func (c *client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c.conn:
		case <-c.server.hubDone:
			c.conn.Close(websocket.StatusGoingAway, "")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump pushes queued frames and keepalive pings to the peer.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.server.log.Warn(ctx,
					errors.NewNetworkError(errors.ErrCodeClientWrite, "writing frame", err),
					"dropping client")
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
