// Package bridge carries CAN frame batches over WebSocket: Server relays
// broker topics to dashboard clients and Source republishes a remote feed
// onto the local broker.
package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/logger"
)

const (
	// DefaultAddr matches the port the car-side relay listens on.
	DefaultAddr = ":9080"

	defaultSendQueue    = 256
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 5 * time.Second
)

// Server upgrades HTTP requests to WebSocket connections and streams every
// message on its topics to each client as a text frame.
type Server struct {
	broker       broker.Broker
	topics       []string
	logger       logger.Logger
	upgrader     websocket.Upgrader
	sendQueue    int
	pingInterval time.Duration

	mu      sync.Mutex
	clients map[string]*client
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTopics sets the relayed topics. Defaults to can_messages and
// system_stats.
func WithTopics(topics ...string) ServerOption {
	return func(s *Server) {
		s.topics = topics
	}
}

// WithSendQueue sets how many frames may wait for a client before the
// client is dropped.
func WithSendQueue(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.sendQueue = n
		}
	}
}

// WithPingInterval sets the keepalive ping interval.
func WithPingInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// NewServer creates a relay over brk.
func NewServer(brk broker.Broker, log logger.Logger, opts ...ServerOption) *Server {
	s := &Server{
		broker:       brk,
		topics:       []string{contracts.TopicCANMessages, contracts.TopicSystemStats},
		logger:       log,
		sendQueue:    defaultSendQueue,
		pingInterval: defaultPingInterval,
		clients:      make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboards are served from other origins on the pit network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// client is one connected WebSocket peer.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
}

// enqueue queues data without blocking. It reports false when the queue is
// full.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ServeHTTP handles one client for the lifetime of its connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("[Bridge] Upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, s.sendQueue),
		cancel: cancel,
	}

	// Each client gets its own consumer group so every client sees every
	// message.
	for _, topic := range s.topics {
		msgs, err := s.broker.Subscribe(ctx, topic, "bridge-"+c.id)
		if err != nil {
			s.logger.Error("[Bridge] Failed to subscribe client %s to %s: %v", c.id, topic, err)
			conn.Close()
			return
		}
		go s.forward(ctx, c, msgs)
	}

	s.register(c)
	defer s.unregister(c)
	s.logger.Info("[Bridge] Client %s connected from %s", c.id, r.RemoteAddr)

	go s.writeLoop(ctx, c)
	s.readLoop(c)
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("[Bridge] Client %s disconnected. Total: %d", c.id, n)
}

// forward copies broker messages into the client's queue. A client that
// cannot keep up is disconnected rather than slowing the broker.
func (s *Server) forward(ctx context.Context, c *client, msgs <-chan broker.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.cancel()
				return
			}
			if !c.enqueue(msg.Value) {
				s.logger.Error("[Bridge] Client %s too slow, dropping", c.id)
				c.cancel()
				return
			}
		}
	}
}

// writeLoop is the only writer on the connection.
func (s *Server) writeLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("[Bridge] Write to client %s failed: %v", c.id, err)
				c.cancel()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// readLoop drains client frames so control messages are processed. It
// returns when the connection fails or is closed by writeLoop.
func (s *Server) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.cancel()
			return
		}
	}
}
