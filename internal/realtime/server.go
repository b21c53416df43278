// Package realtime exposes a navigation session to a host presentation
// layer over WebSocket and REST. Bus events are pushed to every connected
// client; client messages drive the session coordinator.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lanehud/internal/engine"
	"lanehud/internal/event"
	"lanehud/internal/logging"
	"lanehud/internal/navigation"
	"lanehud/internal/protocol"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	// clientSendBuffer bounds each client's outbound queue.
	clientSendBuffer = 256

	// DefaultRouteTimeout bounds how long a start request waits for a route.
	DefaultRouteTimeout = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // HUD clients connect from the vehicle's local network.
	},
}

// Server manages WebSocket connections and routes messages between clients
// and the navigation coordinator.
type Server struct {
	coord        *navigation.Coordinator
	bus          *event.Bus
	staticDir    string
	routeTimeout time.Duration
	log          *logging.Logger

	// clientsMu also guards replay so a connecting client gets each event
	// exactly once, from replay or from broadcast.
	clients    map[*client]bool
	clientsMu  sync.RWMutex
	replay     *event.RingBuffer
	replaySize int

	subID     string
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithStaticDir serves files from dir at /.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithRouteTimeout bounds how long start requests wait for the engine.
func WithRouteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.routeTimeout = d
		}
	}
}

// WithHistorySize sets how many recent events are replayed to a new client.
func WithHistorySize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.replaySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.log = l.WithComponent("realtime") }
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	mu     sync.Mutex
	closed bool
}

// trySend queues data without blocking. It is safe after the client is gone.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// New creates a realtime server and starts forwarding bus events to
// clients. Call Close to stop.
func New(coord *navigation.Coordinator, bus *event.Bus, opts ...Option) *Server {
	s := &Server{
		coord:        coord,
		bus:          bus,
		routeTimeout: DefaultRouteTimeout,
		clients:      make(map[*client]bool),
		replaySize:   event.DefaultHistorySize,
		pumpDone:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.replay = event.NewRingBuffer(s.replaySize)

	id, ch, history := bus.Subscribe()
	for _, ev := range history {
		s.replay.Write(ev)
	}
	s.subID = id
	go s.pump(ch)
	return s
}

// pump broadcasts every bus event until the subscription is closed.
func (s *Server) pump(ch <-chan event.Event) {
	defer close(s.pumpDone)
	for ev := range ch {
		msg, err := protocol.FromEvent(ev)
		if err != nil {
			s.log.Warn("drop event", "type", string(ev.Type), "error", err)
			continue
		}
		s.broadcast(ev, msg)
	}
}

// Close stops event forwarding and disconnects every client.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.bus.Unsubscribe(s.subID)
		<-s.pumpDone

		s.clientsMu.Lock()
		clients := make([]*client, 0, len(s.clients))
		for c := range s.clients {
			clients = append(clients, c)
		}
		s.clientsMu.Unlock()

		for _, c := range clients {
			c.conn.Close()
		}
	})
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API endpoints.
	mux.HandleFunc("POST /navigation/initialize", s.handleInitialize)
	mux.HandleFunc("POST /navigation/start", s.handleStart)
	mux.HandleFunc("POST /navigation/location", s.handleLocation)
	mux.HandleFunc("POST /navigation/stop", s.handleStop)
	mux.HandleFunc("GET /navigation", s.handleSnapshot)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Static file serving.
	if s.staticDir != "" {
		fileServer := http.FileServer(http.Dir(s.staticDir))
		mux.Handle("/", fileServer)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", "error", err)
		return
	}

	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		server: s,
	}

	// Replay buffered events so a late HUD shows the current state.
	s.clientsMu.Lock()
	for _, ev := range s.replay.ReadAll() {
		msg, err := protocol.FromEvent(ev)
		if err != nil {
			continue
		}
		data, _ := json.Marshal(msg)
		c.trySend(data)
	}
	s.clients[c] = true
	s.clientsMu.Unlock()
	s.log.Debug("client connected", "client_id", c.id)

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	c.close()
	s.log.Debug("client disconnected", "client_id", c.id)
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeNavigationInitialize:
		s.handleWSInitialize(c, msg)
	case protocol.TypeNavigationStart:
		s.handleWSStart(c, msg)
	case protocol.TypeLocationUpdate:
		s.handleWSLocation(msg)
	case protocol.TypeNavigationStop:
		s.coord.StopNavigation()
	}
}

func (s *Server) handleWSInitialize(c *client, msg *protocol.Message) {
	var payload protocol.InitializePayload
	json.Unmarshal(msg.Payload, &payload)

	// Success is reported by the navigation.state event.
	if err := s.coord.Initialize(engine.Credential{
		AccessKeyID:     payload.AccessKeyID,
		AccessKeySecret: payload.AccessKeySecret,
	}); err != nil {
		code, _ := errorCode(err)
		s.sendError(c, code, err.Error())
	}
}

func (s *Server) handleWSStart(c *client, msg *protocol.Message) {
	var payload protocol.StartPayload
	json.Unmarshal(msg.Payload, &payload)

	p, err := s.coord.StartNavigation(waypoint(payload.Origin), waypoint(payload.Destination))
	if err != nil {
		code, _ := errorCode(err)
		s.sendError(c, code, err.Error())
		return
	}

	// The outcome arrives asynchronously; success shows up as a
	// navigation.state event, failure as an error to this client only.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.routeTimeout)
		defer cancel()
		if err := p.Wait(ctx); err != nil {
			s.sendErrorToken(c, protocol.ErrRouting, err.Error(), p.Token())
		}
	}()
}

func (s *Server) handleWSLocation(msg *protocol.Message) {
	var payload protocol.LocationPayload
	json.Unmarshal(msg.Payload, &payload)

	s.coord.UpdateLocation(*payload.Lat, *payload.Lng, payload.Speed, payload.Bearing)
}

// broadcast records ev for replay and sends msg to all connected clients.
func (s *Server) broadcast(ev event.Event, msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	s.replay.Write(ev)

	for c := range s.clients {
		// Client buffer full, skip.
		c.trySend(data)
	}
}

func (s *Server) sendError(c *client, code, message string) {
	s.sendErrorToken(c, code, message, "")
}

func (s *Server) sendErrorToken(c *client, code, message, token string) {
	msg, _ := protocol.NewMessage(protocol.TypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
		Token:   token,
	})
	data, _ := json.Marshal(msg)
	c.trySend(data)
}

func waypoint(c protocol.Coordinate) engine.Waypoint {
	return engine.Waypoint{Latitude: *c.Lat, Longitude: *c.Lng}
}

// errorCode maps a coordinator error to a protocol error code and HTTP status.
func errorCode(err error) (string, int) {
	var initErr *navigation.InitializationError
	var routeErr *navigation.RoutingError
	switch {
	case errors.Is(err, navigation.ErrNotInitialized):
		return protocol.ErrNotInitialized, http.StatusConflict
	case errors.Is(err, navigation.ErrRequestPending):
		return protocol.ErrRequestPending, http.StatusConflict
	case errors.As(err, &initErr):
		return protocol.ErrSDKInit, http.StatusUnprocessableEntity
	case errors.As(err, &routeErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.ErrRouting, http.StatusGatewayTimeout
		}
		return protocol.ErrRouting, http.StatusBadGateway
	default:
		return protocol.ErrInvalidMessage, http.StatusBadRequest
	}
}
