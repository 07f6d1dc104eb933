package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gateline/gateline/pkg/logger"
	"github.com/gorilla/websocket"
)

// The /ws/events stream pushes saga and order events to storefront clients.
// A client that never sends a subscribe frame gets every event; once it
// subscribes it only receives events for the saga ids it watches.

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	wsOutboxSize            = 32
	wsMaxFrameBytes         = 1 << 20
)

// WebSocketConfig tunes the event stream endpoint.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// EventMessage is the frame pushed to clients.
type EventMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// clientFrame is what clients may send: subscribe/unsubscribe to a saga id,
// given either top-level or inside the payload.
type clientFrame struct {
	Type    string         `json:"type"`
	SagaID  string         `json:"saga_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// wsSession is one connected client. The outbox decouples broadcasting from
// the client's write speed; a session that cannot drain it gets dropped.
type wsSession struct {
	socket  *websocket.Conn
	outbox  chan []byte
	watched map[string]struct{}
	mu      sync.RWMutex
	once    sync.Once
}

func newWSSession(socket *websocket.Conn) *wsSession {
	return &wsSession{
		socket:  socket,
		outbox:  make(chan []byte, wsOutboxSize),
		watched: make(map[string]struct{}),
	}
}

func (s *wsSession) shutdown() {
	s.once.Do(func() {
		close(s.outbox)
		if s.socket != nil {
			_ = s.socket.Close()
		}
	})
}

func (s *wsSession) watch(sagaID string) {
	if sagaID == "" {
		return
	}
	s.mu.Lock()
	s.watched[sagaID] = struct{}{}
	s.mu.Unlock()
}

func (s *wsSession) unwatch(sagaID string) {
	if sagaID == "" {
		return
	}
	s.mu.Lock()
	delete(s.watched, sagaID)
	s.mu.Unlock()
}

// wants reports whether the session should see an event for sagaID. An empty
// watch set means the client wants the firehose.
func (s *wsSession) wants(sagaID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.watched) == 0 {
		return true
	}
	_, ok := s.watched[sagaID]
	return ok
}

// wsHub tracks live sessions and fans events out to them.
type wsHub struct {
	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
	capacity int
}

func newWSHub(capacity int) *wsHub {
	if capacity <= 0 {
		capacity = defaultWSMaxConnections
	}
	return &wsHub{sessions: make(map[*wsSession]struct{}), capacity: capacity}
}

var errWSCapacity = errors.New("websocket connection limit reached")

func (h *wsHub) add(s *wsSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) >= h.capacity {
		return errWSCapacity
	}
	h.sessions[s] = struct{}{}
	return nil
}

func (h *wsHub) remove(s *wsSession) {
	h.mu.Lock()
	_, live := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if live {
		s.shutdown()
	}
}

func (h *wsHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *wsHub) hasRoom() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions) < h.capacity
}

// fanOut delivers one event to every interested session. Delivery never
// blocks: a session with a full outbox is removed instead of stalling the
// saga that emitted the event.
func (h *wsHub) fanOut(event EventMessage) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return err
	}
	sagaID := sagaIDFromPayload(event.Payload)

	h.mu.RLock()
	targets := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.wants(sagaID) {
			continue
		}
		select {
		case s.outbox <- frame:
		default:
			h.remove(s)
		}
	}
	return nil
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.shutdown()
		delete(h.sessions, s)
	}
}

// WebSocketHandler serves GET /ws/events.
type WebSocketHandler struct {
	log          logger.Logger
	hub          *wsHub
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWebSocketHandler builds the event stream handler. Zero config values
// take the package defaults.
func NewWebSocketHandler(log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}

	h := &WebSocketHandler{
		log:          log,
		hub:          newWSHub(cfg.MaxConnections),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	origins := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return wsOriginAllowed(r, origins)
		},
	}
	return h
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !h.hub.hasRoom() {
		http.Error(w, errWSCapacity.Error(), http.StatusServiceUnavailable)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	session := newWSSession(socket)
	if err := h.hub.add(session); err != nil {
		// Lost the race for the last slot between hasRoom and add.
		_ = socket.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(h.writeTimeout),
		)
		_ = socket.Close()
		return
	}

	go h.writeLoop(session)
	h.readLoop(session)
}

// readLoop consumes subscribe/unsubscribe frames until the client goes away.
// The read deadline doubles as the liveness check; pongs extend it.
func (h *WebSocketHandler) readLoop(session *wsSession) {
	defer h.hub.remove(session)

	liveness := h.pingInterval + h.pongTimeout
	session.socket.SetReadLimit(wsMaxFrameBytes)
	_ = session.socket.SetReadDeadline(time.Now().Add(liveness))
	session.socket.SetPongHandler(func(string) error {
		return session.socket.SetReadDeadline(time.Now().Add(liveness))
	})

	for {
		_, frame, err := session.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && h.log != nil {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		h.applyClientFrame(session, frame)
	}
}

// writeLoop drains the outbox and keeps the connection alive with pings.
func (h *WebSocketHandler) writeLoop(session *wsSession) {
	pings := time.NewTicker(h.pingInterval)
	defer func() {
		pings.Stop()
		h.hub.remove(session)
	}()

	for {
		select {
		case frame, open := <-session.outbox:
			if !open {
				_ = session.socket.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout),
				)
				return
			}
			_ = session.socket.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := session.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-pings.C:
			_ = session.socket.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := session.socket.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// applyClientFrame updates the session's watch set. Malformed frames and
// unknown types are ignored; the stream carries on either way.
func (h *WebSocketHandler) applyClientFrame(session *wsSession, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	sagaID := strings.TrimSpace(frame.SagaID)
	if sagaID == "" && frame.Payload != nil {
		if v, ok := frame.Payload["saga_id"].(string); ok {
			sagaID = strings.TrimSpace(v)
		}
	}

	switch strings.ToLower(strings.TrimSpace(frame.Type)) {
	case "subscribe":
		session.watch(sagaID)
	case "unsubscribe":
		session.unwatch(sagaID)
	}
}

// Broadcast pushes an event to every session watching its saga. A zero
// timestamp is stamped here so callers can send bare type plus payload.
func (h *WebSocketHandler) Broadcast(event EventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return h.hub.fanOut(event)
}

// ConnectionCount reports the number of live sessions.
func (h *WebSocketHandler) ConnectionCount() int {
	return h.hub.count()
}

// Close drops every live session, used on server shutdown.
func (h *WebSocketHandler) Close() {
	h.hub.closeAll()
}

func sagaIDFromPayload(payload any) string {
	switch v := payload.(type) {
	case map[string]any:
		if id, ok := v["saga_id"].(string); ok {
			return id
		}
	case map[string]string:
		return v["saga_id"]
	}
	return ""
}

// wsOriginAllowed accepts requests without an Origin header (non-browser
// clients), any configured origin, and same-host browser requests.
func wsOriginAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSpace(a), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
