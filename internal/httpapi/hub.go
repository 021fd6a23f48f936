package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/engine"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 5 * time.Second
	// pingPeriod keeps idle connections alive through proxies.
	pingPeriod = 30 * time.Second
	// sendBuffer is how many messages a slow client may fall behind
	// before it is dropped.
	sendBuffer = 64
)

// FeedMessage is one frame on the event feed.
type FeedMessage struct {
	Kind     string           `json:"kind"`
	Event    *engine.Event    `json:"event,omitempty"`
	Dispatch *dispatch.Notice `json:"dispatch,omitempty"`
}

// Feed message kinds.
const (
	KindEvent    = "event"
	KindDispatch = "dispatch"
)

type subscriber struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
	send chan []byte
	once sync.Once
	done chan struct{}
}

// WriteMessage sends a websocket message guarded by the subscriber's mutex and write deadline.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	if s == nil || s.conn == nil {
		return errors.New("subscriber closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Hub fans engine events and dispatch notices out to websocket clients.
// Broadcasting never blocks: each client has its own buffered queue and
// writer goroutine, and a client whose queue is full is disconnected.
type Hub struct {
	ids      engine.IDGenerator
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]*subscriber
}

// NewHub creates an empty hub.
func NewHub(ids engine.IDGenerator) *Hub {
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	return &Hub{
		ids: ids,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Operator consoles are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[string]*subscriber),
	}
}

// Register subscribes the hub to every engine event.
func (h *Hub) Register(e *engine.Engine) {
	e.HandleAll(h.HandleEvent)
}

// HandleEvent is the engine handler forwarding events to clients.
func (h *Hub) HandleEvent(_ context.Context, ev engine.Event) error {
	return h.Broadcast(FeedMessage{Kind: KindEvent, Event: &ev})
}

// NotifyDispatch forwards a dispatch result to clients. It matches the
// dispatch.WithNotify callback.
func (h *Hub) NotifyDispatch(n dispatch.Notice) {
	if err := h.Broadcast(FeedMessage{Kind: KindDispatch, Dispatch: &n}); err != nil {
		slog.Error("broadcast dispatch notice failed", "dispatch_id", n.DispatchID, "error", err)
	}
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(msg FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.send <- data:
		case <-sub.done:
		default:
			slog.Warn("feed client too slow, disconnecting", "client", sub.id)
			h.remove(sub)
		}
	}
	return nil
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// ServeHTTP upgrades the request and streams feed messages until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		id:   h.ids.Generate(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	slog.Info("feed client connected", "client", sub.id, "remote", r.RemoteAddr)

	go h.writePump(sub)
	h.readPump(sub)
}

// readPump discards client frames and returns when the connection closes.
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.send:
			if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("feed write failed", "client", sub.id, "error", err)
				h.remove(sub)
				return
			}
		case <-ticker.C:
			if err := sub.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(sub)
				return
			}
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub.id]
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.close()
	if ok {
		slog.Info("feed client disconnected", "client", sub.id)
	}
}
