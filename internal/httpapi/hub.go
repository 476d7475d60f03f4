package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	hubBuffer    = 16
	writeTimeout = 5 * time.Second
)

// Message is pushed to every websocket subscriber.
type Message struct {
	Type       string `json:"type"`
	Version    string `json:"version,omitempty"`
	SubtopicID string `json:"subtopicId,omitempty"`
}

// MessageViewRefreshed tells clients to re-fetch the view.
const MessageViewRefreshed = "view_refreshed"

type subscriber struct {
	msgs      chan Message
	closeSlow func()
}

// Hub fans refresh notifications out to websocket clients. A client that
// cannot keep up is disconnected rather than allowed to block the others.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	origins     []string
}

// NewHub creates a hub. originPatterns are passed to the websocket handshake;
// empty means same-origin only.
func NewHub(originPatterns ...string) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		origins:     originPatterns,
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast queues msg for every subscriber without blocking.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subscribers {
		select {
		case s.msgs <- msg:
		default:
			go s.closeSlow()
		}
	}
}

// ServeHTTP upgrades the request and streams messages until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	s := &subscriber{
		msgs: make(chan Message, hubBuffer),
		closeSlow: func() {
			c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		},
	}
	h.add(s)
	defer h.remove(s)

	// Clients only listen; CloseRead handles control frames and cancels ctx on close.
	ctx := c.CloseRead(r.Context())

	for {
		select {
		case msg := <-s.msgs:
			if err := writeWithTimeout(ctx, c, msg); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	slog.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
}

func writeWithTimeout(ctx context.Context, c *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, msg)
}
