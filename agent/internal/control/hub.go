package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	// pingPeriod must stay below pongWait.
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
	// The control surface is loopback-only; origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the envelope pushed to status subscribers.
type Message struct {
	Event string `json:"event"`
	Data  Status `json:"data"`
}

// Hub pushes the agent status to WebSocket subscribers every interval.
type Hub struct {
	status   func() Status
	interval time.Duration

	mu      sync.Mutex
	clients map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub that samples status every interval.
func NewHub(status func() Status, interval time.Duration) *Hub {
	return &Hub{
		status:   status,
		interval: interval,
		clients:  make(map[*subscriber]struct{}),
	}
}

// Run broadcasts until ctx is cancelled, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the request and streams status until the peer goes
// away. The current status is sent immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := &subscriber{conn: conn, send: make(chan []byte, sendBufSize)}
	h.add(s)
	defer h.remove(s)

	if msg, err := h.encode(); err == nil {
		select {
		case s.send <- msg:
		default:
		}
	}
	go s.writeLoop()
	s.readLoop()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.clients[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast() {
	msg, err := h.encode()
	if err != nil {
		slog.Error("control: encode status", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.send <- msg:
		default:
			// Slow reader; drop it rather than stall everyone else.
			delete(h.clients, s)
			close(s.send)
		}
	}
}

func (h *Hub) encode() ([]byte, error) {
	return json.Marshal(Message{Event: "status", Data: h.status()})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		delete(h.clients, s)
		close(s.send)
	}
}

func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes control frames so pongs and closes are processed.
func (s *subscriber) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
