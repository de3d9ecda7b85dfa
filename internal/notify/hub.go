package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Conn is the push side of a subscriber connection.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Publisher delivers messages to subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg Message, recipients []string) int
	Broadcast(ctx context.Context, msg Message) int
}

// Hub tracks online connections per user and fans messages out to them.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]Conn

	seenMu      sync.Mutex
	seen        map[string]time.Time
	dedupWindow time.Duration

	writeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a hub. Messages whose ID was already sent within
// dedupWindow are dropped.
func NewHub(dedupWindow time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active:       make(map[string]map[string]Conn),
		seen:         make(map[string]time.Time),
		dedupWindow:  dedupWindow,
		writeTimeout: 5 * time.Second,
		now:          time.Now,
		logger:       logger,
	}
}

// Register adds a connection. A previous connection for the same user and
// connID is closed and replaced.
func (h *Hub) Register(userID, connID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]Conn)
	}
	if existing, exists := h.active[userID][connID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	h.active[userID][connID] = conn
	h.logger.Info("Feed subscriber registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes conn if it is still the current one for userID/connID.
func (h *Hub) Unregister(userID, connID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[userID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(h.active, userID)
			}
			h.logger.Info("Feed subscriber unregistered", "user_id", userID, "conn_id", connID)
		}
	}
}

// Online reports whether userID has at least one connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID]) > 0
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.active {
		n += len(conns)
	}
	return n
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.active {
		for _, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(h.active, userID)
	}
}

// Publish sends msg to every online connection of the recipients and
// returns the number of successful writes. Offline recipients are skipped.
func (h *Hub) Publish(ctx context.Context, msg Message, recipients []string) int {
	if h.duplicate(msg.ID) {
		h.logger.Debug("Dropping duplicate message", "message_id", msg.ID)
		return 0
	}

	targets := make(map[string][]Conn, len(recipients))
	h.mu.RLock()
	for _, userID := range recipients {
		if _, done := targets[userID]; done {
			continue
		}
		for _, conn := range h.active[userID] {
			targets[userID] = append(targets[userID], conn)
		}
	}
	h.mu.RUnlock()

	return h.deliver(ctx, msg, targets)
}

// Broadcast sends msg to every online connection.
func (h *Hub) Broadcast(ctx context.Context, msg Message) int {
	if h.duplicate(msg.ID) {
		h.logger.Debug("Dropping duplicate message", "message_id", msg.ID)
		return 0
	}

	h.mu.RLock()
	targets := make(map[string][]Conn, len(h.active))
	for userID, conns := range h.active {
		for _, conn := range conns {
			targets[userID] = append(targets[userID], conn)
		}
	}
	h.mu.RUnlock()

	return h.deliver(ctx, msg, targets)
}

func (h *Hub) deliver(ctx context.Context, msg Message, targets map[string][]Conn) int {
	if len(targets) == 0 {
		return 0
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode message", "message_id", msg.ID, "error", err)
		return 0
	}

	sent := 0
	for userID, conns := range targets {
		for _, conn := range conns {
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Warn("Failed to deliver message",
					"user_id", userID, "message_id", msg.ID, "kind", msg.Kind, "error", err)
				continue
			}
			sent++
		}
	}
	return sent
}

// duplicate records id and reports whether it was already seen inside the window.
func (h *Hub) duplicate(id string) bool {
	if id == "" || h.dedupWindow <= 0 {
		return false
	}
	now := h.now()

	h.seenMu.Lock()
	defer h.seenMu.Unlock()
	for k, at := range h.seen {
		if now.Sub(at) >= h.dedupWindow {
			delete(h.seen, k)
		}
	}
	if _, ok := h.seen[id]; ok {
		return true
	}
	h.seen[id] = now
	return false
}

// StartHeartbeat broadcasts a HEARTBEAT every interval until ctx is done.
func (h *Hub) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.Broadcast(ctx, NewHeartbeat()); n > 0 {
					h.logger.Debug("Heartbeat sent", "connections", n)
				}
			}
		}
	}()
}
