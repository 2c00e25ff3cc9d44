package ws

import (
	"encoding/json"
	"sync"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/gorilla/websocket"

	"github.com/Vovarama1992/transcriber/internal/metrics"
)

// Hub is the set of open stream sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	log     *logger.ZapLogger
	metrics *metrics.Metrics
}

func NewHub(log *logger.ZapLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		log:      log,
		metrics:  m,
	}
}

// Register adds the session. After Shutdown it refuses and returns false.
func (h *Hub) Register(s *Session) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.log.Log(logger.LogEntry{
			Level:   "info",
			Message: "[hub] register after shutdown",
			Fields:  map[string]any{"session": s.ID},
		})
		return false
	}
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()

	h.metrics.SessionOpened()
	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[hub] register",
		Fields:  map[string]any{"session": s.ID, "sessions": n},
	})
	return true
}

// Unregister removes the session and reports whether it was still there.
// Disconnect and eviction can race; the loser is a no-op.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return false
	}
	s.setState(StateClosed)
	h.metrics.SessionClosed()
	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[hub] unregister",
		Fields:  map[string]any{"session": id, "sessions": n},
	})
	return true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// snapshot copies the session list so sends happen without the lock and
// removals during a broadcast cannot disturb the iteration.
func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast sends v to every open session. A session whose write fails is
// evicted; the rest still get the message. Returns the number delivered.
func (h *Hub) Broadcast(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "[hub][SEND-ERR] marshal", Error: err})
		return 0
	}

	sent := 0
	for _, s := range h.snapshot() {
		if s.State() != StateOpen {
			continue
		}
		if err := s.writeRaw(data); err != nil {
			h.metrics.RecordBroadcastEviction()
			h.log.Log(logger.LogEntry{
				Level:   "info",
				Message: "[hub][SEND-ERR] evicting session",
				Fields:  map[string]any{"session": s.ID},
				Error:   err,
			})
			h.Unregister(s.ID)
			s.close(websocket.CloseGoingAway, "write failed")
			continue
		}
		sent++
	}
	return sent
}

// Shutdown tells every session the server is going away and closes them.
// Sessions connecting afterwards are refused.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	n := h.Broadcast(connectionMessage{
		Type:    TypeConnection,
		Status:  StatusClosing,
		Message: "Server shutting down",
	})
	for _, s := range h.snapshot() {
		s.close(websocket.CloseGoingAway, "server shutdown")
		h.Unregister(s.ID)
	}
	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[hub] shutdown",
		Fields:  map[string]any{"notified": n},
	})
}
