package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/care-coordination/internal/models"
)

// ReviewNotice tells a connected coordinator that a request produced
// recommendations needing their attention.
type ReviewNotice struct {
	RequestID  string            `json:"request_id"`
	GroupKind  models.GroupKind  `json:"group_kind"`
	Confidence models.Confidence `json:"confidence"`
	Score      float64           `json:"score"`
	At         time.Time         `json:"at"`
}

// WSSession represents a connected coordinator session.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(n ReviewNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// WSRegistry holds coordinator sessions. Delivery is best effort; the review
// surface reads the persisted rows regardless.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(coordinatorID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[coordinatorID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(coordinatorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, coordinatorID)
}

// Broadcast sends the notice to every connected coordinator, dropping
// sessions whose connection has gone away.
func (r *WSRegistry) Broadcast(n ReviewNotice) {
	r.mu.RLock()
	type entry struct {
		id string
		s  *WSSession
	}
	all := make([]entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, entry{id, s})
	}
	r.mu.RUnlock()

	for _, e := range all {
		if err := e.s.Send(n); err != nil {
			r.Remove(e.id)
		}
	}
}
