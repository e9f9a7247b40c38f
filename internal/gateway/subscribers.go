package gateway

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Subscriber is one operator connection on /ws/events.
type Subscriber struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn     *websocket.Conn
	writeMu  sync.Mutex
	lastPong atomic.Int64
}

// SubscriberInfo is the read-only view reported by /health.
type SubscriberInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPong    time.Time `json:"last_pong"`
}

// SubscriberSet tracks connected event feed subscribers.
type SubscriberSet struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewSubscriberSet() *SubscriberSet {
	return &SubscriberSet{subs: make(map[string]*Subscriber)}
}

// Add registers conn under a fresh ID.
func (s *SubscriberSet) Add(conn *websocket.Conn, remoteAddr string) *Subscriber {
	now := time.Now()
	sub := &Subscriber{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		conn:        conn,
	}
	sub.lastPong.Store(now.UnixNano())

	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()
	return sub
}

func (s *SubscriberSet) Lookup(id string) (*Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// Remove closes the connection and forgets the subscriber. Unknown IDs
// are ignored.
func (s *SubscriberSet) Remove(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if ok {
		_ = sub.conn.Close()
	}
}

func (s *SubscriberSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Snapshot lists subscribers, oldest connection first.
func (s *SubscriberSet) Snapshot() []SubscriberInfo {
	s.mu.RLock()
	out := make([]SubscriberInfo, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, SubscriberInfo{
			ID:          sub.ID,
			RemoteAddr:  sub.RemoteAddr,
			ConnectedAt: sub.ConnectedAt,
			LastPong:    sub.LastPong(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Write sends one text frame. Writes are serialized because gorilla
// connections support a single concurrent writer.
func (sub *Subscriber) Write(frame []byte) error {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	_ = sub.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return sub.conn.WriteMessage(websocket.TextMessage, frame)
}

func (sub *Subscriber) Ping() error {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	return sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// Touch records a pong from the client.
func (sub *Subscriber) Touch() {
	sub.lastPong.Store(time.Now().UnixNano())
}

func (sub *Subscriber) LastPong() time.Time {
	return time.Unix(0, sub.lastPong.Load())
}
