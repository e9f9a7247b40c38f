package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsPingInterval is the interval between ping frames sent to the client.
	wsPingInterval = 30 * time.Second
	// wsPongTimeout is how long to wait for a pong response before closing.
	wsPongTimeout = 10 * time.Second
	// wsWriteTimeout is the deadline for writing a message to the client.
	wsWriteTimeout = 5 * time.Second
)

// handleEvents upgrades the connection to WebSocket and streams task
// lifecycle events from the feed until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "event feed not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Event feed upgrade failed", slog.Any("error", err))
		return
	}

	sub := s.subscribers.Add(conn, r.RemoteAddr)
	defer s.subscribers.Remove(sub.ID)
	log := s.log.With(slog.String("subscriber_id", sub.ID))
	log.Info("Event feed subscriber connected", slog.String("remote", r.RemoteAddr))

	frames, unsubscribe := s.feed.Subscribe()
	defer unsubscribe()

	conn.SetPongHandler(func(string) error {
		sub.Touch()
		return conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))

	// Clients are not expected to send anything; reading detects disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Warn("Event feed read error", slog.Any("error", err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := sub.Write(frame); err != nil {
				log.Debug("Event feed write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := sub.Ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
