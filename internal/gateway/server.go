// Package gateway is the inbound HTTP surface: provider webhooks, the
// health check, and the live lifecycle feed over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
	"github.com/alekspetrov/claudehub/internal/notify"
)

// MaxBodyBytes bounds webhook request bodies.
const MaxBodyBytes = 32 << 20

// Config holds gateway server configuration including network binding options.
type Config struct {
	// Host is the network interface to bind to (e.g., "127.0.0.1" or "0.0.0.0").
	Host string `yaml:"host"`
	// Port is the TCP port number to listen on.
	Port int `yaml:"port"`
}

// DefaultConfig listens on localhost:3000.
func DefaultConfig() *Config {
	return &Config{Host: "127.0.0.1", Port: 3000}
}

// Dispatcher routes envelopes to handlers. *dispatch.Registry implements it.
type Dispatcher interface {
	Provider(kind dispatch.ProviderKind) (dispatch.Provider, bool)
	Route(env *dispatch.Envelope) dispatch.Handler
	Run(ctx context.Context, h dispatch.Handler, env *dispatch.Envelope) *dispatch.Response
}

// Deduper remembers accepted deliveries.
type Deduper interface {
	MarkIfNew(ctx context.Context, provider, id string) (bool, error)
}

// ErrorNotifier reports failures that produced no task result of their own.
type ErrorNotifier interface {
	NotifyError(task dispatch.TaskContext, err error, errorID string)
}

// FailureReplier tells the origin surface that a handler failed without
// replying itself.
type FailureReplier func(ctx context.Context, env *dispatch.Envelope, tr *dispatch.TaskResult) error

// Server accepts webhooks, acknowledges them immediately and runs the
// matched handler in the background. Server is safe for concurrent use.
type Server struct {
	config       *Config
	registry     Dispatcher
	dedup        Deduper
	notifier     ErrorNotifier
	replyFailure FailureReplier
	feed         *notify.Feed
	version      string
	drainTimeout time.Duration

	subscribers *SubscriberSet
	upgrader    websocket.Upgrader
	server      *http.Server
	log         *slog.Logger

	tasks       sync.WaitGroup
	inFlight    atomic.Int64
	taskCtx     context.Context
	cancelTasks context.CancelFunc

	mu      sync.RWMutex
	running bool
}

// ServerOption is a functional option for configuring Server.
type ServerOption func(*Server)

// WithDeduper skips redeliveries already accepted.
func WithDeduper(d Deduper) ServerOption {
	return func(s *Server) { s.dedup = d }
}

// WithErrorNotifier reports handler panics to operators.
func WithErrorNotifier(n ErrorNotifier) ServerOption {
	return func(s *Server) { s.notifier = n }
}

// WithFailureReplier replies on the origin surface after a handler panic.
func WithFailureReplier(fn FailureReplier) ServerOption {
	return func(s *Server) { s.replyFailure = fn }
}

// WithFeed serves feed on /ws/events.
func WithFeed(feed *notify.Feed) ServerOption {
	return func(s *Server) { s.feed = feed }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithDrainTimeout bounds how long shutdown waits for running tasks
// before cancelling them.
func WithDrainTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.drainTimeout = d }
}

// NewServer creates a gateway server. The server is not started until
// Start is called.
func NewServer(config *Config, registry Dispatcher, opts ...ServerOption) *Server {
	taskCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:       config,
		registry:     registry,
		version:      "dev",
		drainTimeout: 30 * time.Second,
		subscribers:  NewSubscriberSet(),
		log:          logging.WithComponent("gateway"),
		taskCtx:      taskCtx,
		cancelTasks:  cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     localOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// localOrigin allows requests without an Origin (CLI tools) and from
// localhost only.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/github", s.handleWebhook(dispatch.ProviderGitHub))
	mux.HandleFunc("/webhooks/slack", s.handleWebhook(dispatch.ProviderSlack))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws/events", s.handleEvents)
	return mux
}

// Start starts the server and blocks until ctx is cancelled or the
// listener fails. On cancellation it shuts down and drains running tasks.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("Gateway starting", slog.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops accepting requests, then waits for background tasks up
// to the drain timeout before cancelling them.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)

	if !s.Drain(s.drainTimeout) {
		s.log.Warn("Cancelling tasks still running after drain timeout",
			slog.Int64("in_flight", s.inFlight.Load()),
			slog.Duration("drain_timeout", s.drainTimeout))
		s.cancelTasks()
		s.tasks.Wait()
	}
	return err
}

// Drain waits up to timeout for background tasks and reports whether
// they all finished.
func (s *Server) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// InFlight returns the number of running background tasks.
func (s *Server) InFlight() int64 {
	return s.inFlight.Load()
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"version":     s.version,
		"in_flight":   s.inFlight.Load(),
		"subscribers": s.subscribers.Len(),
		"event_feed":  s.subscribers.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
