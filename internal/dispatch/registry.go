package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/alekspetrov/claudehub/internal/logging"
)

// HandlerKind names a handler family. The set is closed; every handler
// registered with a Registry reports one of these.
type HandlerKind string

const (
	HandlerPlan         HandlerKind = "plan"
	HandlerBug          HandlerKind = "bug"
	HandlerTest         HandlerKind = "test"
	HandlerAutoTag      HandlerKind = "auto-tag"
	HandlerPRReview     HandlerKind = "pr-review"
	HandlerManualReview HandlerKind = "manual-review"
	HandlerMention      HandlerKind = "mention"
)

// Handler services envelopes for one or more event keys of a provider.
type Handler interface {
	Kind() HandlerKind
	// Events lists the event keys this handler is registered under.
	Events() []string
	// CanHandle must be a cheap, side-effect free check.
	CanHandle(env *Envelope) bool
	// Handle drives the task to completion. Failures are reported in
	// the response, never returned or panicked.
	Handle(ctx context.Context, env *Envelope) *Response
}

// Acknowledger is implemented by handlers that want to choose the text of
// the immediate acknowledgment sent before Handle runs.
type Acknowledger interface {
	Ack(env *Envelope) string
}

// Response is the outcome of a dispatch.
type Response struct {
	// Handled is false when no handler matched. That is not an error.
	Handled bool
	Handler HandlerKind
	Message string
	Result  *TaskResult
	Err     error
}

// PanicError is the Response.Err of a handler that panicked. Stack is for
// operators only and never shown on the origin surface.
type PanicError struct {
	Handler HandlerKind
	Value   any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked: %v", e.Handler, e.Value)
}

// NoHandler is the response for routing misses.
func NoHandler() *Response {
	return &Response{Handled: false, Message: "no handler"}
}

// Route describes one bucket of the routing table.
type Route struct {
	Provider ProviderKind
	Event    string
	Handlers []HandlerKind
}

type bucketKey struct {
	provider ProviderKind
	event    string
}

// Registry holds providers and handler buckets keyed by (provider,
// event). Within a bucket handlers are tried in registration order and the
// first whose CanHandle returns true wins. Registry is safe for concurrent
// use.
type Registry struct {
	mu            sync.RWMutex
	providers     map[ProviderKind]Provider
	providerOrder []ProviderKind
	buckets       map[bucketKey][]Handler
	bucketOrder   []bucketKey
	log           *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[ProviderKind]Provider),
		buckets:   make(map[bucketKey][]Handler),
		log:       logging.WithComponent("dispatch"),
	}
}

// RegisterProvider adds a provider. Registering the same kind twice
// replaces the earlier provider but keeps its position.
func (r *Registry) RegisterProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Kind()]; !exists {
		r.providerOrder = append(r.providerOrder, p.Kind())
	}
	r.providers[p.Kind()] = p
}

// Provider returns the provider registered for kind.
func (r *Registry) Provider(kind ProviderKind) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	return p, ok
}

// Providers returns registered providers in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providerOrder))
	for _, k := range r.providerOrder {
		out = append(out, r.providers[k])
	}
	return out
}

// RegisterHandler appends h to the bucket of each of its events for the
// given provider. The provider must already be registered.
func (r *Registry) RegisterHandler(provider ProviderKind, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[provider]; !ok {
		return fmt.Errorf("register %s handler: provider %q not registered", h.Kind(), provider)
	}
	if len(h.Events()) == 0 {
		return fmt.Errorf("register %s handler: no events", h.Kind())
	}
	for _, event := range h.Events() {
		key := bucketKey{provider: provider, event: event}
		if _, exists := r.buckets[key]; !exists {
			r.bucketOrder = append(r.bucketOrder, key)
		}
		r.buckets[key] = append(r.buckets[key], h)
	}
	return nil
}

// Route returns the first handler in the envelope's bucket that accepts
// it, or nil.
func (r *Registry) Route(env *Envelope) Handler {
	r.mu.RLock()
	handlers := r.buckets[bucketKey{provider: env.Provider, event: env.Event}]
	r.mu.RUnlock()

	for _, h := range handlers {
		if h.CanHandle(env) {
			return h
		}
	}
	return nil
}

// Dispatch routes env and runs the matched handler synchronously.
func (r *Registry) Dispatch(ctx context.Context, env *Envelope) *Response {
	h := r.Route(env)
	if h == nil {
		r.log.Debug("No handler for event",
			slog.String("provider", string(env.Provider)),
			slog.String("event", env.Event),
			slog.String("envelope_id", env.ID))
		return NoHandler()
	}
	return r.Run(ctx, h, env)
}

// Run invokes h for env, converting a panic into a failed response so
// that one bad handler cannot take down the request-handling goroutine.
func (r *Registry) Run(ctx context.Context, h Handler, env *Envelope) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			errorID := NewErrorID()
			stack := debug.Stack()
			r.log.Error("Handler panicked",
				slog.String("handler", string(h.Kind())),
				slog.String("envelope_id", env.ID),
				slog.String("error_id", errorID),
				slog.Any("panic", rec),
				slog.String("stack", string(stack)))
			resp = &Response{
				Handled: true,
				Handler: h.Kind(),
				Err:     &PanicError{Handler: h.Kind(), Value: rec, Stack: stack},
				Result:  &TaskResult{Success: false, Error: "internal error", ErrorID: errorID},
			}
		}
	}()

	resp = h.Handle(ctx, env)
	if resp == nil {
		resp = &Response{}
	}
	resp.Handled = true
	resp.Handler = h.Kind()
	return resp
}

// Routes returns the routing table: buckets sorted by provider
// registration order then bucket creation order, handlers in try order.
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rank := make(map[ProviderKind]int, len(r.providerOrder))
	for i, k := range r.providerOrder {
		rank[k] = i
	}
	keys := append([]bucketKey(nil), r.bucketOrder...)
	sort.SliceStable(keys, func(i, j int) bool { return rank[keys[i].provider] < rank[keys[j].provider] })

	routes := make([]Route, 0, len(keys))
	for _, k := range keys {
		route := Route{Provider: k.provider, Event: k.event}
		for _, h := range r.buckets[k] {
			route.Handlers = append(route.Handlers, h.Kind())
		}
		routes = append(routes, route)
	}
	return routes
}
