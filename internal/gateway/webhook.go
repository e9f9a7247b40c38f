package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	slackadapter "github.com/alekspetrov/claudehub/internal/adapters/slack"
	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
)

// handleWebhook verifies, normalizes and routes one delivery, answers the
// sender at once and runs the handler in the background.
func (s *Server) handleWebhook(kind dispatch.ProviderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		provider, ok := s.registry.Provider(kind)
		if !ok {
			http.Error(w, "provider not configured", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if len(body) > MaxBodyBytes {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}

		log := s.log.With(slog.String("provider", string(kind)))

		if err := provider.Verify(body, r.Header); err != nil {
			log.Warn("Rejected webhook with invalid signature",
				slog.String("remote_addr", r.RemoteAddr),
				slog.Any("error", err))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		env, err := provider.Parse(body, r.Header)
		if err == nil {
			err = provider.Validate(env)
		}
		if err != nil {
			log.Warn("Rejected malformed webhook", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log = log.With(slog.String("envelope_id", env.ID), slog.String("event", env.Event))

		h := s.registry.Route(env)
		if h == nil {
			log.Debug("No handler for event", slog.String("summary", provider.Describe(env)))
			if kind == dispatch.ProviderSlack {
				writeJSON(w, http.StatusOK, slackadapter.NewAck("Sorry, I don't know that command."))
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		if s.duplicate(r.Context(), env, log) {
			if kind == dispatch.ProviderSlack {
				writeJSON(w, http.StatusOK, slackadapter.NewAck("Already working on it."))
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}

		log.Info("Accepted webhook",
			slog.String("handler", string(h.Kind())),
			slog.String("summary", provider.Describe(env)))
		s.runInBackground(h, env)

		if kind == dispatch.ProviderSlack {
			text := "⏳ Working on it..."
			if a, ok := h.(dispatch.Acknowledger); ok {
				text = a.Ack(env)
			}
			writeJSON(w, http.StatusOK, slackadapter.NewAck(text))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"handler": string(h.Kind()),
		})
	}
}

// duplicate reports whether env was already accepted. Store errors let
// the delivery through.
func (s *Server) duplicate(ctx context.Context, env *dispatch.Envelope, log *slog.Logger) bool {
	key := env.DeliveryKey()
	if s.dedup == nil || key == "" {
		return false
	}
	isNew, err := s.dedup.MarkIfNew(ctx, string(env.Provider), key)
	if err != nil {
		log.Error("Delivery dedup failed", slog.Any("error", err))
		return false
	}
	if !isNew {
		log.Info("Skipping redelivered webhook", slog.String("delivery_id", key))
	}
	return !isNew
}

// runInBackground runs h on its own goroutine, detached from the request.
func (s *Server) runInBackground(h dispatch.Handler, env *dispatch.Envelope) {
	s.tasks.Add(1)
	s.inFlight.Add(1)
	go func() {
		defer s.tasks.Done()
		defer s.inFlight.Add(-1)

		ctx := logging.ContextWithEnvelope(s.taskCtx, env.ID, string(env.Provider))
		resp := s.registry.Run(ctx, h, env)

		var pe *dispatch.PanicError
		if !errors.As(resp.Err, &pe) {
			return
		}
		s.reportPanic(ctx, h, env, resp)
	}()
}

// reportPanic tells operators and the origin surface about a handler that
// panicked before it could reply.
func (s *Server) reportPanic(ctx context.Context, h dispatch.Handler, env *dispatch.Envelope, resp *dispatch.Response) {
	errorID := ""
	if resp.Result != nil {
		errorID = resp.Result.ErrorID
	}
	if s.notifier != nil {
		task := dispatch.TaskFromEnvelope(env, dispatch.TaskTypeFor(h.Kind(), env), "")
		s.notifier.NotifyError(task, resp.Err, errorID)
	}
	if s.replyFailure != nil && resp.Result != nil {
		if err := s.replyFailure(ctx, env, resp.Result); err != nil {
			logging.FromContext(ctx, s.log).Error("Failed to report handler failure",
				slog.String("error_id", errorID),
				slog.Any("error", err))
		}
	}
}
