package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alekspetrov/claudehub/internal/logging"
)

// Delivery headers.
const (
	HeaderEvent     = "X-Claudehub-Event"
	HeaderSignature = "X-Claudehub-Signature"
	HeaderDelivery  = "X-Claudehub-Delivery"
	HeaderTimestamp = "X-Claudehub-Timestamp"
)

// Manager delivers events to the configured endpoints.
type Manager struct {
	config     *Config
	httpClient *http.Client
	log        *slog.Logger
	mu         sync.RWMutex

	deliveries int64
	failures   int64
	retries    int64
}

// DeliveryResult is the outcome of delivering one event to one endpoint.
type DeliveryResult struct {
	Endpoint   string
	Success    bool
	StatusCode int
	Attempts   int
	Error      error
	Duration   time.Duration
}

// NewManager creates a manager. A nil config disables delivery.
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		config:     config,
		httpClient: &http.Client{},
		log:        logging.WithComponent("webhooks"),
	}
}

// Enabled reports whether any delivery can happen.
func (m *Manager) Enabled() bool {
	return m.config.Enabled && len(m.config.Endpoints) > 0
}

// Dispatch sends event to every subscribed endpoint concurrently and waits
// for all deliveries to finish.
func (m *Manager) Dispatch(ctx context.Context, event *Event) []DeliveryResult {
	if !m.config.Enabled {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		m.log.Error("Failed to marshal webhook event", slog.Any("error", err))
		return nil
	}

	var (
		results []DeliveryResult
		resMu   sync.Mutex
		wg      sync.WaitGroup
	)
	for _, endpoint := range m.config.Endpoints {
		if !endpoint.Enabled || !endpoint.SubscribesTo(event.Type) {
			continue
		}
		wg.Add(1)
		go func(ep *EndpointConfig) {
			defer wg.Done()
			result := m.deliver(ctx, ep, event, payload)
			resMu.Lock()
			results = append(results, result)
			resMu.Unlock()
		}(endpoint)
	}
	wg.Wait()
	return results
}

func (m *Manager) deliver(ctx context.Context, endpoint *EndpointConfig, event *Event, payload []byte) DeliveryResult {
	start := time.Now()
	retry := endpoint.retry(m.config.Defaults)
	timeout := endpoint.timeout(m.config.Defaults)
	signature := Sign(payload, endpoint.Secret)

	result := DeliveryResult{Endpoint: endpoint.Name}
	delay := retry.InitialDelay

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		result.Attempts = attempt

		status, err := m.post(ctx, endpoint, event, payload, signature, timeout)
		result.StatusCode = status
		if err == nil {
			result.Success = true
			result.Error = nil
			result.Duration = time.Since(start)
			m.record(&m.deliveries)
			m.log.Debug("Webhook delivered",
				slog.String("endpoint", endpoint.Name),
				slog.String("event", string(event.Type)),
				slog.Int("status", status))
			return result
		}
		result.Error = err
		m.log.Warn("Webhook delivery failed",
			slog.String("endpoint", endpoint.Name),
			slog.Int("attempt", attempt),
			slog.Any("error", err))

		if attempt >= retry.MaxAttempts || (status >= 400 && status < 500 && status != http.StatusTooManyRequests) {
			break
		}

		m.record(&m.retries)
		select {
		case <-ctx.Done():
			result.Error = ctx.Err()
			result.Duration = time.Since(start)
			m.record(&m.failures)
			return result
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * retry.Multiplier)
		if delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}

	result.Duration = time.Since(start)
	m.record(&m.failures)
	m.log.Error("Webhook delivery exhausted retries",
		slog.String("endpoint", endpoint.Name),
		slog.String("event", string(event.Type)),
		slog.Int("attempts", result.Attempts),
		slog.Any("error", result.Error))
	return result
}

func (m *Manager) post(ctx context.Context, endpoint *EndpointConfig, event *Event, payload []byte, signature string, timeout time.Duration) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "claudehub-webhooks/1.0")
	req.Header.Set(HeaderEvent, string(event.Type))
	req.Header.Set(HeaderDelivery, event.ID)
	req.Header.Set(HeaderTimestamp, event.Timestamp.Format(time.RFC3339))
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}
	for k, v := range endpoint.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (m *Manager) record(counter *int64) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
}

// Stats returns delivery counters.
func (m *Manager) Stats() (deliveries, failures, retries int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveries, m.failures, m.retries
}

// Sign returns "sha256=<hex>" over payload, or "" without a secret.
func Sign(payload []byte, secret string) string {
	if secret == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a delivery signature. Receivers can use it to
// authenticate claudehub events.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(payload, secret)))
}
