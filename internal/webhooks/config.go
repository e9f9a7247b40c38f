// Package webhooks delivers claudehub task lifecycle events to operator
// endpoints as HMAC-signed JSON, retrying transient failures.
package webhooks

import (
	"time"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
)

// AllEventTypes returns every event type an endpoint can subscribe to.
func AllEventTypes() []EventType {
	return []EventType{EventTaskStarted, EventTaskCompleted, EventTaskFailed}
}

// Config holds outbound webhook configuration.
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Endpoints []*EndpointConfig `yaml:"endpoints"`
	Defaults  *EndpointDefaults `yaml:"defaults,omitempty"`
}

// EndpointConfig defines a single receiving endpoint.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	// Secret signs the payload; empty sends unsigned deliveries.
	Secret string `yaml:"secret"`

	// Events filters deliveries. Empty means all events.
	Events []EventType `yaml:"events,omitempty"`

	Enabled bool              `yaml:"enabled"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Retry   *RetryConfig      `yaml:"retry,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// EndpointDefaults apply to endpoints that leave a field unset.
type EndpointDefaults struct {
	Timeout time.Duration `yaml:"timeout"`
	Retry   *RetryConfig  `yaml:"retry,omitempty"`
}

// RetryConfig defines backoff for failed deliveries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// DefaultConfig returns outbound webhooks disabled with no endpoints.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   false,
		Endpoints: []*EndpointConfig{},
		Defaults: &EndpointDefaults{
			Timeout: 10 * time.Second,
			Retry:   DefaultRetryConfig(),
		},
	}
}

// DefaultRetryConfig returns three attempts starting at one second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// SubscribesTo reports whether the endpoint wants eventType.
func (e *EndpointConfig) SubscribesTo(eventType EventType) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, et := range e.Events {
		if et == eventType {
			return true
		}
	}
	return false
}

func (e *EndpointConfig) timeout(defaults *EndpointDefaults) time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	if defaults != nil && defaults.Timeout > 0 {
		return defaults.Timeout
	}
	return 10 * time.Second
}

func (e *EndpointConfig) retry(defaults *EndpointDefaults) *RetryConfig {
	if e.Retry != nil {
		return e.Retry
	}
	if defaults != nil && defaults.Retry != nil {
		return defaults.Retry
	}
	return DefaultRetryConfig()
}

// IsKnownEvent reports whether t is one of AllEventTypes.
func IsKnownEvent(t EventType) bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}
