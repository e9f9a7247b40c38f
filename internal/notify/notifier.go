// Package notify reports task lifecycle events to operator channels.
// Every notification is fire-and-forget: delivery errors are logged and
// dropped, never returned to the caller.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
)

// Kind is a lifecycle event kind.
type Kind string

const (
	KindStarted   Kind = "started"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Config holds the notification settings.
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	NotifyOnStart   bool          `yaml:"notify_on_start"`
	NotifyOnSuccess bool          `yaml:"notify_on_success"`
	NotifyOnError   bool          `yaml:"notify_on_error"`
	MinDuration     time.Duration `yaml:"min_duration"`
	// SlackChannel receives notifications when a Slack bot token is set.
	SlackChannel string `yaml:"slack_channel"`
}

// DefaultConfig returns notifications enabled for completions and
// failures, with success notices suppressed below 30s.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		NotifyOnStart:   false,
		NotifyOnSuccess: true,
		NotifyOnError:   true,
		MinDuration:     30 * time.Second,
	}
}

// Event is what channels receive.
type Event struct {
	Kind      Kind
	Task      dispatch.TaskContext
	Result    *dispatch.TaskResult // nil for KindStarted
	Stack     string               // panic stack preview, failures only
	Timestamp time.Time
}

// Channel delivers events to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Notifier fans events out to channels after applying suppression rules.
// Observers receive every event, suppressed or not.
type Notifier struct {
	cfg       Config
	channels  []Channel
	observers []Channel
	timeout   time.Duration
	log       *slog.Logger
	wg        sync.WaitGroup
}

// New creates a notifier. A nil cfg uses DefaultConfig.
func New(cfg *Config, channels ...Channel) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Notifier{
		cfg:      *cfg,
		channels: channels,
		timeout:  30 * time.Second,
		log:      logging.WithComponent("notify"),
	}
}

// AddChannel registers another destination. Not safe to call while
// notifications are in flight.
func (n *Notifier) AddChannel(ch Channel) {
	n.channels = append(n.channels, ch)
}

// AddObserver registers a destination that bypasses suppression, such as
// the live event feed. Not safe to call while notifications are in flight.
func (n *Notifier) AddObserver(ch Channel) {
	n.observers = append(n.observers, ch)
}

// Channels returns the registered observer and channel names.
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.observers)+len(n.channels))
	for _, ch := range n.observers {
		names = append(names, ch.Name())
	}
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ShouldNotify applies the suppression rules in order: the global switch,
// the minimum duration for successful completions, then the per-kind
// toggles.
func (n *Notifier) ShouldNotify(kind Kind, duration time.Duration) bool {
	if !n.cfg.Enabled {
		return false
	}
	if kind == KindCompleted && duration < n.cfg.MinDuration {
		return false
	}
	switch kind {
	case KindStarted:
		return n.cfg.NotifyOnStart
	case KindCompleted:
		return n.cfg.NotifyOnSuccess
	case KindFailed:
		return n.cfg.NotifyOnError
	}
	return false
}

// NotifyStart reports that task was accepted.
func (n *Notifier) NotifyStart(task dispatch.TaskContext) {
	n.publish(Event{Kind: KindStarted, Task: task, Timestamp: time.Now()}, 0)
}

// NotifyComplete reports a finished task. A failed result is reported as
// a failure and is never subject to the minimum duration.
func (n *Notifier) NotifyComplete(task dispatch.TaskContext, result *dispatch.TaskResult) {
	kind := KindCompleted
	if !result.Success {
		kind = KindFailed
	}
	n.publish(Event{Kind: kind, Task: task, Result: result, Timestamp: time.Now()}, result.Duration)
}

// NotifyError reports a failure that produced no TaskResult of its own,
// such as a handler panic.
func (n *Notifier) NotifyError(task dispatch.TaskContext, err error, errorID string) {
	result := &dispatch.TaskResult{
		Success:   false,
		GitHubURL: task.GitHubURL(),
		Duration:  time.Since(task.StartTime),
		Error:     err.Error(),
		ErrorID:   errorID,
	}
	ev := Event{Kind: KindFailed, Task: task, Result: result, Timestamp: time.Now()}
	var pe *dispatch.PanicError
	if errors.As(err, &pe) {
		ev.Stack = FirstLines(string(pe.Stack), StackPreviewLines)
	}
	n.publish(ev, 0)
}

// publish sends ev to every observer, and to the channels unless the
// suppression rules drop it.
func (n *Notifier) publish(ev Event, duration time.Duration) {
	n.send(n.observers, ev)
	if n.ShouldNotify(ev.Kind, duration) {
		n.send(n.channels, ev)
	}
}

// send starts one goroutine per channel. The error of each send is logged
// and deliberately discarded.
func (n *Notifier) send(channels []Channel, ev Event) {
	for _, ch := range channels {
		n.wg.Add(1)
		go func(ch Channel) {
			defer n.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()
			if err := ch.Send(ctx, ev); err != nil {
				n.log.Warn("Notification delivery failed",
					slog.String("channel", ch.Name()),
					slog.String("kind", string(ev.Kind)),
					slog.String("repo", ev.Task.RepoFullName),
					slog.Any("error", err))
			}
		}(ch)
	}
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
