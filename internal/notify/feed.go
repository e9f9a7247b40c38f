package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// FeedMessage is the JSON frame streamed to live feed subscribers.
type FeedMessage struct {
	Kind       Kind      `json:"kind"`
	Operation  string    `json:"operation"`
	Repository string    `json:"repository,omitempty"`
	Number     int       `json:"number,omitempty"`
	User       string    `json:"user,omitempty"`
	Duration   string    `json:"duration,omitempty"`
	Preview    string    `json:"preview,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorID    string    `json:"error_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Feed broadcasts events to in-process subscribers, such as /ws/events
// connections. Slow subscribers drop frames instead of blocking senders.
type Feed struct {
	mu     sync.RWMutex
	subs   map[chan []byte]struct{}
	buffer int
}

// NewFeed creates a feed whose subscriber channels hold buffer frames.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 16
	}
	return &Feed{subs: make(map[chan []byte]struct{}), buffer: buffer}
}

func (f *Feed) Name() string { return "feed" }

// Subscribe returns a frame channel and a function that unsubscribes and
// closes it.
func (f *Feed) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, f.buffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Feed) Send(_ context.Context, ev Event) error {
	frame, err := json.Marshal(toFeedMessage(ev))
	if err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- frame:
		default:
		}
	}
	return nil
}

func toFeedMessage(ev Event) FeedMessage {
	t := ev.Task
	msg := FeedMessage{
		Kind:       ev.Kind,
		Operation:  OperationName(t.Type),
		Repository: t.RepoFullName,
		Number:     t.Number(),
		User:       t.User,
		Timestamp:  ev.Timestamp.UTC(),
	}
	if r := ev.Result; r != nil {
		msg.Duration = FormatDuration(r.Duration)
		if r.Success {
			msg.Preview = Truncate(r.ResponsePreview, ResponsePreviewChars)
		} else {
			msg.Error = Truncate(r.Error, ResponsePreviewChars)
			msg.ErrorID = r.ErrorID
		}
	}
	return msg
}
