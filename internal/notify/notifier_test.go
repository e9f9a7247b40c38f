package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/webhooks"
)

type recordingChannel struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *recordingChannel) kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Kind
	for _, ev := range c.events {
		out = append(out, ev.Kind)
	}
	return out
}

func issueTask() dispatch.TaskContext {
	return dispatch.NewIssueTask("acme/widgets", 42, dispatch.TaskIssueComment, "octocat", "explain the parser")
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		kind     Kind
		duration time.Duration
		want     bool
	}{
		{"disabled", Config{Enabled: false, NotifyOnError: true}, KindFailed, time.Minute, false},
		{"start off", Config{Enabled: true}, KindStarted, 0, false},
		{"start on", Config{Enabled: true, NotifyOnStart: true}, KindStarted, 0, true},
		{"quick success", Config{Enabled: true, NotifyOnSuccess: true, MinDuration: 30 * time.Second}, KindCompleted, 10 * time.Second, false},
		{"slow success", Config{Enabled: true, NotifyOnSuccess: true, MinDuration: 30 * time.Second}, KindCompleted, 45 * time.Second, true},
		{"success off", Config{Enabled: true, MinDuration: 0}, KindCompleted, time.Hour, false},
		{"quick failure", Config{Enabled: true, NotifyOnError: true, MinDuration: 30 * time.Second}, KindFailed, time.Second, true},
		{"failure off", Config{Enabled: true, MinDuration: 0}, KindFailed, time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			n := New(&cfg)
			if got := n.ShouldNotify(tt.kind, tt.duration); got != tt.want {
				t.Errorf("ShouldNotify(%s, %v) = %v, want %v", tt.kind, tt.duration, got, tt.want)
			}
		})
	}
}

func TestNotifyCompleteRoutesFailures(t *testing.T) {
	ch := &recordingChannel{}
	n := New(DefaultConfig(), ch)

	n.NotifyComplete(issueTask(), &dispatch.TaskResult{Success: true, Duration: 5 * time.Second})
	n.NotifyComplete(issueTask(), &dispatch.TaskResult{Success: false, Duration: time.Second, Error: "exit 1", ErrorID: "err-1"})
	n.NotifyComplete(issueTask(), &dispatch.TaskResult{Success: true, Duration: time.Minute})
	n.Wait()

	got := ch.kinds()
	if len(got) != 2 {
		t.Fatalf("events = %v, want 2", got)
	}
	seen := map[Kind]bool{}
	for _, k := range got {
		seen[k] = true
	}
	if !seen[KindFailed] || !seen[KindCompleted] {
		t.Errorf("events = %v", got)
	}
}

func TestNotifyErrorCarriesStack(t *testing.T) {
	ch := &recordingChannel{}
	n := New(DefaultConfig(), ch)

	stack := []byte("goroutine 1\nline2\nline3\nline4\nline5\nline6\nline7")
	err := &dispatch.PanicError{Handler: dispatch.HandlerMention, Value: "nil map", Stack: stack}
	n.NotifyError(issueTask(), err, "err-abc")
	n.Wait()

	if len(ch.events) != 1 {
		t.Fatalf("events = %d", len(ch.events))
	}
	ev := ch.events[0]
	if ev.Kind != KindFailed || ev.Result.ErrorID != "err-abc" {
		t.Errorf("event = %+v", ev)
	}
	if strings.Count(ev.Stack, "\n") != 5 || strings.Contains(ev.Stack, "line6") {
		t.Errorf("stack = %q", ev.Stack)
	}
	if !strings.Contains(ev.Result.Error, "panicked") {
		t.Errorf("error = %q", ev.Result.Error)
	}
}

func TestObserversBypassSuppression(t *testing.T) {
	observer := &recordingChannel{}
	ch := &recordingChannel{}
	n := New(DefaultConfig(), ch)
	n.AddObserver(observer)

	task := issueTask()
	n.NotifyStart(task)
	n.NotifyComplete(task, &dispatch.TaskResult{Success: true, Duration: time.Second})
	n.Wait()

	if got := observer.kinds(); len(got) != 2 {
		t.Errorf("observer events = %v, want started and completed", got)
	}
	if got := ch.kinds(); len(got) != 0 {
		t.Errorf("channel events = %v, want none under default suppression", got)
	}

	disabled := New(&Config{Enabled: false})
	disabled.AddObserver(observer)
	disabled.NotifyError(task, errors.New("boom"), "err-1")
	disabled.Wait()
	if got := observer.kinds(); len(got) != 3 || got[2] != KindFailed {
		t.Errorf("observer events with notifications disabled = %v", got)
	}

	if names := n.Channels(); len(names) != 2 || names[0] != "recording" {
		t.Errorf("Channels() = %v", names)
	}
}

func TestChannelErrorsAreSwallowed(t *testing.T) {
	failing := &recordingChannel{err: errors.New("down")}
	ok := &recordingChannel{}
	n := New(&Config{Enabled: true, NotifyOnStart: true}, failing)
	n.AddChannel(ok)

	n.NotifyStart(issueTask())
	n.Wait()

	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Errorf("failing=%d ok=%d", len(failing.events), len(ok.events))
	}
	if names := n.Channels(); len(names) != 2 {
		t.Errorf("Channels() = %v", names)
	}
}

type fakePoster struct {
	channel string
	text    string
	blocks  []slack.Block
}

func (p *fakePoster) PostMessage(_ context.Context, channel, text string, blocks ...slack.Block) (string, error) {
	p.channel, p.text, p.blocks = channel, text, blocks
	return "1700000000.000100", nil
}

func TestSlackChannel(t *testing.T) {
	poster := &fakePoster{}
	ch := NewSlackChannel(poster, "C-OPS")

	ev := Event{
		Kind:      KindCompleted,
		Task:      issueTask(),
		Result:    &dispatch.TaskResult{Success: true, Duration: 125 * time.Second, ResponsePreview: "All good"},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := ch.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if poster.channel != "C-OPS" {
		t.Errorf("channel = %q", poster.channel)
	}
	if poster.text != "Issue Comment completed on acme/widgets#42 in 2m 5s" {
		t.Errorf("text = %q", poster.text)
	}
	raw, err := json.Marshal(poster.blocks)
	if err != nil {
		t.Fatalf("marshal blocks: %v", err)
	}
	for _, want := range []string{"Task completed", "All good", "2m 5s", "issues/42", "2026-01-02 03:04:05 UTC"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("blocks missing %q: %s", want, raw)
		}
	}
}

func TestBlocksTruncateCommand(t *testing.T) {
	task := issueTask()
	task.Command = strings.Repeat("x", 300)
	blocks := Blocks(Event{Kind: KindStarted, Task: task, Timestamp: time.Now()})
	raw, _ := json.Marshal(blocks)
	if strings.Contains(string(raw), strings.Repeat("x", 101)) {
		t.Errorf("command not truncated: %s", raw)
	}
}

func TestWebhookChannel(t *testing.T) {
	received := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	manager := webhooks.NewManager(&webhooks.Config{
		Enabled:   true,
		Endpoints: []*webhooks.EndpointConfig{{Name: "ops", URL: server.URL, Enabled: true}},
	})
	ch := NewWebhookChannel(manager)

	ev := Event{
		Kind:   KindFailed,
		Task:   issueTask(),
		Result: &dispatch.TaskResult{Duration: 2 * time.Second, Error: "sandbox exited", ErrorID: "err-77"},
	}
	if err := ch.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	payload := <-received
	if payload["type"] != string(webhooks.EventTaskFailed) {
		t.Errorf("type = %v", payload["type"])
	}
	data, _ := payload["data"].(map[string]any)
	if data["error_id"] != "err-77" || data["repository"] != "acme/widgets" {
		t.Errorf("data = %v", data)
	}
}

func TestWebhookChannelReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	manager := webhooks.NewManager(&webhooks.Config{
		Enabled:   true,
		Endpoints: []*webhooks.EndpointConfig{{Name: "ops", URL: server.URL, Enabled: true}},
	})
	err := NewWebhookChannel(manager).Send(context.Background(), Event{Kind: KindStarted, Task: issueTask()})
	if err == nil {
		t.Fatal("expected error for rejected delivery")
	}
}

func TestFeed(t *testing.T) {
	feed := NewFeed(1)
	frames, unsubscribe := feed.Subscribe()
	if feed.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d", feed.Subscribers())
	}

	ev := Event{Kind: KindStarted, Task: issueTask(), Timestamp: time.Now()}
	if err := feed.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// Buffer is full; this frame is dropped rather than blocking.
	if err := feed.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var msg FeedMessage
	if err := json.Unmarshal(<-frames, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind != KindStarted || msg.Repository != "acme/widgets" || msg.Number != 42 {
		t.Errorf("msg = %+v", msg)
	}

	unsubscribe()
	unsubscribe()
	if _, open := <-frames; open {
		t.Error("channel still open after unsubscribe")
	}
	if feed.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d", feed.Subscribers())
	}
}
