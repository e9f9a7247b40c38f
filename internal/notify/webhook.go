package notify

import (
	"context"
	"fmt"

	"github.com/alekspetrov/claudehub/internal/webhooks"
)

// WebhookChannel forwards events to outbound webhook endpoints.
type WebhookChannel struct {
	manager *webhooks.Manager
}

// NewWebhookChannel wraps a webhook manager.
func NewWebhookChannel(manager *webhooks.Manager) *WebhookChannel {
	return &WebhookChannel{manager: manager}
}

func (c *WebhookChannel) Name() string { return "webhooks" }

// Send delivers to every subscribed endpoint and fails if any delivery
// failed.
func (c *WebhookChannel) Send(ctx context.Context, ev Event) error {
	var failed int
	for _, res := range c.manager.Dispatch(ctx, ToWebhookEvent(ev)) {
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d webhook deliveries failed", failed)
	}
	return nil
}

// ToWebhookEvent maps a lifecycle event to its outbound payload.
func ToWebhookEvent(ev Event) *webhooks.Event {
	t := ev.Task
	task := webhooks.TaskData{
		Type:       string(t.Type),
		Repository: t.RepoFullName,
		Number:     t.Number(),
		User:       t.User,
		Command:    Truncate(t.Command, CommandPreviewChars),
		GitHubURL:  t.GitHubURL(),
	}

	switch ev.Kind {
	case KindStarted:
		return webhooks.NewEvent(webhooks.EventTaskStarted, &webhooks.TaskStartedData{
			TaskData:  task,
			StartedAt: t.StartTime.UTC(),
		})
	case KindCompleted:
		return webhooks.NewEvent(webhooks.EventTaskCompleted, &webhooks.TaskCompletedData{
			TaskData:   task,
			DurationMS: ev.Result.Duration.Milliseconds(),
			Preview:    Truncate(ev.Result.ResponsePreview, ResponsePreviewChars),
		})
	default:
		data := &webhooks.TaskFailedData{TaskData: task}
		if ev.Result != nil {
			data.DurationMS = ev.Result.Duration.Milliseconds()
			data.Error = Truncate(ev.Result.Error, ResponsePreviewChars)
			data.ErrorID = ev.Result.ErrorID
		}
		return webhooks.NewEvent(webhooks.EventTaskFailed, data)
	}
}
