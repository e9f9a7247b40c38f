package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackPoster posts a message to a Slack channel.
type SlackPoster interface {
	PostMessage(ctx context.Context, channel, text string, blocks ...slack.Block) (string, error)
}

// SlackChannel posts lifecycle events to an operations channel.
type SlackChannel struct {
	poster  SlackPoster
	channel string
}

// NewSlackChannel creates a Slack channel posting to channel.
func NewSlackChannel(poster SlackPoster, channel string) *SlackChannel {
	return &SlackChannel{poster: poster, channel: channel}
}

func (c *SlackChannel) Name() string { return "slack:" + c.channel }

func (c *SlackChannel) Send(ctx context.Context, ev Event) error {
	_, err := c.poster.PostMessage(ctx, c.channel, Summary(ev), Blocks(ev)...)
	return err
}

// Summary is the plain-text fallback for an event.
func Summary(ev Event) string {
	op := OperationName(ev.Task.Type)
	switch ev.Kind {
	case KindStarted:
		return fmt.Sprintf("%s started on %s", op, target(ev))
	case KindCompleted:
		return fmt.Sprintf("%s completed on %s in %s", op, target(ev), FormatDuration(ev.Result.Duration))
	default:
		msg := fmt.Sprintf("%s failed on %s", op, target(ev))
		if ev.Result != nil && ev.Result.ErrorID != "" {
			msg += " (" + ev.Result.ErrorID + ")"
		}
		return msg
	}
}

func target(ev Event) string {
	t := ev.Task
	switch {
	case t.RepoFullName == "":
		return "Slack"
	case t.Number() != 0:
		return fmt.Sprintf("%s#%d", t.RepoFullName, t.Number())
	default:
		return t.RepoFullName
	}
}

func title(kind Kind) string {
	switch kind {
	case KindStarted:
		return "🚀 Task started"
	case KindCompleted:
		return "✅ Task completed"
	default:
		return "❌ Task failed"
	}
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

// Blocks renders an event as header, details, preview and context blocks.
func Blocks(ev Event) []slack.Block {
	t := ev.Task
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title(ev.Kind), true, false)),
	}

	fields := []*slack.TextBlockObject{
		mrkdwn("*Operation:*\n" + OperationName(t.Type)),
		mrkdwn("*Target:*\n" + target(ev)),
	}
	if t.User != "" {
		fields = append(fields, mrkdwn("*User:*\n"+t.User))
	}
	if ev.Result != nil {
		fields = append(fields, mrkdwn("*Duration:*\n"+FormatDuration(ev.Result.Duration)))
	}
	blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))

	if t.Command != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			mrkdwn("*Command:* "+Truncate(t.Command, CommandPreviewChars)), nil, nil))
	}

	if ev.Result != nil {
		switch {
		case ev.Result.Success && ev.Result.ResponsePreview != "":
			blocks = append(blocks, slack.NewSectionBlock(
				mrkdwn("```"+Truncate(ev.Result.ResponsePreview, ResponsePreviewChars)+"```"), nil, nil))
		case !ev.Result.Success:
			text := "*Error:* " + Truncate(ev.Result.Error, ResponsePreviewChars)
			if ev.Result.ErrorID != "" {
				text += "\n*Error ID:* `" + ev.Result.ErrorID + "`"
			}
			blocks = append(blocks, slack.NewSectionBlock(mrkdwn(text), nil, nil))
		}
	}
	if ev.Stack != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			mrkdwn("```"+FirstLines(ev.Stack, StackPreviewLines)+"```"), nil, nil))
	}

	link := t.GitHubURL()
	if ev.Result != nil && ev.Result.GitHubURL != "" {
		link = ev.Result.GitHubURL
	}
	ctxText := ev.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")
	if t.RepoFullName != "" {
		ctxText = fmt.Sprintf("<%s|View on GitHub> | %s", link, ctxText)
	}
	blocks = append(blocks, slack.NewContextBlock("", mrkdwn(ctxText)))
	return blocks
}
