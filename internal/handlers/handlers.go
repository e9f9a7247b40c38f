// Package handlers implements the command handlers: the Slack slash
// commands that file plans, bug analyses and test plans, and the GitHub
// handlers that label issues, review pull requests and answer mentions.
//
// Every handler owns the user-facing reply for its surface. Failures are
// reported there with an error ID and never returned to the caller.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alekspetrov/claudehub/internal/adapters/github"
	slackadapter "github.com/alekspetrov/claudehub/internal/adapters/slack"
	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
	"github.com/alekspetrov/claudehub/internal/notify"
	"github.com/alekspetrov/claudehub/internal/sandbox"
)

// Runner executes a task in the sandbox.
type Runner interface {
	Run(ctx context.Context, task dispatch.TaskContext) (*sandbox.Result, error)
}

// GitHubAPI is the subset of the GitHub client the handlers use.
type GitHubAPI interface {
	AddComment(ctx context.Context, owner, repo string, number int, body string) (*github.Comment, error)
	ListComments(ctx context.Context, owner, repo string, number int) ([]*github.Comment, error)
	CreateIssue(ctx context.Context, owner, repo string, input *github.IssueInput) (*github.Issue, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
}

// SlackResponder replies to a slash command through its response_url.
type SlackResponder interface {
	Respond(ctx context.Context, responseURL, responseType, text string) error
}

// Notifier receives task lifecycle events.
type Notifier interface {
	NotifyStart(task dispatch.TaskContext)
	NotifyComplete(task dispatch.TaskContext, result *dispatch.TaskResult)
}

// Config holds the handler settings.
type Config struct {
	BotUsername string
	// AuthorizedUsers restricts mention-triggered runs. Empty allows
	// everyone.
	AuthorizedUsers []string
	Defaults        Defaults
}

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Config   Config
	Runner   Runner
	GitHub   GitHubAPI
	Slack    SlackResponder
	Notifier Notifier
}

type base struct {
	deps Deps
	log  *slog.Logger
}

func newBase(deps Deps, kind dispatch.HandlerKind) base {
	return base{deps: deps, log: logging.WithComponent("handlers." + string(kind))}
}

// deliverFunc publishes a successful answer and returns a link to it.
type deliverFunc func(ctx context.Context, answer string) (string, error)

// run drives task through the sandbox, hands the answer to deliver and
// reports the outcome. It never returns an error: a failed run comes back
// as a TaskResult with Error and ErrorID set.
func (b base) run(ctx context.Context, task dispatch.TaskContext, deliver deliverFunc) *dispatch.TaskResult {
	ctx = logging.ContextWithRepo(ctx, task.RepoFullName)
	log := logging.FromContext(ctx, b.log)

	b.deps.Notifier.NotifyStart(task)

	res, err := b.deps.Runner.Run(ctx, task)
	link := ""
	if err == nil {
		link, err = deliver(ctx, res.Response)
		if err != nil {
			err = fmt.Errorf("deliver answer: %w", err)
		}
	}

	tr := &dispatch.TaskResult{
		GitHubURL: task.GitHubURL(),
		Duration:  time.Since(task.StartTime),
	}
	if link != "" {
		tr.GitHubURL = link
	}
	if err != nil {
		tr.Error = userMessage(err)
		tr.ErrorID = dispatch.NewErrorID()
		attrs := []any{
			slog.String("error_id", tr.ErrorID),
			slog.String("task_type", string(task.Type)),
			slog.Any("error", err),
		}
		if res != nil && res.SessionLog != "" {
			attrs = append(attrs, slog.String("session_log", res.SessionLog))
		}
		log.Error("Task failed", attrs...)
	} else {
		tr.Success = true
		tr.ResponsePreview = notify.Truncate(res.Response, notify.ResponsePreviewChars)
		log.Info("Task completed",
			slog.String("task_type", string(task.Type)),
			slog.Duration("duration", tr.Duration))
	}

	b.deps.Notifier.NotifyComplete(task, tr)
	return tr
}

// userMessage turns an internal error into a short message safe to show
// on the origin surface.
func userMessage(err error) string {
	switch {
	case errors.Is(err, sandbox.ErrTimeout):
		return "the assistant timed out"
	case errors.Is(err, sandbox.ErrNoResponse):
		return "the assistant returned no answer"
	case errors.Is(err, sandbox.ErrExit):
		return "the assistant exited with an error"
	case errors.Is(err, context.Canceled):
		return "the task was cancelled"
	default:
		var apiErr *github.APIError
		if errors.As(err, &apiErr) {
			return fmt.Sprintf("GitHub rejected the request (HTTP %d)", apiErr.StatusCode)
		}
		return "an internal error occurred"
	}
}

// failureText renders tr's error for the origin surface.
func failureText(what string, tr *dispatch.TaskResult) string {
	return fmt.Sprintf("❌ %s failed: %s (error ID: `%s`)", what, tr.Error, tr.ErrorID)
}

func (b base) authorized(user string) bool {
	if len(b.deps.Config.AuthorizedUsers) == 0 {
		return true
	}
	for _, u := range b.deps.Config.AuthorizedUsers {
		if strings.EqualFold(u, user) {
			return true
		}
	}
	return false
}

// isBot reports whether user is the bot itself, including its app form
// "name[bot]".
func (b base) isBot(user string) bool {
	bot := b.deps.Config.BotUsername
	if bot == "" {
		return false
	}
	return strings.EqualFold(user, bot) || strings.EqualFold(user, bot+"[bot]")
}

// comment posts body on the envelope's thread, logging failures.
func (b base) comment(ctx context.Context, d *dispatch.GitHubData, body string) (*github.Comment, error) {
	c, err := b.deps.GitHub.AddComment(ctx, d.RepoOwner, d.RepoName, d.Number, body)
	if err != nil {
		logging.FromContext(ctx, b.log).Error("Failed to post comment",
			slog.String("repo", d.RepoFullName),
			slog.Int("number", d.Number),
			slog.Any("error", err))
	}
	return c, err
}

// ReplyFailure tells the origin surface of env that it failed without a
// reply of its own, as after a handler panic.
func (d Deps) ReplyFailure(ctx context.Context, env *dispatch.Envelope, tr *dispatch.TaskResult) error {
	text := failureText("Your request", tr)
	switch {
	case env.GitHub != nil:
		g := env.GitHub
		if g.Number == 0 {
			return nil
		}
		_, err := d.GitHub.AddComment(ctx, g.RepoOwner, g.RepoName, g.Number, text)
		return err
	case env.Slack != nil:
		return d.Slack.Respond(ctx, env.Slack.ResponseURL, slackadapter.ResponseEphemeral, text)
	}
	return nil
}
