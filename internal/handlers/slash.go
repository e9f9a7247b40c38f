package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alekspetrov/claudehub/internal/adapters/github"
	slackadapter "github.com/alekspetrov/claudehub/internal/adapters/slack"
	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
	"github.com/alekspetrov/claudehub/internal/notify"
)

const issueTitleChars = 80

// slashCommand describes one issue-filing slash command.
type slashCommand struct {
	kind    dispatch.HandlerKind
	command string
	noun    string // "Plan", "Bug analysis", ...
	label   string
	arg     string // placeholder shown in usage
	// instruction is formatted with the repository and the user's text.
	instruction string
}

var (
	planCommand = slashCommand{
		kind:    dispatch.HandlerPlan,
		command: "/plan",
		noun:    "Plan",
		label:   "plan",
		arg:     "<feature description>",
		instruction: "Produce an implementation plan for the following feature request in the repository %s.\n" +
			"Cover the architecture, API design, data model changes, risks, and an ordered list of implementation steps " +
			"with the files each step touches. Do not modify any files.\n\nFeature request: %s",
	}
	bugCommand = slashCommand{
		kind:    dispatch.HandlerBug,
		command: "/bug",
		noun:    "Bug analysis",
		label:   "bug",
		arg:     "<bug description>",
		instruction: "Investigate the following bug report in the repository %s.\n" +
			"Produce a root-cause analysis with reproduction steps, the affected code locations, " +
			"and a proposed fix. Do not modify any files.\n\nBug report: %s",
	}
	testCommand = slashCommand{
		kind:    dispatch.HandlerTest,
		command: "/test",
		noun:    "Test plan",
		label:   "testing",
		arg:     "<scope to test>",
		instruction: "Produce a test plan for the following scope in the repository %s.\n" +
			"List the test cases with their inputs and expected results, note edge cases, " +
			"and say which files the tests belong in. Do not modify any files.\n\nScope: %s",
	}
)

// SlashHandler files the answer to a slash command as a new GitHub issue
// and replies in Slack with a preview and the issue link.
type SlashHandler struct {
	base
	cmd slashCommand
}

// NewPlanHandler handles /plan.
func NewPlanHandler(deps Deps) *SlashHandler { return newSlashHandler(deps, planCommand) }

// NewBugHandler handles /bug.
func NewBugHandler(deps Deps) *SlashHandler { return newSlashHandler(deps, bugCommand) }

// NewTestHandler handles /test.
func NewTestHandler(deps Deps) *SlashHandler { return newSlashHandler(deps, testCommand) }

func newSlashHandler(deps Deps, cmd slashCommand) *SlashHandler {
	return &SlashHandler{base: newBase(deps, cmd.kind), cmd: cmd}
}

func (h *SlashHandler) Kind() dispatch.HandlerKind { return h.cmd.kind }

func (h *SlashHandler) Events() []string {
	return []string{slackadapter.SourceSlashCommand + ":" + h.cmd.command}
}

func (h *SlashHandler) CanHandle(env *dispatch.Envelope) bool {
	return env.Slack != nil && env.Slack.Command == h.cmd.command
}

// Usage is the reply to a command without text.
func (h *SlashHandler) Usage() string {
	return fmt.Sprintf("Usage: `%s [owner/repo] %s`", h.cmd.command, h.cmd.arg)
}

// prepare resolves the target repository. A non-empty problem is the
// reply to send instead of running.
func (h *SlashHandler) prepare(env *dispatch.Envelope) (ref RepoRef, problem string) {
	ref = ParseRepositoryFromText(env.Slack.Text, h.deps.Config.Defaults)
	switch {
	case ref.Remaining == "":
		return ref, h.Usage()
	case ref.Owner == "" && ref.Repo == "":
		return ref, fmt.Sprintf("No repository given and no default is configured. %s", h.Usage())
	case !ref.Valid():
		return ref, fmt.Sprintf("❌ `%s` is not a valid GitHub repository.", ref.FullName())
	}
	return ref, ""
}

// Ack is the immediate reply sent before Handle runs.
func (h *SlashHandler) Ack(env *dispatch.Envelope) string {
	ref, problem := h.prepare(env)
	if problem != "" {
		return problem
	}
	return fmt.Sprintf("⏳ Working on a %s for `%s`. I'll post the issue here when it's ready.",
		lowerFirst(h.cmd.noun), ref.FullName())
}

func (h *SlashHandler) Handle(ctx context.Context, env *dispatch.Envelope) *dispatch.Response {
	s := env.Slack
	ref, problem := h.prepare(env)
	if problem != "" {
		// Already sent as the acknowledgment.
		return &dispatch.Response{Message: problem}
	}

	instruction := fmt.Sprintf(h.cmd.instruction, ref.FullName(), ref.Remaining)
	task := dispatch.NewIssueTask(ref.FullName(), 0, dispatch.TaskSlashCommand, s.UserName, instruction)

	var issue *github.Issue
	tr := h.run(ctx, task, func(ctx context.Context, answer string) (string, error) {
		var err error
		issue, err = h.deps.GitHub.CreateIssue(ctx, ref.Owner, ref.Repo, &github.IssueInput{
			Title:  h.cmd.noun + ": " + notify.Truncate(ref.Remaining, issueTitleChars),
			Body:   h.issueBody(answer, s),
			Labels: []string{h.cmd.label},
		})
		if err != nil {
			return "", err
		}
		return issue.HTMLURL, nil
	})

	var reply, responseType string
	if tr.Success {
		responseType = slackadapter.ResponseInChannel
		reply = fmt.Sprintf("✅ %s created: <%s|%s#%d>\n>%s",
			h.cmd.noun, issue.HTMLURL, ref.FullName(), issue.Number,
			notify.Truncate(tr.ResponsePreview, notify.ResponsePreviewChars))
	} else {
		responseType = slackadapter.ResponseEphemeral
		reply = failureText(h.cmd.noun, tr)
	}
	if err := h.deps.Slack.Respond(ctx, s.ResponseURL, responseType, reply); err != nil {
		logging.FromContext(ctx, h.log).Error("Failed to reply in Slack",
			slog.String("channel", s.ChannelID),
			slog.Any("error", err))
	}

	return &dispatch.Response{Message: reply, Result: tr}
}

func (h *SlashHandler) issueBody(answer string, s *dispatch.SlackData) string {
	return fmt.Sprintf("%s\n\n---\n_Requested by @%s in Slack with `%s`._", answer, s.UserName, h.cmd.command)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
