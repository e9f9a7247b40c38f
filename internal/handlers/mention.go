package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/alekspetrov/claudehub/internal/dispatch"
)

// mentionPattern matches "@bot" as a whole word, case-insensitively. It
// returns nil when no bot name is configured.
func mentionPattern(bot string) *regexp.Regexp {
	if bot == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|[^\w-])@` + regexp.QuoteMeta(bot) + `\b`)
}

// afterMention finds the first mention in text and returns what follows it.
func afterMention(mention *regexp.Regexp, text string) (string, bool) {
	if mention == nil {
		return "", false
	}
	loc := mention.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(text[loc[1]:]), true
}

func unauthorizedText(user string) string {
	return fmt.Sprintf("@%s you are not authorized to run the assistant in this repository.", user)
}

// MentionHandler answers issue and pull request comments that mention the
// bot, posting the answer as a reply comment.
type MentionHandler struct {
	base
	mention *regexp.Regexp
}

// NewMentionHandler creates the mention handler.
func NewMentionHandler(deps Deps) *MentionHandler {
	return &MentionHandler{
		base:    newBase(deps, dispatch.HandlerMention),
		mention: mentionPattern(deps.Config.BotUsername),
	}
}

func (h *MentionHandler) Kind() dispatch.HandlerKind { return dispatch.HandlerMention }

func (h *MentionHandler) Events() []string {
	return []string{"issue_comment", "pull_request_review_comment"}
}

func (h *MentionHandler) CanHandle(env *dispatch.Envelope) bool {
	d := env.GitHub
	if d == nil || d.Action != "created" || h.isBot(d.Actor) {
		return false
	}
	_, ok := afterMention(h.mention, d.CommentBody)
	return ok
}

func (h *MentionHandler) Handle(ctx context.Context, env *dispatch.Envelope) *dispatch.Response {
	d := env.GitHub
	if !h.authorized(d.Actor) {
		_, _ = h.comment(ctx, d, unauthorizedText(d.Actor))
		return &dispatch.Response{Message: "unauthorized"}
	}

	command, _ := afterMention(h.mention, d.CommentBody)
	if command == "" {
		_, _ = h.comment(ctx, d, fmt.Sprintf("@%s what should I do? Mention me followed by a request, for example `@%s explain this change`.",
			d.Actor, h.deps.Config.BotUsername))
		return &dispatch.Response{Message: "empty command"}
	}

	typ := dispatch.TaskIssueComment
	if d.IsPR {
		typ = dispatch.TaskPullRequestComment
	}
	task := dispatch.TaskFromEnvelope(env, typ, command)

	tr := h.run(ctx, task, func(ctx context.Context, answer string) (string, error) {
		c, err := h.deps.GitHub.AddComment(ctx, d.RepoOwner, d.RepoName, d.Number, answer)
		if err != nil {
			return "", err
		}
		return c.HTMLURL, nil
	})
	if !tr.Success {
		_, _ = h.comment(ctx, d, fmt.Sprintf("@%s %s", d.Actor, failureText("Your request", tr)))
	}
	return &dispatch.Response{Message: "answered", Result: tr}
}
