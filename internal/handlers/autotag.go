package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
	"github.com/alekspetrov/claudehub/internal/notify"
)

const issueBodyChars = 2000

// keywordRules map words in an issue to labels, in output order.
var keywordRules = []struct {
	label string
	words []string
}{
	{"bug", []string{"bug", "error", "crash", "crashes", "broken", "fails", "failure", "exception", "panic", "regression"}},
	{"enhancement", []string{"feature", "enhancement", "support", "improve", "improvement", "proposal"}},
	{"documentation", []string{"docs", "documentation", "readme", "typo"}},
	{"question", []string{"question", "how", "why", "help"}},
	{"priority:high", []string{"urgent", "critical", "outage", "security", "vulnerability", "production"}},
	{"area:api", []string{"api", "endpoint", "endpoints", "rest", "graphql"}},
	{"area:ui", []string{"ui", "button", "css", "layout", "frontend"}},
	{"area:ci", []string{"ci", "workflow", "pipeline", "build"}},
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// KeywordLabels picks labels for an issue from words in its title and
// body. It is the fallback when the sandbox could not label the issue.
func KeywordLabels(title, body string) []string {
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(title+"\n"+body), -1) {
		words[w] = true
	}
	var labels []string
	for _, rule := range keywordRules {
		for _, w := range rule.words {
			if words[w] {
				labels = append(labels, rule.label)
				break
			}
		}
	}
	return labels
}

// AutoTagHandler labels newly opened issues.
type AutoTagHandler struct {
	base
}

// NewAutoTagHandler creates the auto-tag handler.
func NewAutoTagHandler(deps Deps) *AutoTagHandler {
	return &AutoTagHandler{base: newBase(deps, dispatch.HandlerAutoTag)}
}

func (h *AutoTagHandler) Kind() dispatch.HandlerKind { return dispatch.HandlerAutoTag }

func (h *AutoTagHandler) Events() []string { return []string{"issues"} }

func (h *AutoTagHandler) CanHandle(env *dispatch.Envelope) bool {
	d := env.GitHub
	return d != nil && d.Action == "opened" && !d.IsPR && !h.isBot(d.Actor)
}

func (h *AutoTagHandler) Handle(ctx context.Context, env *dispatch.Envelope) *dispatch.Response {
	d := env.GitHub
	instruction := fmt.Sprintf(
		"Label issue #%d in %s. Read it with `gh issue view %d`, list the existing labels with `gh label list`, "+
			"then apply the labels that fit (type, area, priority) with `gh issue edit %d --add-label`. "+
			"Only use labels that already exist. Finish with a one-line summary of the labels you applied.\n\n"+
			"Title: %s\n\nBody:\n%s",
		d.Number, d.RepoFullName, d.Number, d.Number, d.Title, notify.Truncate(d.Body, issueBodyChars))
	task := dispatch.NewIssueTask(d.RepoFullName, d.Number, dispatch.TaskAutoTag, d.Actor, instruction)

	// The sandbox applies labels itself; nothing is posted on success.
	tr := h.run(ctx, task, func(context.Context, string) (string, error) { return "", nil })
	if tr.Success {
		return &dispatch.Response{Message: "labelled", Result: tr}
	}

	log := logging.FromContext(ctx, h.log)
	labels := KeywordLabels(d.Title, d.Body)
	if len(labels) == 0 {
		log.Info("No fallback labels matched", slog.Int("number", d.Number))
		return &dispatch.Response{Message: "no labels", Result: tr}
	}
	if err := h.deps.GitHub.AddLabels(ctx, d.RepoOwner, d.RepoName, d.Number, labels); err != nil {
		log.Error("Failed to apply fallback labels",
			slog.Int("number", d.Number),
			slog.String("error_id", tr.ErrorID),
			slog.Any("error", err))
		return &dispatch.Response{Message: "labelling failed", Result: tr}
	}
	log.Warn("Applied fallback labels",
		slog.Int("number", d.Number),
		slog.Any("labels", labels),
		slog.String("error_id", tr.ErrorID))
	return &dispatch.Response{Message: "fallback labels: " + strings.Join(labels, ", "), Result: tr}
}
