package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
)

// ReviewMarker tags a posted review with the head commit it covers, so a
// redelivered event for the same commit is not reviewed twice.
func ReviewMarker(sha string) string {
	return "<!-- claudehub-review:" + sha + " -->"
}

var reviewWord = regexp.MustCompile(`(?i)\breview\b`)

const reviewInstruction = "Review pull request #%d in %s (%s into %s, head %s). " +
	"Inspect the change with `gh pr view %d` and `gh pr diff %d`, and use git log, blame and show for context. " +
	"Report correctness bugs, security problems, missing tests and notable maintainability issues, " +
	"grouped by severity with file and line references. Do not modify any files."

// prTarget is the pull request state a review covers.
type prTarget struct {
	number int
	sha    string
	head   string
	base   string
	draft  bool
}

// reviewer holds what the automatic and manual review handlers share.
type reviewer struct {
	base
}

func (r reviewer) loadPR(ctx context.Context, d *dispatch.GitHubData, number int) (prTarget, error) {
	pr, err := r.deps.GitHub.GetPullRequest(ctx, d.RepoOwner, d.RepoName, number)
	if err != nil {
		return prTarget{}, err
	}
	return prTarget{number: pr.Number, sha: pr.Head.SHA, head: pr.Head.Ref, base: pr.Base.Ref, draft: pr.Draft}, nil
}

// alreadyReviewed reports whether a comment on the PR carries the marker
// for sha.
func (r reviewer) alreadyReviewed(ctx context.Context, d *dispatch.GitHubData, number int, sha string) (bool, error) {
	comments, err := r.deps.GitHub.ListComments(ctx, d.RepoOwner, d.RepoName, number)
	if err != nil {
		return false, err
	}
	marker := ReviewMarker(sha)
	for _, c := range comments {
		if strings.Contains(c.Body, marker) {
			return true, nil
		}
	}
	return false, nil
}

// review runs the sandbox on pr and posts the result with the marker.
func (r reviewer) review(ctx context.Context, d *dispatch.GitHubData, pr prTarget, typ dispatch.TaskType, user, extra string) *dispatch.TaskResult {
	instruction := fmt.Sprintf(reviewInstruction,
		pr.number, d.RepoFullName, pr.head, pr.base, pr.sha, pr.number, pr.number)
	if extra != "" {
		instruction += "\n\nThe reviewer asked: " + extra
	}
	task := dispatch.NewPullRequestTask(d.RepoFullName, pr.number, typ, user, instruction, pr.head)

	tr := r.run(ctx, task, func(ctx context.Context, answer string) (string, error) {
		body := fmt.Sprintf("## 🤖 Automated review\n\n%s\n\n%s", answer, ReviewMarker(pr.sha))
		c, err := r.deps.GitHub.AddComment(ctx, d.RepoOwner, d.RepoName, pr.number, body)
		if err != nil {
			return "", err
		}
		return c.HTMLURL, nil
	})
	if !tr.Success {
		_, _ = r.deps.GitHub.AddComment(ctx, d.RepoOwner, d.RepoName, pr.number, failureText("Review", tr))
	}
	return tr
}

// PRReviewHandler reviews pull requests when they open or change, and
// after a successful check suite.
type PRReviewHandler struct {
	reviewer
}

// NewPRReviewHandler creates the automatic review handler.
func NewPRReviewHandler(deps Deps) *PRReviewHandler {
	return &PRReviewHandler{reviewer{newBase(deps, dispatch.HandlerPRReview)}}
}

func (h *PRReviewHandler) Kind() dispatch.HandlerKind { return dispatch.HandlerPRReview }

func (h *PRReviewHandler) Events() []string { return []string{"pull_request", "check_suite"} }

func (h *PRReviewHandler) CanHandle(env *dispatch.Envelope) bool {
	d := env.GitHub
	if d == nil || h.isBot(d.Actor) {
		return false
	}
	switch env.Event {
	case "pull_request":
		switch d.Action {
		case "opened", "synchronize", "reopened", "ready_for_review":
			return !d.Draft
		}
	case "check_suite":
		return d.Action == "completed" && d.CheckSuiteConclusion == "success" && len(d.CheckSuitePRs) > 0
	}
	return false
}

func (h *PRReviewHandler) Handle(ctx context.Context, env *dispatch.Envelope) *dispatch.Response {
	d := env.GitHub
	log := logging.FromContext(ctx, h.log)

	var targets []prTarget
	typ := dispatch.TaskPRReview
	if env.Event == "check_suite" {
		typ = dispatch.TaskCheckSuite
		for _, n := range d.CheckSuitePRs {
			pr, err := h.loadPR(ctx, d, n)
			if err != nil {
				log.Error("Failed to load pull request", slog.Int("number", n), slog.Any("error", err))
				continue
			}
			// The suite ran on an older commit; a newer event will cover
			// the current head.
			if pr.sha != d.HeadSHA {
				continue
			}
			targets = append(targets, pr)
		}
	} else {
		targets = append(targets, prTarget{number: d.Number, sha: d.HeadSHA, head: d.HeadBranch, base: d.BaseBranch, draft: d.Draft})
	}

	resp := &dispatch.Response{Message: "no pull requests to review"}
	var reviewed []string
	for _, pr := range targets {
		if pr.draft {
			continue
		}
		done, err := h.alreadyReviewed(ctx, d, pr.number, pr.sha)
		if err != nil {
			log.Error("Failed to list comments", slog.Int("number", pr.number), slog.Any("error", err))
			continue
		}
		if done {
			log.Info("Commit already reviewed",
				slog.Int("number", pr.number),
				slog.String("sha", pr.sha))
			continue
		}
		resp.Result = h.review(ctx, d, pr, typ, d.Actor, "")
		reviewed = append(reviewed, fmt.Sprintf("#%d", pr.number))
	}
	if len(reviewed) > 0 {
		resp.Message = "reviewed " + strings.Join(reviewed, ", ")
	} else if len(targets) > 0 {
		resp.Message = "already reviewed"
	}
	return resp
}

// ManualReviewHandler reviews a pull request on request: a PR comment
// that mentions the bot together with the word "review".
type ManualReviewHandler struct {
	reviewer
	mention *regexp.Regexp
}

// NewManualReviewHandler creates the on-request review handler.
func NewManualReviewHandler(deps Deps) *ManualReviewHandler {
	return &ManualReviewHandler{
		reviewer: reviewer{newBase(deps, dispatch.HandlerManualReview)},
		mention:  mentionPattern(deps.Config.BotUsername),
	}
}

func (h *ManualReviewHandler) Kind() dispatch.HandlerKind { return dispatch.HandlerManualReview }

func (h *ManualReviewHandler) Events() []string { return []string{"issue_comment"} }

func (h *ManualReviewHandler) CanHandle(env *dispatch.Envelope) bool {
	d := env.GitHub
	if d == nil || !d.IsPR || d.Action != "created" || h.isBot(d.Actor) {
		return false
	}
	rest, ok := afterMention(h.mention, d.CommentBody)
	return ok && reviewWord.MatchString(rest)
}

func (h *ManualReviewHandler) Handle(ctx context.Context, env *dispatch.Envelope) *dispatch.Response {
	d := env.GitHub
	if !h.authorized(d.Actor) {
		_, _ = h.comment(ctx, d, unauthorizedText(d.Actor))
		return &dispatch.Response{Message: "unauthorized"}
	}

	pr, err := h.loadPR(ctx, d, d.Number)
	if err != nil {
		errorID := dispatch.NewErrorID()
		logging.FromContext(ctx, h.log).Error("Failed to load pull request",
			slog.Int("number", d.Number),
			slog.String("error_id", errorID),
			slog.Any("error", err))
		tr := &dispatch.TaskResult{Error: userMessage(err), ErrorID: errorID, GitHubURL: d.HTMLURL}
		_, _ = h.comment(ctx, d, failureText("Review", tr))
		return &dispatch.Response{Message: "failed to load pull request", Result: tr}
	}

	rest, _ := afterMention(h.mention, d.CommentBody)
	extra := strings.TrimSpace(reviewWord.ReplaceAllString(rest, ""))
	tr := h.review(ctx, d, pr, dispatch.TaskManualPRReview, d.Actor, extra)
	return &dispatch.Response{Message: fmt.Sprintf("reviewed #%d", pr.number), Result: tr}
}
