package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskType selects the permission profile granted to a sandbox run.
type TaskType string

const (
	TaskIssueComment       TaskType = "issue_comment"
	TaskPullRequestComment TaskType = "pull_request_comment"
	TaskPRReview           TaskType = "pr_review"
	TaskManualPRReview     TaskType = "manual_pr_review"
	TaskAutoTag            TaskType = "auto_tag"
	TaskCheckSuite         TaskType = "check_suite"
	TaskSlashCommand       TaskType = "slash_command"
)

// TaskContext describes one execution. Build it with NewIssueTask or
// NewPullRequestTask so that at most one of IssueNumber and
// PullRequestNumber is set; it is passed by value and never mutated.
type TaskContext struct {
	RepoFullName      string
	IssueNumber       int
	PullRequestNumber int
	Type              TaskType
	User              string
	Command           string
	BranchName        string
	// StartTime is stamped when the task is accepted, before the sandbox
	// launches, so durations include launch latency.
	StartTime time.Time
}

// NewIssueTask creates a task bound to an issue (number 0 means none,
// e.g. a Slack command that files a new issue).
func NewIssueTask(repo string, issue int, typ TaskType, user, command string) TaskContext {
	return TaskContext{
		RepoFullName: repo,
		IssueNumber:  issue,
		Type:         typ,
		User:         user,
		Command:      command,
		StartTime:    time.Now(),
	}
}

// NewPullRequestTask creates a task bound to a pull request.
func NewPullRequestTask(repo string, pr int, typ TaskType, user, command, branch string) TaskContext {
	return TaskContext{
		RepoFullName:      repo,
		PullRequestNumber: pr,
		Type:              typ,
		User:              user,
		Command:           command,
		BranchName:        branch,
		StartTime:         time.Now(),
	}
}

// TaskFromEnvelope builds a task for env's thread: a pull request task
// when the GitHub event concerns one, an issue task otherwise. Slack
// envelopes carry no repository, so only the user is filled in.
func TaskFromEnvelope(env *Envelope, typ TaskType, command string) TaskContext {
	switch {
	case env.GitHub != nil:
		d := env.GitHub
		if d.IsPR {
			return NewPullRequestTask(d.RepoFullName, d.Number, typ, d.Actor, command, d.HeadBranch)
		}
		return NewIssueTask(d.RepoFullName, d.Number, typ, d.Actor, command)
	case env.Slack != nil:
		return NewIssueTask("", 0, typ, env.Slack.UserName, command)
	default:
		return NewIssueTask("", 0, typ, "", command)
	}
}

// TaskTypeFor is the task type handler kind runs env as. Callers use it
// to describe a task the handler never got to build, e.g. after a panic.
func TaskTypeFor(kind HandlerKind, env *Envelope) TaskType {
	switch kind {
	case HandlerPlan, HandlerBug, HandlerTest:
		return TaskSlashCommand
	case HandlerAutoTag:
		return TaskAutoTag
	case HandlerPRReview:
		if env.Event == "check_suite" {
			return TaskCheckSuite
		}
		return TaskPRReview
	case HandlerManualReview:
		return TaskManualPRReview
	}
	if env.GitHub != nil && env.GitHub.IsPR {
		return TaskPullRequestComment
	}
	return TaskIssueComment
}

// Number returns the issue or pull request number, whichever is set.
func (t TaskContext) Number() int {
	if t.PullRequestNumber != 0 {
		return t.PullRequestNumber
	}
	return t.IssueNumber
}

// IsPullRequest reports whether the task targets a pull request.
func (t TaskContext) IsPullRequest() bool {
	return t.PullRequestNumber != 0
}

// Owner returns the owner half of RepoFullName.
func (t TaskContext) Owner() string {
	owner, _, _ := strings.Cut(t.RepoFullName, "/")
	return owner
}

// Repo returns the repository half of RepoFullName.
func (t TaskContext) Repo() string {
	_, repo, _ := strings.Cut(t.RepoFullName, "/")
	return repo
}

// GitHubURL links to the thread the task came from, or the repository
// itself when no number is set.
func (t TaskContext) GitHubURL() string {
	base := "https://github.com/" + t.RepoFullName
	switch {
	case t.PullRequestNumber != 0:
		return fmt.Sprintf("%s/pull/%d", base, t.PullRequestNumber)
	case t.IssueNumber != 0:
		return fmt.Sprintf("%s/issues/%d", base, t.IssueNumber)
	default:
		return base
	}
}

// TaskResult is the outcome of one execution. When Success is true
// ResponsePreview is meaningful; otherwise Error is.
type TaskResult struct {
	Success         bool
	ResponsePreview string
	GitHubURL       string
	Duration        time.Duration
	Error           string
	// ErrorID correlates the user-facing failure message with logs.
	ErrorID string
}

// NewErrorID returns a short stable identifier for a user-visible failure.
func NewErrorID() string {
	return "err-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
