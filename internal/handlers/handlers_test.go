package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alekspetrov/claudehub/internal/adapters/github"
	slackadapter "github.com/alekspetrov/claudehub/internal/adapters/slack"
	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/sandbox"
)

const botName = "claudebot"

type fakeRunner struct {
	mu       sync.Mutex
	response string
	err      error
	tasks    []dispatch.TaskContext
}

func (r *fakeRunner) Run(_ context.Context, task dispatch.TaskContext) (*sandbox.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	if r.err != nil {
		return &sandbox.Result{ExitCode: 1, SessionLog: "/tmp/session.log"}, r.err
	}
	return &sandbox.Result{Response: r.response, Mode: sandbox.ModeSentinel}, nil
}

type postedComment struct {
	number int
	body   string
}

type fakeGitHub struct {
	mu        sync.Mutex
	comments  []postedComment
	existing  []*github.Comment
	issues    []*github.IssueInput
	labels    []string
	prs       map[int]*github.PullRequest
	createErr error
}

func (g *fakeGitHub) AddComment(_ context.Context, owner, repo string, number int, body string) (*github.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.comments = append(g.comments, postedComment{number: number, body: body})
	return &github.Comment{ID: int64(len(g.comments)), Body: body,
		HTMLURL: fmt.Sprintf("https://github.com/%s/%s/issues/%d#issuecomment-%d", owner, repo, number, len(g.comments))}, nil
}

func (g *fakeGitHub) ListComments(context.Context, string, string, int) ([]*github.Comment, error) {
	return g.existing, nil
}

func (g *fakeGitHub) CreateIssue(_ context.Context, owner, repo string, in *github.IssueInput) (*github.Issue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.issues = append(g.issues, in)
	n := 100 + len(g.issues)
	return &github.Issue{Number: n, Title: in.Title, HTMLURL: fmt.Sprintf("https://github.com/%s/%s/issues/%d", owner, repo, n)}, nil
}

func (g *fakeGitHub) AddLabels(_ context.Context, _, _ string, _ int, labels []string) error {
	g.labels = append(g.labels, labels...)
	return nil
}

func (g *fakeGitHub) GetPullRequest(_ context.Context, _, _ string, number int) (*github.PullRequest, error) {
	pr, ok := g.prs[number]
	if !ok {
		return nil, &github.APIError{StatusCode: 404, Body: "Not Found"}
	}
	return pr, nil
}

type slackReply struct {
	url, responseType, text string
}

type fakeSlack struct {
	replies []slackReply
}

func (s *fakeSlack) Respond(_ context.Context, url, responseType, text string) error {
	s.replies = append(s.replies, slackReply{url, responseType, text})
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	started  []dispatch.TaskContext
	finished []*dispatch.TaskResult
}

func (n *fakeNotifier) NotifyStart(task dispatch.TaskContext) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, task)
}

func (n *fakeNotifier) NotifyComplete(_ dispatch.TaskContext, result *dispatch.TaskResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, result)
}

type fixture struct {
	runner   *fakeRunner
	gh       *fakeGitHub
	slack    *fakeSlack
	notifier *fakeNotifier
	deps     Deps
}

func newFixture() *fixture {
	f := &fixture{
		runner:   &fakeRunner{response: "the answer"},
		gh:       &fakeGitHub{prs: map[int]*github.PullRequest{}},
		slack:    &fakeSlack{},
		notifier: &fakeNotifier{},
	}
	f.deps = Deps{
		Config:   Config{BotUsername: botName, Defaults: Defaults{Owner: "acme", Repo: "widgets"}},
		Runner:   f.runner,
		GitHub:   f.gh,
		Slack:    f.slack,
		Notifier: f.notifier,
	}
	return f
}

func slashEnvelope(command, text string) *dispatch.Envelope {
	return &dispatch.Envelope{
		ID:       "trigger-1",
		Provider: dispatch.ProviderSlack,
		Source:   slackadapter.SourceSlashCommand,
		Event:    slackadapter.SourceSlashCommand + ":" + command,
		Slack: &dispatch.SlackData{
			TeamID:      "T1",
			ChannelID:   "C1",
			UserID:      "U1",
			UserName:    "alice",
			Command:     command,
			Text:        text,
			ResponseURL: "https://hooks.slack.test/respond",
		},
	}
}

func commentEnvelope(body, actor string, isPR bool) *dispatch.Envelope {
	return &dispatch.Envelope{
		ID:       "delivery-1",
		Provider: dispatch.ProviderGitHub,
		Source:   "issue_comment",
		Event:    "issue_comment",
		GitHub: &dispatch.GitHubData{
			Action:       "created",
			RepoFullName: "acme/widgets",
			RepoOwner:    "acme",
			RepoName:     "widgets",
			Number:       42,
			IsPR:         isPR,
			CommentBody:  body,
			Actor:        actor,
		},
	}
}

func TestSlashHandlerCreatesIssue(t *testing.T) {
	f := newFixture()
	h := NewPlanHandler(f.deps)
	env := slashEnvelope("/plan", "acme/gadgets add OAuth login")

	if !h.CanHandle(env) {
		t.Fatal("CanHandle = false")
	}
	if ack := h.Ack(env); !strings.Contains(ack, "acme/gadgets") {
		t.Errorf("Ack = %q", ack)
	}

	resp := h.Handle(context.Background(), env)
	if resp.Result == nil || !resp.Result.Success {
		t.Fatalf("result = %+v", resp.Result)
	}
	if len(f.runner.tasks) != 1 {
		t.Fatalf("runs = %d", len(f.runner.tasks))
	}
	task := f.runner.tasks[0]
	if task.RepoFullName != "acme/gadgets" || task.Type != dispatch.TaskSlashCommand || task.User != "alice" {
		t.Errorf("task = %+v", task)
	}
	if !strings.Contains(task.Command, "architecture") || !strings.Contains(task.Command, "add OAuth login") {
		t.Errorf("instruction = %q", task.Command)
	}

	if len(f.gh.issues) != 1 {
		t.Fatalf("issues = %d", len(f.gh.issues))
	}
	issue := f.gh.issues[0]
	if issue.Title != "Plan: add OAuth login" || issue.Labels[0] != "plan" || !strings.HasPrefix(issue.Body, "the answer") {
		t.Errorf("issue = %+v", issue)
	}

	if len(f.slack.replies) != 1 {
		t.Fatalf("replies = %d", len(f.slack.replies))
	}
	reply := f.slack.replies[0]
	if reply.responseType != slackadapter.ResponseInChannel || !strings.Contains(reply.text, "acme/gadgets#101") {
		t.Errorf("reply = %+v", reply)
	}
	if resp.Result.GitHubURL != "https://github.com/acme/gadgets/issues/101" {
		t.Errorf("GitHubURL = %q", resp.Result.GitHubURL)
	}
	if len(f.notifier.started) != 1 || len(f.notifier.finished) != 1 {
		t.Errorf("notifications: started=%d finished=%d", len(f.notifier.started), len(f.notifier.finished))
	}
}

func TestSlashHandlerLabels(t *testing.T) {
	tests := []struct {
		handler func(Deps) *SlashHandler
		command string
		label   string
		prefix  string
	}{
		{NewPlanHandler, "/plan", "plan", "Plan: "},
		{NewBugHandler, "/bug", "bug", "Bug analysis: "},
		{NewTestHandler, "/test", "testing", "Test plan: "},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			f := newFixture()
			h := tt.handler(f.deps)
			h.Handle(context.Background(), slashEnvelope(tt.command, "the checkout page"))
			if len(f.gh.issues) != 1 {
				t.Fatalf("issues = %d", len(f.gh.issues))
			}
			got := f.gh.issues[0]
			if got.Labels[0] != tt.label || !strings.HasPrefix(got.Title, tt.prefix) {
				t.Errorf("issue = %+v", got)
			}
			if f.runner.tasks[0].RepoFullName != "acme/widgets" {
				t.Errorf("repo = %q, want defaults", f.runner.tasks[0].RepoFullName)
			}
		})
	}
}

func TestSlashHandlerRejectsBeforeRunning(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		defaults Defaults
		want     string
	}{
		{"empty text", "   ", Defaults{Owner: "acme", Repo: "widgets"}, "Usage: `/plan"},
		{"only repository", "acme/widgets", Defaults{}, "Usage:"},
		{"invalid owner", "-acme/widgets add caching", Defaults{}, "not a valid GitHub repository"},
		{"no defaults", "add caching", Defaults{}, "no default is configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.deps.Config.Defaults = tt.defaults
			h := NewPlanHandler(f.deps)
			env := slashEnvelope("/plan", tt.text)

			if ack := h.Ack(env); !strings.Contains(ack, tt.want) {
				t.Errorf("Ack = %q, want %q", ack, tt.want)
			}
			resp := h.Handle(context.Background(), env)
			if resp.Result != nil {
				t.Errorf("result = %+v, want none", resp.Result)
			}
			if len(f.runner.tasks) != 0 || len(f.gh.issues) != 0 {
				t.Errorf("ran sandbox or created issue")
			}
		})
	}
}

func TestSlashHandlerFailure(t *testing.T) {
	f := newFixture()
	f.runner.err = fmt.Errorf("run: %w", sandbox.ErrTimeout)
	h := NewBugHandler(f.deps)

	resp := h.Handle(context.Background(), slashEnvelope("/bug", "login is broken"))
	tr := resp.Result
	if tr.Success || tr.Error != "the assistant timed out" || !strings.HasPrefix(tr.ErrorID, "err-") {
		t.Fatalf("result = %+v", tr)
	}
	if len(f.gh.issues) != 0 {
		t.Error("issue created after failure")
	}
	reply := f.slack.replies[0]
	if reply.responseType != slackadapter.ResponseEphemeral || !strings.Contains(reply.text, tr.ErrorID) {
		t.Errorf("reply = %+v", reply)
	}
	if strings.Contains(reply.text, "/tmp/session.log") {
		t.Error("reply leaks internals")
	}
	if len(f.notifier.finished) != 1 || f.notifier.finished[0].Success {
		t.Errorf("finished = %+v", f.notifier.finished)
	}
}

func TestSlashHandlerIssueCreationFailure(t *testing.T) {
	f := newFixture()
	f.gh.createErr = &github.APIError{StatusCode: 403, Body: "forbidden"}
	h := NewTestHandler(f.deps)

	resp := h.Handle(context.Background(), slashEnvelope("/test", "payments"))
	if resp.Result.Success || !strings.Contains(resp.Result.Error, "HTTP 403") {
		t.Errorf("result = %+v", resp.Result)
	}
}

func TestKeywordLabels(t *testing.T) {
	tests := []struct {
		title, body string
		want        []string
	}{
		{"App crashes on login", "Stack trace attached", []string{"bug"}},
		{"Feature: support dark mode", "The UI button should toggle", []string{"enhancement", "area:ui"}},
		{"Urgent: API returns 500 in production", "", []string{"priority:high", "area:api"}},
		{"Typo in README", "", []string{"documentation"}},
		{"Debugging notes", "crashing", nil},
	}
	for _, tt := range tests {
		got := KeywordLabels(tt.title, tt.body)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("KeywordLabels(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func issuesEnvelope(action string) *dispatch.Envelope {
	return &dispatch.Envelope{
		Provider: dispatch.ProviderGitHub,
		Event:    "issues",
		GitHub: &dispatch.GitHubData{
			Action:       action,
			RepoFullName: "acme/widgets",
			RepoOwner:    "acme",
			RepoName:     "widgets",
			Number:       7,
			Title:        "Crash when saving",
			Body:         "The app crashes with an exception.",
			Actor:        "octocat",
		},
	}
}

func TestAutoTagHandler(t *testing.T) {
	f := newFixture()
	h := NewAutoTagHandler(f.deps)

	if h.CanHandle(issuesEnvelope("edited")) {
		t.Error("CanHandle(edited) = true")
	}
	env := issuesEnvelope("opened")
	if !h.CanHandle(env) {
		t.Fatal("CanHandle(opened) = false")
	}

	resp := h.Handle(context.Background(), env)
	if !resp.Result.Success {
		t.Fatalf("result = %+v", resp.Result)
	}
	task := f.runner.tasks[0]
	if task.Type != dispatch.TaskAutoTag || task.IssueNumber != 7 {
		t.Errorf("task = %+v", task)
	}
	if sandbox.ProfileFor(task.Type).Name != sandbox.ProfileAutoTag.Name {
		t.Errorf("profile = %s", sandbox.ProfileFor(task.Type).Name)
	}
	if len(f.gh.labels) != 0 || len(f.gh.comments) != 0 {
		t.Errorf("labels=%v comments=%v", f.gh.labels, f.gh.comments)
	}
}

func TestAutoTagFallback(t *testing.T) {
	f := newFixture()
	f.runner.err = sandbox.ErrNoResponse
	h := NewAutoTagHandler(f.deps)

	resp := h.Handle(context.Background(), issuesEnvelope("opened"))
	if resp.Result.Success {
		t.Fatal("expected failed result")
	}
	if strings.Join(f.gh.labels, ",") != "bug" {
		t.Errorf("labels = %v", f.gh.labels)
	}
}

func prEnvelope(action string, draft bool) *dispatch.Envelope {
	return &dispatch.Envelope{
		Provider: dispatch.ProviderGitHub,
		Event:    "pull_request",
		GitHub: &dispatch.GitHubData{
			Action:       action,
			RepoFullName: "acme/widgets",
			RepoOwner:    "acme",
			RepoName:     "widgets",
			Number:       9,
			IsPR:         true,
			HeadSHA:      "abc123",
			HeadBranch:   "feature",
			BaseBranch:   "main",
			Draft:        draft,
			Actor:        "octocat",
		},
	}
}

func TestPRReviewHandler(t *testing.T) {
	f := newFixture()
	h := NewPRReviewHandler(f.deps)

	if h.CanHandle(prEnvelope("opened", true)) {
		t.Error("CanHandle(draft) = true")
	}
	if h.CanHandle(prEnvelope("closed", false)) {
		t.Error("CanHandle(closed) = true")
	}
	env := prEnvelope("synchronize", false)
	if !h.CanHandle(env) {
		t.Fatal("CanHandle(synchronize) = false")
	}

	resp := h.Handle(context.Background(), env)
	if resp.Result == nil || !resp.Result.Success {
		t.Fatalf("resp = %+v", resp)
	}
	task := f.runner.tasks[0]
	if task.Type != dispatch.TaskPRReview || task.PullRequestNumber != 9 || task.BranchName != "feature" {
		t.Errorf("task = %+v", task)
	}
	if len(f.gh.comments) != 1 || !strings.Contains(f.gh.comments[0].body, ReviewMarker("abc123")) {
		t.Fatalf("comments = %+v", f.gh.comments)
	}
}

func TestPRReviewSkipsReviewedCommit(t *testing.T) {
	f := newFixture()
	f.gh.existing = []*github.Comment{{Body: "looks good\n" + ReviewMarker("abc123")}}
	h := NewPRReviewHandler(f.deps)

	resp := h.Handle(context.Background(), prEnvelope("synchronize", false))
	if resp.Result != nil || resp.Message != "already reviewed" {
		t.Errorf("resp = %+v", resp)
	}
	if len(f.runner.tasks) != 0 || len(f.gh.comments) != 0 {
		t.Error("reviewed an already reviewed commit")
	}
}

func TestPRReviewCheckSuite(t *testing.T) {
	f := newFixture()
	f.gh.prs[9] = &github.PullRequest{Number: 9, Head: github.PRRef{Ref: "feature", SHA: "abc123"}, Base: github.PRRef{Ref: "main"}}
	f.gh.prs[10] = &github.PullRequest{Number: 10, Head: github.PRRef{Ref: "other", SHA: "fff999"}}
	f.gh.prs[11] = &github.PullRequest{Number: 11, Draft: true, Head: github.PRRef{Ref: "wip", SHA: "abc123"}}
	h := NewPRReviewHandler(f.deps)

	env := &dispatch.Envelope{
		Provider: dispatch.ProviderGitHub,
		Event:    "check_suite",
		GitHub: &dispatch.GitHubData{
			Action:               "completed",
			RepoFullName:         "acme/widgets",
			RepoOwner:            "acme",
			RepoName:             "widgets",
			HeadSHA:              "abc123",
			CheckSuiteConclusion: "success",
			CheckSuitePRs:        []int{9, 10, 11, 12},
		},
	}
	if !h.CanHandle(env) {
		t.Fatal("CanHandle = false")
	}
	failed := *env.GitHub
	failed.CheckSuiteConclusion = "failure"
	if h.CanHandle(&dispatch.Envelope{Provider: dispatch.ProviderGitHub, Event: "check_suite", GitHub: &failed}) {
		t.Error("CanHandle(failure) = true")
	}

	resp := h.Handle(context.Background(), env)
	if resp.Message != "reviewed #9" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(f.runner.tasks) != 1 || f.runner.tasks[0].Type != dispatch.TaskCheckSuite {
		t.Fatalf("tasks = %+v", f.runner.tasks)
	}
	// CI-triggered reviews run untrusted PR content; they get the same
	// read-only tools as any other review.
	p := sandbox.ProfileFor(f.runner.tasks[0].Type)
	if !p.ReadOnly || p.Name != sandbox.ProfileReview.Name {
		t.Errorf("check_suite profile = %s (read-only %v), want review", p.Name, p.ReadOnly)
	}
}

func TestPRReviewFailurePostsErrorID(t *testing.T) {
	f := newFixture()
	f.runner.err = sandbox.ErrExit
	h := NewPRReviewHandler(f.deps)

	resp := h.Handle(context.Background(), prEnvelope("opened", false))
	if resp.Result.Success {
		t.Fatal("expected failure")
	}
	if len(f.gh.comments) != 1 || !strings.Contains(f.gh.comments[0].body, resp.Result.ErrorID) {
		t.Errorf("comments = %+v", f.gh.comments)
	}
	if strings.Contains(f.gh.comments[0].body, "claudehub-review") {
		t.Error("failure comment carries the review marker")
	}
}

func TestManualReviewHandler(t *testing.T) {
	f := newFixture()
	f.gh.prs[42] = &github.PullRequest{Number: 42, Head: github.PRRef{Ref: "fix", SHA: "def456"}, Base: github.PRRef{Ref: "main"}}
	h := NewManualReviewHandler(f.deps)

	tests := []struct {
		name string
		env  *dispatch.Envelope
		want bool
	}{
		{"review request on PR", commentEnvelope("@claudebot please review the error handling", "octocat", true), true},
		{"review request on issue", commentEnvelope("@claudebot review", "octocat", false), false},
		{"mention without review", commentEnvelope("@claudebot explain this", "octocat", true), false},
		{"review without mention", commentEnvelope("please review", "octocat", true), false},
		{"bot itself", commentEnvelope("@claudebot review", "claudebot[bot]", true), false},
		{"reviewer is not a word match", commentEnvelope("@claudebot reviewers?", "octocat", true), false},
	}
	for _, tt := range tests {
		if got := h.CanHandle(tt.env); got != tt.want {
			t.Errorf("%s: CanHandle = %v, want %v", tt.name, got, tt.want)
		}
	}

	resp := h.Handle(context.Background(), tests[0].env)
	if !resp.Result.Success {
		t.Fatalf("result = %+v", resp.Result)
	}
	task := f.runner.tasks[0]
	if task.Type != dispatch.TaskManualPRReview || task.BranchName != "fix" {
		t.Errorf("task = %+v", task)
	}
	if !strings.Contains(task.Command, "the error handling") {
		t.Errorf("instruction = %q", task.Command)
	}
	if !strings.Contains(f.gh.comments[0].body, ReviewMarker("def456")) {
		t.Errorf("comment = %q", f.gh.comments[0].body)
	}
}

func TestManualReviewMissingPR(t *testing.T) {
	f := newFixture()
	h := NewManualReviewHandler(f.deps)

	resp := h.Handle(context.Background(), commentEnvelope("@claudebot review", "octocat", true))
	if resp.Result == nil || resp.Result.ErrorID == "" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(f.runner.tasks) != 0 {
		t.Error("sandbox ran without a pull request")
	}
	if !strings.Contains(f.gh.comments[0].body, resp.Result.ErrorID) {
		t.Errorf("comment = %q", f.gh.comments[0].body)
	}
}

func TestMentionHandler(t *testing.T) {
	f := newFixture()
	h := NewMentionHandler(f.deps)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"mention", "hey @claudebot explain the parser", true},
		{"mention at start", "@ClaudeBot summarize", true},
		{"no mention", "thanks everyone", false},
		{"longer name", "@claudebotx do it", false},
		{"email", "mail me at me@claudebot.dev", false},
	}
	for _, tt := range tests {
		if got := h.CanHandle(commentEnvelope(tt.body, "octocat", false)); got != tt.want {
			t.Errorf("%s: CanHandle = %v, want %v", tt.name, got, tt.want)
		}
	}

	resp := h.Handle(context.Background(), commentEnvelope("hey @claudebot explain the parser", "octocat", false))
	if !resp.Result.Success {
		t.Fatalf("result = %+v", resp.Result)
	}
	task := f.runner.tasks[0]
	if task.Command != "explain the parser" || task.Type != dispatch.TaskIssueComment || task.IssueNumber != 42 {
		t.Errorf("task = %+v", task)
	}
	if len(f.gh.comments) != 1 || f.gh.comments[0].body != "the answer" {
		t.Errorf("comments = %+v", f.gh.comments)
	}
	if !strings.Contains(resp.Result.GitHubURL, "issuecomment") {
		t.Errorf("GitHubURL = %q", resp.Result.GitHubURL)
	}
}

func TestMentionPattern(t *testing.T) {
	if mentionPattern("") != nil {
		t.Error("empty bot name produced a pattern")
	}
	if _, ok := afterMention(nil, "@anyone hi"); ok {
		t.Error("nil pattern matched")
	}

	re := mentionPattern("claude.bot")
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"@claude.bot fix it", "fix it", true},
		{"@claudexbot fix it", "", false},
		{"ping @CLAUDE.BOT  now ", "now", true},
	}
	for _, tt := range tests {
		got, ok := afterMention(re, tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("afterMention(%q) = %q, %v, want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMentionHandlersCompilePatternOnce(t *testing.T) {
	f := newFixture()
	mention := NewMentionHandler(f.deps)
	manual := NewManualReviewHandler(f.deps)
	if mention.mention == nil || manual.mention == nil {
		t.Fatal("handlers built without a mention pattern")
	}

	before := mention.mention
	mention.CanHandle(commentEnvelope("@claudebot hi", "octocat", false))
	mention.Handle(context.Background(), commentEnvelope("@claudebot hi", "octocat", false))
	if mention.mention != before {
		t.Error("pattern replaced after use")
	}
}

func TestMentionOnPullRequestUsesPRTask(t *testing.T) {
	f := newFixture()
	env := commentEnvelope("@claudebot what does this change do?", "octocat", true)
	env.GitHub.HeadBranch = "feature"
	NewMentionHandler(f.deps).Handle(context.Background(), env)

	task := f.runner.tasks[0]
	if task.Type != dispatch.TaskPullRequestComment || task.PullRequestNumber != 42 || task.IssueNumber != 0 {
		t.Errorf("task = %+v", task)
	}
}

func TestMentionIgnoresBotAndUnauthorized(t *testing.T) {
	f := newFixture()
	f.deps.Config.AuthorizedUsers = []string{"Maintainer"}
	h := NewMentionHandler(f.deps)

	if h.CanHandle(commentEnvelope("@claudebot loop", botName, false)) {
		t.Error("handled the bot's own comment")
	}

	resp := h.Handle(context.Background(), commentEnvelope("@claudebot delete everything", "stranger", false))
	if resp.Message != "unauthorized" || len(f.runner.tasks) != 0 {
		t.Errorf("resp = %+v, runs = %d", resp, len(f.runner.tasks))
	}
	if len(f.gh.comments) != 1 || !strings.Contains(f.gh.comments[0].body, "not authorized") {
		t.Errorf("comments = %+v", f.gh.comments)
	}

	h.Handle(context.Background(), commentEnvelope("@claudebot go", "maintainer", false))
	if len(f.runner.tasks) != 1 {
		t.Error("authorized user was refused")
	}
}

func TestMentionEmptyCommand(t *testing.T) {
	f := newFixture()
	resp := NewMentionHandler(f.deps).Handle(context.Background(), commentEnvelope("@claudebot", "octocat", false))
	if resp.Message != "empty command" || len(f.runner.tasks) != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRegisterOrder(t *testing.T) {
	reg := dispatch.NewRegistry()
	reg.RegisterProvider(github.NewProvider("secret"))
	reg.RegisterProvider(slackadapter.NewProvider("secret"))
	f := newFixture()
	if err := Register(reg, f.deps); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var comment []dispatch.HandlerKind
	for _, r := range reg.Routes() {
		if r.Provider == dispatch.ProviderGitHub && r.Event == "issue_comment" {
			comment = r.Handlers
		}
	}
	if len(comment) != 2 || comment[0] != dispatch.HandlerManualReview || comment[1] != dispatch.HandlerMention {
		t.Errorf("issue_comment bucket = %v", comment)
	}

	h := reg.Route(commentEnvelope("@claudebot review this", "octocat", true))
	if h == nil || h.Kind() != dispatch.HandlerManualReview {
		t.Errorf("routed to %v", h)
	}
	h = reg.Route(commentEnvelope("@claudebot explain", "octocat", true))
	if h == nil || h.Kind() != dispatch.HandlerMention {
		t.Errorf("routed to %v", h)
	}
	if h := reg.Route(slashEnvelope("/bug", "x")); h == nil || h.Kind() != dispatch.HandlerBug {
		t.Errorf("routed /bug to %v", h)
	}
	if h := reg.Route(slashEnvelope("/deploy", "x")); h != nil {
		t.Errorf("routed /deploy to %v", h.Kind())
	}
}

func TestReplyFailure(t *testing.T) {
	f := newFixture()
	tr := &dispatch.TaskResult{Error: "an internal error occurred", ErrorID: "err-deadbeef"}

	if err := f.deps.ReplyFailure(context.Background(), commentEnvelope("@claudebot x", "octocat", false), tr); err != nil {
		t.Fatalf("ReplyFailure(github): %v", err)
	}
	if len(f.gh.comments) != 1 || f.gh.comments[0].number != 42 || !strings.Contains(f.gh.comments[0].body, "err-deadbeef") {
		t.Errorf("comments = %+v", f.gh.comments)
	}

	if err := f.deps.ReplyFailure(context.Background(), slashEnvelope("/plan", "x"), tr); err != nil {
		t.Fatalf("ReplyFailure(slack): %v", err)
	}
	if len(f.slack.replies) != 1 || f.slack.replies[0].responseType != slackadapter.ResponseEphemeral {
		t.Errorf("replies = %+v", f.slack.replies)
	}
}
