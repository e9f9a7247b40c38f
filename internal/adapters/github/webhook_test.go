package github

import (
	"errors"
	"net/http"
	"testing"

	"github.com/alekspetrov/claudehub/internal/dispatch"
)

const issueCommentBody = `{
	"action": "created",
	"issue": {
		"number": 42,
		"title": "Login broken",
		"body": "The login form is broken",
		"state": "open",
		"html_url": "https://github.com/acme/widgets/issues/42",
		"labels": [{"id": 1, "name": "bug"}]
	},
	"comment": {
		"id": 900,
		"body": "@claudebot why does this fail?",
		"user": {"login": "octocat"},
		"html_url": "https://github.com/acme/widgets/issues/42#issuecomment-900"
	},
	"repository": {
		"name": "widgets",
		"full_name": "acme/widgets",
		"owner": {"login": "acme"}
	},
	"sender": {"login": "octocat"}
}`

func githubHeader(event, delivery, signature string) http.Header {
	h := http.Header{}
	h.Set(HeaderEvent, event)
	if delivery != "" {
		h.Set(HeaderDelivery, delivery)
	}
	if signature != "" {
		h.Set(HeaderSignature, signature)
	}
	return h
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("mysecret")
	payload := []byte(`{"action":"opened"}`)
	valid := Sign(payload, secret)

	tests := []struct {
		name      string
		secret    []byte
		payload   []byte
		signature string
		wantErr   bool
	}{
		{"valid signature", secret, payload, valid, false},
		{"tampered payload", secret, []byte(`{"action":"closed"}`), valid, true},
		{"wrong secret", []byte("other"), payload, valid, true},
		{"missing prefix", secret, payload, valid[len("sha256="):], true},
		{"missing signature", secret, payload, "", true},
		{"non-hex signature", secret, payload, "sha256=zzzz", true},
		{"no secret configured", nil, payload, valid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.payload, tt.signature, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, dispatch.ErrUnauthorized) {
				t.Errorf("error %v does not wrap ErrUnauthorized", err)
			}
		})
	}
}

func TestProviderVerifyUsesHeader(t *testing.T) {
	p := NewProvider("s3cret")
	body := []byte(issueCommentBody)

	if err := p.Verify(body, githubHeader("issue_comment", "d1", Sign(body, []byte("s3cret")))); err != nil {
		t.Errorf("Verify() with valid header error = %v", err)
	}
	if err := p.Verify(body, githubHeader("issue_comment", "d1", "")); err == nil {
		t.Error("Verify() without signature header should fail")
	}
}

func TestParseIssueComment(t *testing.T) {
	p := NewProvider("s3cret")
	env, err := p.Parse([]byte(issueCommentBody), githubHeader("issue_comment", "delivery-42", ""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if env.ID != "delivery-42" {
		t.Errorf("ID = %q, want delivery-42", env.ID)
	}
	if env.Provider != dispatch.ProviderGitHub || env.Event != "issue_comment" || env.Source != "issue_comment" {
		t.Errorf("unexpected routing fields: %+v", env)
	}
	d := env.GitHub
	if d.RepoFullName != "acme/widgets" || d.RepoOwner != "acme" || d.RepoName != "widgets" {
		t.Errorf("repo fields = %q %q %q", d.RepoFullName, d.RepoOwner, d.RepoName)
	}
	if d.Number != 42 || d.IsPR {
		t.Errorf("Number = %d IsPR = %v, want 42 false", d.Number, d.IsPR)
	}
	if d.CommentBody != "@claudebot why does this fail?" || d.Actor != "octocat" || d.CommentID != 900 {
		t.Errorf("comment fields = %+v", d)
	}
	if len(d.Labels) != 1 || d.Labels[0] != "bug" {
		t.Errorf("Labels = %v", d.Labels)
	}
	if err := p.Validate(env); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if got := p.Describe(env); got != "github issue_comment.created acme/widgets#42 by octocat" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestParseIssueCommentOnPullRequest(t *testing.T) {
	body := `{"action":"created","issue":{"number":7,"pull_request":{"url":"x"}},"comment":{"body":"hi","user":{"login":"a"}},"repository":{"name":"w","full_name":"acme/w","owner":{"login":"acme"}}}`
	env, err := NewProvider("s").Parse([]byte(body), githubHeader("issue_comment", "", ""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !env.GitHub.IsPR {
		t.Error("IsPR = false, want true for comment on a pull request")
	}
	if env.ID == "" {
		t.Error("ID should be generated when delivery header is absent")
	}
}

func TestParsePullRequestAndCheckSuite(t *testing.T) {
	p := NewProvider("s")

	pr := `{"action":"opened","number":5,"pull_request":{"number":5,"title":"Add cache","draft":true,"head":{"ref":"feat","sha":"abc123"},"base":{"ref":"main"}},"repository":{"name":"w","full_name":"acme/w","owner":{"login":"acme"}},"sender":{"login":"dev"}}`
	env, err := p.Parse([]byte(pr), githubHeader("pull_request", "d", ""))
	if err != nil {
		t.Fatalf("Parse(pull_request) error = %v", err)
	}
	d := env.GitHub
	if !d.IsPR || d.Number != 5 || d.HeadSHA != "abc123" || d.HeadBranch != "feat" || d.BaseBranch != "main" || !d.Draft {
		t.Errorf("pull_request data = %+v", d)
	}

	cs := `{"action":"completed","check_suite":{"head_branch":"feat","head_sha":"abc123","conclusion":"success","pull_requests":[{"number":5},{"number":6}]},"repository":{"name":"w","full_name":"acme/w","owner":{"login":"acme"}}}`
	env, err = p.Parse([]byte(cs), githubHeader("check_suite", "d2", ""))
	if err != nil {
		t.Fatalf("Parse(check_suite) error = %v", err)
	}
	d = env.GitHub
	if d.CheckSuiteConclusion != "success" || len(d.CheckSuitePRs) != 2 || d.HeadSHA != "abc123" {
		t.Errorf("check_suite data = %+v", d)
	}
	if err := p.Validate(env); err != nil {
		t.Errorf("Validate(check_suite) error = %v", err)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	p := NewProvider("s")

	if _, err := p.Parse([]byte(`{}`), http.Header{}); !errors.Is(err, dispatch.ErrInvalidEnvelope) {
		t.Errorf("missing event header: error = %v, want ErrInvalidEnvelope", err)
	}
	if _, err := p.Parse([]byte(`not json`), githubHeader("issues", "d", "")); !errors.Is(err, dispatch.ErrInvalidEnvelope) {
		t.Errorf("bad json: error = %v, want ErrInvalidEnvelope", err)
	}
}

func TestValidate(t *testing.T) {
	p := NewProvider("s")
	tests := []struct {
		name    string
		env     *dispatch.Envelope
		wantErr bool
	}{
		{"no data", &dispatch.Envelope{Event: "issues"}, true},
		{"issue without number", &dispatch.Envelope{Event: "issues", GitHub: &dispatch.GitHubData{RepoOwner: "a", RepoName: "b"}}, true},
		{"issue without repo", &dispatch.Envelope{Event: "issues", GitHub: &dispatch.GitHubData{Number: 1}}, true},
		{"check suite without sha", &dispatch.Envelope{Event: "check_suite", GitHub: &dispatch.GitHubData{RepoOwner: "a", RepoName: "b"}}, true},
		{"unrelated event", &dispatch.Envelope{Event: "star", GitHub: &dispatch.GitHubData{}}, false},
		{"complete issue", &dispatch.Envelope{Event: "issues", GitHub: &dispatch.GitHubData{RepoOwner: "a", RepoName: "b", Number: 3}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Validate(tt.env); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
