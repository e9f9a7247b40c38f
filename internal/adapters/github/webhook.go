package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
)

// Header names used by GitHub webhook deliveries.
const (
	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
)

// Provider verifies and normalizes GitHub webhook deliveries.
type Provider struct {
	secret []byte
	now    func() time.Time
	log    *slog.Logger
}

// NewProvider creates a GitHub provider. An empty secret rejects every
// delivery.
func NewProvider(webhookSecret string) *Provider {
	return &Provider{
		secret: []byte(webhookSecret),
		now:    time.Now,
		log:    logging.WithComponent("github"),
	}
}

// Kind implements dispatch.Provider.
func (p *Provider) Kind() dispatch.ProviderKind { return dispatch.ProviderGitHub }

// Verify checks the X-Hub-Signature-256 header against the raw body.
func (p *Provider) Verify(body []byte, header http.Header) error {
	return VerifySignature(body, header.Get(HeaderSignature), p.secret)
}

// VerifySignature checks a "sha256=<hex>" signature over payload. The
// comparison is constant time.
func VerifySignature(payload []byte, signature string, secret []byte) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", dispatch.ErrUnauthorized)
	}
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return fmt.Errorf("%w: missing sha256 signature", dispatch.ErrUnauthorized)
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", dispatch.ErrUnauthorized)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return fmt.Errorf("%w: signature mismatch", dispatch.ErrUnauthorized)
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 value for payload. Used by tests
// and by the outbound webhook channel.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Parse normalizes a verified delivery into an Envelope.
func (p *Provider) Parse(body []byte, header http.Header) (*dispatch.Envelope, error) {
	event := header.Get(HeaderEvent)
	if event == "" {
		return nil, fmt.Errorf("%w: missing %s header", dispatch.ErrInvalidEnvelope, HeaderEvent)
	}

	data, err := parsePayload(event, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", dispatch.ErrInvalidEnvelope, event, err)
	}

	data.DeliveryID = header.Get(HeaderDelivery)
	id := data.DeliveryID
	if id == "" {
		id = uuid.NewString()
	}

	env := &dispatch.Envelope{
		ID:        id,
		Timestamp: p.now(),
		Provider:  dispatch.ProviderGitHub,
		Source:    event,
		GitHub:    data,
	}
	env.Event = p.EventType(env)

	p.log.Debug("Normalized delivery",
		slog.String("delivery_id", data.DeliveryID),
		slog.String("summary", p.Describe(env)))
	return env, nil
}

// EventType is the raw GitHub event name.
func (p *Provider) EventType(env *dispatch.Envelope) string {
	return env.Source
}

// Describe renders a one-line summary of the envelope.
func (p *Provider) Describe(env *dispatch.Envelope) string {
	d := env.GitHub
	if d == nil {
		return "github " + env.Event
	}
	var b strings.Builder
	fmt.Fprintf(&b, "github %s", env.Event)
	if d.Action != "" {
		fmt.Fprintf(&b, ".%s", d.Action)
	}
	if d.RepoFullName != "" {
		fmt.Fprintf(&b, " %s", d.RepoFullName)
		if d.Number != 0 {
			fmt.Fprintf(&b, "#%d", d.Number)
		}
	}
	if d.Actor != "" {
		fmt.Fprintf(&b, " by %s", d.Actor)
	}
	return b.String()
}

// Validate checks that the identifiers handlers rely on are present for
// the event types they consume.
func (p *Provider) Validate(env *dispatch.Envelope) error {
	d := env.GitHub
	if d == nil {
		return fmt.Errorf("%w: no github data", dispatch.ErrInvalidEnvelope)
	}
	switch env.Event {
	case "issues", "issue_comment", "pull_request", "pull_request_review_comment":
		if d.RepoOwner == "" || d.RepoName == "" {
			return fmt.Errorf("%w: repository missing", dispatch.ErrInvalidEnvelope)
		}
		if d.Number <= 0 {
			return fmt.Errorf("%w: issue or pull request number missing", dispatch.ErrInvalidEnvelope)
		}
	case "check_suite":
		if d.RepoOwner == "" || d.RepoName == "" {
			return fmt.Errorf("%w: repository missing", dispatch.ErrInvalidEnvelope)
		}
		if d.HeadSHA == "" {
			return fmt.Errorf("%w: head sha missing", dispatch.ErrInvalidEnvelope)
		}
	}
	return nil
}

func parsePayload(event string, body []byte) (*dispatch.GitHubData, error) {
	data := &dispatch.GitHubData{}

	switch event {
	case "issues":
		var pl issuesPayload
		if err := json.Unmarshal(body, &pl); err != nil {
			return nil, err
		}
		fillRepo(data, pl.Repository)
		fillIssue(data, pl.Issue)
		data.Action = pl.Action
		data.Actor = pl.Sender.Login

	case "issue_comment":
		var pl issueCommentPayload
		if err := json.Unmarshal(body, &pl); err != nil {
			return nil, err
		}
		fillRepo(data, pl.Repository)
		fillIssue(data, pl.Issue)
		data.Action = pl.Action
		data.Actor = pl.Comment.User.Login
		data.CommentID = pl.Comment.ID
		data.CommentBody = pl.Comment.Body
		if pl.Comment.HTMLURL != "" {
			data.HTMLURL = pl.Comment.HTMLURL
		}

	case "pull_request":
		var pl pullRequestPayload
		if err := json.Unmarshal(body, &pl); err != nil {
			return nil, err
		}
		fillRepo(data, pl.Repository)
		fillPullRequest(data, pl.PullRequest)
		data.Action = pl.Action
		data.Actor = pl.Sender.Login

	case "pull_request_review_comment":
		var pl reviewCommentPayload
		if err := json.Unmarshal(body, &pl); err != nil {
			return nil, err
		}
		fillRepo(data, pl.Repository)
		fillPullRequest(data, pl.PullRequest)
		data.Action = pl.Action
		data.Actor = pl.Comment.User.Login
		data.CommentID = pl.Comment.ID
		data.CommentBody = pl.Comment.Body

	case "check_suite":
		var pl checkSuitePayload
		if err := json.Unmarshal(body, &pl); err != nil {
			return nil, err
		}
		fillRepo(data, pl.Repository)
		data.Action = pl.Action
		data.Actor = pl.Sender.Login
		data.HeadSHA = pl.CheckSuite.HeadSHA
		data.HeadBranch = pl.CheckSuite.HeadBranch
		data.CheckSuiteConclusion = pl.CheckSuite.Conclusion
		for _, pr := range pl.CheckSuite.PullRequests {
			data.CheckSuitePRs = append(data.CheckSuitePRs, pr.Number)
		}

	default:
		var pl genericPayload
		if err := json.Unmarshal(body, &pl); err != nil {
			return nil, err
		}
		fillRepo(data, pl.Repository)
		data.Action = pl.Action
		data.Actor = pl.Sender.Login
	}

	return data, nil
}

func fillRepo(data *dispatch.GitHubData, repo Repository) {
	data.RepoFullName = repo.FullName
	data.RepoName = repo.Name
	data.RepoOwner = repo.Owner.Login
	if data.RepoOwner == "" || data.RepoName == "" {
		if owner, name, ok := strings.Cut(repo.FullName, "/"); ok {
			data.RepoOwner, data.RepoName = owner, name
		}
	}
}

func fillIssue(data *dispatch.GitHubData, issue Issue) {
	data.Number = issue.Number
	data.Title = issue.Title
	data.Body = issue.Body
	data.HTMLURL = issue.HTMLURL
	data.IsPR = issue.PullRequest != nil
	for _, l := range issue.Labels {
		data.Labels = append(data.Labels, l.Name)
	}
}

func fillPullRequest(data *dispatch.GitHubData, pr PullRequest) {
	data.Number = pr.Number
	data.IsPR = true
	data.Title = pr.Title
	data.Body = pr.Body
	data.HTMLURL = pr.HTMLURL
	data.HeadSHA = pr.Head.SHA
	data.HeadBranch = pr.Head.Ref
	data.BaseBranch = pr.Base.Ref
	data.Draft = pr.Draft
	for _, l := range pr.Labels {
		data.Labels = append(data.Labels, l.Name)
	}
}
