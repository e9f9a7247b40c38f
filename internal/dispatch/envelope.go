// Package dispatch holds the provider-agnostic model of an inbound event
// (the Envelope), the task types derived from it, and the registry that
// routes envelopes to handlers.
package dispatch

import (
	"errors"
	"net/http"
	"time"
)

// ProviderKind identifies a supported source protocol.
type ProviderKind string

const (
	ProviderGitHub ProviderKind = "github"
	ProviderSlack  ProviderKind = "slack"
)

var (
	// ErrUnauthorized is returned by signature verification failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidEnvelope is returned when a payload cannot be normalized
	// or is missing required identifiers.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is the canonical representation of one inbound event. It is
// built once by a provider's normalizer and never mutated afterwards.
type Envelope struct {
	ID        string
	Timestamp time.Time
	Provider  ProviderKind
	// Source is the raw protocol name as reported by the sender, e.g.
	// "issue_comment" or "slash_command".
	Source string
	// Event is the routing key: "slash_command:/plan", "issue_comment", ...
	Event  string
	GitHub *GitHubData
	Slack  *SlackData
}

// GitHubData is the subset of a GitHub webhook payload handlers rely on.
type GitHubData struct {
	Action       string
	DeliveryID   string
	RepoFullName string
	RepoOwner    string
	RepoName     string
	Number       int
	IsPR         bool
	Title        string
	Body         string
	Labels       []string
	CommentID    int64
	CommentBody  string
	Actor        string
	HTMLURL      string
	HeadSHA      string
	HeadBranch   string
	BaseBranch   string
	Draft        bool
	// CheckSuiteConclusion and CheckSuitePRs are only set for check_suite events.
	CheckSuiteConclusion string
	CheckSuitePRs        []int
}

// SlackData is the subset of a Slack slash-command payload handlers rely on.
type SlackData struct {
	TeamID      string
	TeamDomain  string
	ChannelID   string
	ChannelName string
	UserID      string
	UserName    string
	Command     string
	Text        string
	ResponseURL string
	TriggerID   string
}

// Provider is the capability set every source protocol implements. The
// set of providers is closed: see ProviderKind.
type Provider interface {
	Kind() ProviderKind
	// Verify checks that body was sent by the provider. It must be called
	// with the raw, undecoded request body.
	Verify(body []byte, header http.Header) error
	// Parse normalizes a verified request into an Envelope.
	Parse(body []byte, header http.Header) (*Envelope, error)
	// EventType derives the routing key from already-extracted fields.
	EventType(env *Envelope) string
	// Describe renders a one-line summary for logs.
	Describe(env *Envelope) string
	// Validate checks that the identifiers handlers need are present.
	Validate(env *Envelope) error
}

// RepoFullName returns the repository the envelope refers to, if the
// provider carries one.
func (e *Envelope) RepoFullName() string {
	if e.GitHub != nil {
		return e.GitHub.RepoFullName
	}
	return ""
}

// DeliveryKey is the provider-assigned identifier used to recognise a
// redelivery: the GitHub delivery ID or the Slack trigger ID. It is empty
// when the provider sent none; such envelopes are never deduplicated.
func (e *Envelope) DeliveryKey() string {
	switch {
	case e.GitHub != nil:
		return e.GitHub.DeliveryID
	case e.Slack != nil:
		return e.Slack.TriggerID
	}
	return ""
}
