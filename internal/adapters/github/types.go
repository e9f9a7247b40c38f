package github

import "time"

// Issue represents a GitHub issue. Pull requests are issues too; the
// PullRequest field is non-nil for them.
type Issue struct {
	ID          int64         `json:"id"`
	Number      int           `json:"number"`
	Title       string        `json:"title"`
	Body        string        `json:"body"`
	State       string        `json:"state"`
	Labels      []Label       `json:"labels"`
	User        User          `json:"user"`
	HTMLURL     string        `json:"html_url"`
	PullRequest *IssuePRLinks `json:"pull_request,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// IssuePRLinks is present on issues that are pull requests.
type IssuePRLinks struct {
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
}

// Label represents a GitHub label.
type Label struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User represents a GitHub user.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

// Repository represents a GitHub repository.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    User   `json:"owner"`
	HTMLURL  string `json:"html_url"`
}

// Comment represents an issue or pull request conversation comment.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID      int64   `json:"id"`
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	State   string  `json:"state"`
	Draft   bool    `json:"draft"`
	HTMLURL string  `json:"html_url"`
	User    User    `json:"user"`
	Head    PRRef   `json:"head"`
	Base    PRRef   `json:"base"`
	Labels  []Label `json:"labels"`
}

// PRRef is the head or base of a pull request.
type PRRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// IssueInput is the request body for creating an issue.
type IssueInput struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// Webhook payloads. Only the fields the normalizer reads are declared.

type issuesPayload struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

type issueCommentPayload struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Comment    Comment    `json:"comment"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

type pullRequestPayload struct {
	Action      string      `json:"action"`
	Number      int         `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
	Repository  Repository  `json:"repository"`
	Sender      User        `json:"sender"`
}

type reviewCommentPayload struct {
	Action      string      `json:"action"`
	Comment     Comment     `json:"comment"`
	PullRequest PullRequest `json:"pull_request"`
	Repository  Repository  `json:"repository"`
	Sender      User        `json:"sender"`
}

type checkSuitePayload struct {
	Action     string `json:"action"`
	CheckSuite struct {
		ID           int64  `json:"id"`
		HeadBranch   string `json:"head_branch"`
		HeadSHA      string `json:"head_sha"`
		Status       string `json:"status"`
		Conclusion   string `json:"conclusion"`
		PullRequests []struct {
			Number int `json:"number"`
		} `json:"pull_requests"`
	} `json:"check_suite"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

// genericPayload covers events the normalizer has no dedicated type for.
type genericPayload struct {
	Action     string     `json:"action"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}
