package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const githubAPIURL = "https://api.github.com"

// Client is a minimal GitHub REST client covering the operations the
// handlers need: comments, issues, labels and pull request lookups.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retry      RetryOptions
}

// NewClient creates a client against api.github.com.
func NewClient(token string) *Client {
	return NewClientWithBaseURL(token, githubAPIURL)
}

// NewClientWithBaseURL creates a client against a custom base URL (GitHub
// Enterprise or tests).
func NewClientWithBaseURL(token, baseURL string) *Client {
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryOptions(),
	}
}

// SetRetryOptions overrides the retry policy.
func (c *Client) SetRetryOptions(opts RetryOptions) {
	c.retry = opts
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	_, err := c.do(ctx, method, c.baseURL+path, body, result)
	return err
}

// do sends one request to an absolute URL and returns the response
// headers on success.
func (c *Client) do(ctx context.Context, method, url string, body, result any) (http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.Header, nil
}

// AddComment posts a comment on an issue or pull request conversation.
func (c *Client) AddComment(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	return WithWriteRetry(ctx, func() (*Comment, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
		var comment Comment
		if err := c.doRequest(ctx, http.MethodPost, path, map[string]string{"body": body}, &comment); err != nil {
			return nil, err
		}
		return &comment, nil
	}, c.retry)
}

// maxCommentPages bounds ListComments at 10,000 comments.
const maxCommentPages = 100

// ListComments returns every conversation comment, oldest first,
// following the Link header across pages.
func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]*Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=100", c.baseURL, owner, repo, number)
	var all []*Comment
	for page := 0; url != ""; page++ {
		if page == maxCommentPages {
			return nil, fmt.Errorf("comments on %s/%s#%d exceed %d pages", owner, repo, number, maxCommentPages)
		}
		var comments []*Comment
		header, err := WithRetry(ctx, func() (http.Header, error) {
			return c.do(ctx, http.MethodGet, url, nil, &comments)
		}, c.retry)
		if err != nil {
			return nil, err
		}
		all = append(all, comments...)
		url = nextPageURL(header.Get("Link"))
	}
	return all, nil
}

// nextPageURL returns the rel="next" target of a Link header, or "".
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segs[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, input *IssueInput) (*Issue, error) {
	return WithWriteRetry(ctx, func() (*Issue, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
		var issue Issue
		if err := c.doRequest(ctx, http.MethodPost, path, input, &issue); err != nil {
			return nil, err
		}
		return &issue, nil
	}, c.retry)
}

// AddLabels adds labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, repo, number)
		return c.doRequest(ctx, http.MethodPost, path, map[string][]string{"labels": labels}, nil)
	}, c.retry)
}

// GetPullRequest fetches a pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	var pr PullRequest
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}
