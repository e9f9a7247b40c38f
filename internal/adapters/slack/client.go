package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Response types accepted by response_url and the immediate ack.
const (
	ResponseEphemeral = slack.ResponseTypeEphemeral
	ResponseInChannel = slack.ResponseTypeInChannel
)

// Client posts to the Slack Web API and to slash command response URLs.
type Client struct {
	api        *slack.Client
	httpClient *http.Client
}

// NewClient creates a client against slack.com.
func NewClient(botToken string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		api:        slack.New(botToken, slack.OptionHTTPClient(httpClient)),
		httpClient: httpClient,
	}
}

// NewClientWithBaseURL creates a client against a custom API URL (for
// testing).
func NewClientWithBaseURL(botToken, baseURL string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		api:        slack.New(botToken, slack.OptionAPIURL(baseURL), slack.OptionHTTPClient(httpClient)),
		httpClient: httpClient,
	}
}

// PostMessage posts text, optionally with blocks, to a channel and
// returns the message timestamp.
func (c *Client) PostMessage(ctx context.Context, channel, text string, blocks ...slack.Block) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", fmt.Errorf("slack post to %s: %w", channel, err)
	}
	return ts, nil
}

// Respond posts a follow-up message to a slash command response_url.
func (c *Client) Respond(ctx context.Context, responseURL, responseType, text string) error {
	if responseURL == "" {
		return fmt.Errorf("slack respond: empty response_url")
	}
	if responseType == "" {
		responseType = ResponseEphemeral
	}
	msg := &slack.WebhookMessage{
		Text:         text,
		ResponseType: responseType,
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, c.httpClient, msg); err != nil {
		return fmt.Errorf("slack respond: %w", err)
	}
	return nil
}

// Ack is the JSON body returned synchronously to a slash command.
type Ack struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// NewAck builds an ephemeral acknowledgement.
func NewAck(text string) Ack {
	return Ack{ResponseType: ResponseEphemeral, Text: text}
}
