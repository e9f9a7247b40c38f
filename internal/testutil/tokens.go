// Package testutil holds credentials for tests. They are obviously fake
// so that secret scanning never flags them.
package testutil

const (
	FakeGitHubToken         = "test-github-token"
	FakeGitHubWebhookSecret = "test-github-webhook-secret"

	FakeSlackBotToken      = "test-slack-bot-token"
	FakeSlackSigningSecret = "test-slack-signing-secret"

	FakeAnthropicKey = "test-anthropic-api-key"

	// FakeSlackResponseURL stands in for a slash command response_url.
	FakeSlackResponseURL = "https://hooks.slack.test/commands/T000/000/TEST"
)
