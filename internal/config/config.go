// Package config loads the claudehub configuration file and applies the
// environment overrides for secrets and repository defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/claudehub/internal/dedup"
	"github.com/alekspetrov/claudehub/internal/gateway"
	"github.com/alekspetrov/claudehub/internal/handlers"
	"github.com/alekspetrov/claudehub/internal/logging"
	"github.com/alekspetrov/claudehub/internal/maintenance"
	"github.com/alekspetrov/claudehub/internal/notify"
	"github.com/alekspetrov/claudehub/internal/sandbox"
	"github.com/alekspetrov/claudehub/internal/webhooks"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the main configuration
type Config struct {
	Server        *gateway.Config     `yaml:"server"`
	Logging       *logging.Config     `yaml:"logging"`
	GitHub        *GitHubConfig       `yaml:"github"`
	Slack         *SlackConfig        `yaml:"slack"`
	Defaults      handlers.Defaults   `yaml:"defaults"`
	Sandbox       *sandbox.Config     `yaml:"sandbox"`
	Notifications *notify.Config      `yaml:"notifications"`
	Webhooks      *webhooks.Config    `yaml:"webhooks"`
	Store         *dedup.Config       `yaml:"store"`
	Maintenance   *maintenance.Config `yaml:"maintenance"`
	Bot           *BotConfig          `yaml:"bot"`
}

// GitHubConfig holds the GitHub credentials.
type GitHubConfig struct {
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhook_secret"`
	// APIURL overrides https://api.github.com, e.g. for GitHub Enterprise.
	APIURL string `yaml:"api_url,omitempty"`
}

// SlackConfig holds the Slack app credentials.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token"`
	SigningSecret string `yaml:"signing_secret"`
	APIURL        string `yaml:"api_url,omitempty"`
}

// BotConfig identifies the bot account.
type BotConfig struct {
	Username string `yaml:"username"`
	// AuthorizedUsers may trigger mention-based runs. Empty allows everyone.
	AuthorizedUsers []string `yaml:"authorized_users,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server:        gateway.DefaultConfig(),
		Logging:       logging.DefaultConfig(),
		GitHub:        &GitHubConfig{},
		Slack:         &SlackConfig{},
		Sandbox:       sandbox.DefaultConfig(),
		Notifications: notify.DefaultConfig(),
		Webhooks:      webhooks.DefaultConfig(),
		Store:         dedup.DefaultConfig(),
		Maintenance:   maintenance.DefaultConfig(),
		Bot:           &BotConfig{Username: "claudebot"},
	}
}

// Load reads path, expands ${VAR} references and applies the environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	config.fillMissing()
	config.expandPaths()
	return config, nil
}

// applyEnv overlays the recognised environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	c.fillMissing()
	set("GITHUB_TOKEN", &c.GitHub.Token)
	set("GITHUB_WEBHOOK_SECRET", &c.GitHub.WebhookSecret)
	set("SLACK_BOT_TOKEN", &c.Slack.BotToken)
	set("SLACK_SIGNING_SECRET", &c.Slack.SigningSecret)
	set("BOT_USERNAME", &c.Bot.Username)
	set("DEFAULT_GITHUB_OWNER", &c.Defaults.Owner)
	set("DEFAULT_GITHUB_REPO", &c.Defaults.Repo)
	set("ANTHROPIC_API_KEY", &c.Sandbox.AnthropicAPIKey)

	if v, ok := lookup("CLAUDEHUB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CLAUDEHUB_PORT %q is not a number", ErrInvalid, v)
		}
		c.Server.Port = port
	}
	return nil
}

// fillMissing restores defaults for sections a file set to null.
func (c *Config) fillMissing() {
	d := DefaultConfig()
	if c.Server == nil {
		c.Server = d.Server
	}
	if c.Logging == nil {
		c.Logging = d.Logging
	}
	if c.GitHub == nil {
		c.GitHub = d.GitHub
	}
	if c.Slack == nil {
		c.Slack = d.Slack
	}
	if c.Sandbox == nil {
		c.Sandbox = d.Sandbox
	}
	if c.Notifications == nil {
		c.Notifications = d.Notifications
	}
	if c.Webhooks == nil {
		c.Webhooks = d.Webhooks
	}
	if c.Store == nil {
		c.Store = d.Store
	}
	if c.Maintenance == nil {
		c.Maintenance = d.Maintenance
	}
	if c.Bot == nil {
		c.Bot = d.Bot
	}
}

func (c *Config) expandPaths() {
	c.Sandbox.WorkspaceRoot = expandPath(c.Sandbox.WorkspaceRoot)
	c.Sandbox.SessionLogDir = expandPath(c.Sandbox.SessionLogDir)
	c.Sandbox.Credentials.Dir = expandPath(c.Sandbox.Credentials.Dir)
	c.Store.Path = expandPath(c.Store.Path)
	switch c.Logging.Output {
	case "", "stdout", "stderr":
	default:
		c.Logging.Output = expandPath(c.Logging.Output)
	}
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file can hold tokens.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".claudehub", "config.yaml")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	c.fillMissing()

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d", ErrInvalid, c.Server.Port)
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Notifications.MinDuration < 0 {
		return fmt.Errorf("%w: notifications.min_duration must not be negative", ErrInvalid)
	}
	if err := c.validateDefaults(); err != nil {
		return err
	}
	if c.Store.Window <= 0 {
		return fmt.Errorf("%w: store.dedup_window must be positive", ErrInvalid)
	}
	if err := c.Maintenance.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, ep := range c.Webhooks.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("%w: webhook endpoint %q has no url", ErrInvalid, ep.Name)
		}
		for _, ev := range ep.Events {
			if !webhooks.IsKnownEvent(ev) {
				return fmt.Errorf("%w: webhook endpoint %q subscribes to unknown event %q", ErrInvalid, ep.Name, ev)
			}
		}
	}
	return nil
}

// validateDefaults checks the default repository when one is configured.
func (c *Config) validateDefaults() error {
	if c.Defaults.Owner == "" && c.Defaults.Repo == "" {
		return nil
	}
	ref := handlers.ParseRepositoryFromText("", c.Defaults)
	if !ref.Valid() {
		return fmt.Errorf("%w: default repository %q is not a valid owner/repo", ErrInvalid, strings.Trim(c.Defaults.Owner+"/"+c.Defaults.Repo, "/"))
	}
	return nil
}

// Warnings lists settings that are valid but leave a surface inert.
func (c *Config) Warnings() []string {
	c.fillMissing()
	var out []string
	if c.GitHub.WebhookSecret == "" {
		out = append(out, "github.webhook_secret is empty: every GitHub delivery will be rejected")
	}
	if c.Slack.SigningSecret == "" {
		out = append(out, "slack.signing_secret is empty: every Slack command will be rejected")
	}
	if c.GitHub.Token == "" {
		out = append(out, "github.token is empty: handlers cannot post to GitHub")
	}
	if c.Bot.Username == "" {
		out = append(out, "bot.username is empty: mention handlers never match")
	}
	return out
}
