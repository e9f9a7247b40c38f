package main

import (
	"fmt"

	"github.com/alekspetrov/claudehub/internal/adapters/github"
	"github.com/alekspetrov/claudehub/internal/adapters/slack"
	"github.com/alekspetrov/claudehub/internal/config"
	"github.com/alekspetrov/claudehub/internal/dedup"
	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/gateway"
	"github.com/alekspetrov/claudehub/internal/handlers"
	"github.com/alekspetrov/claudehub/internal/maintenance"
	"github.com/alekspetrov/claudehub/internal/notify"
	"github.com/alekspetrov/claudehub/internal/sandbox"
	"github.com/alekspetrov/claudehub/internal/webhooks"
)

// app is the fully wired service.
type app struct {
	cfg       *config.Config
	store     *dedup.Store
	notifier  *notify.Notifier
	feed      *notify.Feed
	registry  *dispatch.Registry
	server    *gateway.Server
	scheduler *maintenance.Scheduler
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func handlerConfig(cfg *config.Config) handlers.Config {
	return handlers.Config{
		BotUsername:     cfg.Bot.Username,
		AuthorizedUsers: cfg.Bot.AuthorizedUsers,
		Defaults:        cfg.Defaults,
	}
}

// newRegistry registers both providers and every handler in order.
func newRegistry(cfg *config.Config, deps handlers.Deps) (*dispatch.Registry, error) {
	reg := dispatch.NewRegistry()
	reg.RegisterProvider(github.NewProvider(cfg.GitHub.WebhookSecret))
	reg.RegisterProvider(slack.NewProvider(cfg.Slack.SigningSecret))
	if err := handlers.Register(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}

func newGitHubClient(cfg *config.GitHubConfig) *github.Client {
	if cfg.APIURL != "" {
		return github.NewClientWithBaseURL(cfg.Token, cfg.APIURL)
	}
	return github.NewClient(cfg.Token)
}

func newSlackClient(cfg *config.SlackConfig) *slack.Client {
	if cfg.APIURL != "" {
		return slack.NewClientWithBaseURL(cfg.BotToken, cfg.APIURL)
	}
	return slack.NewClient(cfg.BotToken)
}

// newNotifier wires the live feed as an unsuppressed observer and, when
// configured, the Slack ops channel and outbound webhooks.
func newNotifier(cfg *config.Config, slackClient *slack.Client) (*notify.Notifier, *notify.Feed) {
	feed := notify.NewFeed(0)
	n := notify.New(cfg.Notifications)
	n.AddObserver(feed)
	if cfg.Slack.BotToken != "" && cfg.Notifications.SlackChannel != "" {
		n.AddChannel(notify.NewSlackChannel(slackClient, cfg.Notifications.SlackChannel))
	}
	if m := webhooks.NewManager(cfg.Webhooks); m.Enabled() {
		n.AddChannel(notify.NewWebhookChannel(m))
	}
	return n, feed
}

// buildApp wires every component from cfg. The caller owns a.store.
func buildApp(cfg *config.Config) (*app, error) {
	runtime, err := sandbox.NewRuntime(cfg.Sandbox)
	if err != nil {
		return nil, fmt.Errorf("sandbox runtime: %w", err)
	}
	runner, err := sandbox.NewRunner(cfg.Sandbox, runtime, sandbox.Identity{
		GitHubToken: cfg.GitHub.Token,
		BotUsername: cfg.Bot.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox runner: %w", err)
	}

	store, err := dedup.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	slackClient := newSlackClient(cfg.Slack)
	notifier, feed := newNotifier(cfg, slackClient)

	deps := handlers.Deps{
		Config:   handlerConfig(cfg),
		Runner:   runner,
		GitHub:   newGitHubClient(cfg.GitHub),
		Slack:    slackClient,
		Notifier: notifier,
	}
	registry, err := newRegistry(cfg, deps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	server := gateway.NewServer(cfg.Server, registry,
		gateway.WithDeduper(store),
		gateway.WithErrorNotifier(notifier),
		gateway.WithFailureReplier(deps.ReplyFailure),
		gateway.WithFeed(feed),
		gateway.WithVersion(version),
		gateway.WithDrainTimeout(cfg.Sandbox.Timeout),
	)

	scheduler, err := maintenance.NewScheduler(cfg.Maintenance, maintenance.Targets{
		SessionLogDir:   cfg.Sandbox.SessionLogDir,
		WorkspaceRoot:   cfg.Sandbox.WorkspaceRoot,
		WorkspaceMaxAge: 2 * cfg.Sandbox.Timeout,
		Deliveries:      store,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		feed:      feed,
		registry:  registry,
		server:    server,
		scheduler: scheduler,
	}, nil
}
