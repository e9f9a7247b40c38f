package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/claudehub/internal/health"
	"github.com/alekspetrov/claudehub/internal/logging"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook gateway",
		Long: `Start the HTTP gateway that receives GitHub webhooks on /webhooks/github
and Slack slash commands on /webhooks/slack.

The gateway also serves /health and a live lifecycle event feed on
/ws/events, and runs the maintenance schedule in the background.

Examples:
  claudehub serve
  claudehub serve --port 8080
  claudehub serve --config ./claudehub.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if err := logging.Init(cfg.Logging); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			log := logging.WithComponent("serve")
			printHealth(cmd.OutOrStdout(), cfg, health.RunChecks(cfg))
			for _, w := range cfg.Warnings() {
				log.Warn(w)
			}

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.store.Close() }()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					log.Info("Shutting down", slog.String("signal", sig.String()))
					cancel()
				case <-ctx.Done():
				}
			}()

			if err := a.scheduler.Start(ctx); err != nil {
				return err
			}
			defer a.scheduler.Stop()

			log.Info("claudehub starting",
				slog.String("version", version),
				slog.Int("routes", len(a.registry.Routes())),
				slog.Any("notify_channels", a.notifier.Channels()))

			err = a.server.Start(ctx)
			a.notifier.Wait()
			return err
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}
