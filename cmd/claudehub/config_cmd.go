package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/claudehub/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage claudehub configuration",
		Long: `Inspect and validate the claudehub configuration.

Configuration File Location:
  Default: ~/.claudehub/config.yaml
  Override with --config flag`,
	}

	cmd.AddCommand(
		newConfigValidateCmd(),
		newConfigShowCmd(),
		newConfigPathCmd(),
	)
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration file with environment overrides applied and
check it. Settings that are valid but leave a surface inert, such as an
empty webhook secret, are reported as warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintln(out, failStyle.Render("✗ "+err.Error()))
				return err
			}
			for _, w := range cfg.Warnings() {
				fmt.Fprintln(out, dimStyle.Render("! "+w))
			}
			fmt.Fprintln(out, successStyle.Render("✓ configuration is valid"))
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(maskSecrets(cfg))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			path := cfgFile
			if path == "" {
				path = config.DefaultConfigPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	}
}

// maskSecrets returns a copy of cfg with credentials replaced.
func maskSecrets(cfg *config.Config) *config.Config {
	masked := *cfg
	gh := *cfg.GitHub
	sl := *cfg.Slack
	sb := *cfg.Sandbox
	gh.Token = mask(gh.Token)
	gh.WebhookSecret = mask(gh.WebhookSecret)
	sl.BotToken = mask(sl.BotToken)
	sl.SigningSecret = mask(sl.SigningSecret)
	sb.AnthropicAPIKey = mask(sb.AnthropicAPIKey)
	masked.GitHub, masked.Slack, masked.Sandbox = &gh, &sl, &sb
	return &masked
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
