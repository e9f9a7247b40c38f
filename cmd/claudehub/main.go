package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "claudehub",
		Short: "Run an AI assistant from GitHub and Slack",
		Long: `claudehub receives GitHub webhooks and Slack slash commands, runs the
matching command in a sandboxed AI CLI and replies where the request came from.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.claudehub/config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newRoutesCmd(),
		newExtractCmd(),
		newConfigCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show claudehub version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "claudehub v%s\n", version)
		},
	}
}
