package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/claudehub/internal/sandbox"
)

func newExtractCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "extract <file|->",
		Short: "Extract the final answer from a session log",
		Long: `Run the response extraction rules on a saved session log (or raw CLI
output) and print the answer together with the rule that produced it.

Examples:
  claudehub extract ~/.claudehub/sessions/acme-widgets-42-1700000000.log
  docker logs sandbox | claudehub extract -
  claudehub extract session.log --raw > answer.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			output, err := sandbox.ReadSessionLog(in)
			if err != nil {
				return fmt.Errorf("read session log: %w", err)
			}
			ex, err := sandbox.Extract(output)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, ex.Text)
				return nil
			}
			mode := successStyle.Render(string(ex.Mode))
			if ex.Mode.Degraded() {
				mode = failStyle.Render(string(ex.Mode) + " (degraded)")
			}
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Mode:"), mode)
			fmt.Fprintln(out, boxStyle.Render(ex.Text))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print only the answer text")
	return cmd
}
