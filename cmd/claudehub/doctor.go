package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/claudehub/internal/config"
	"github.com/alekspetrov/claudehub/internal/health"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the host and configuration",
		Long: `Check that the sandbox runtime is installed, that CLI credentials are
present and which surfaces the configuration enables.

Exit Codes:
  0    Ready to serve
  1    A required dependency is missing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			report := health.RunChecks(cfg)
			printHealth(cmd.OutOrStdout(), cfg, report)
			if !report.OK() {
				return errors.New("required dependencies are missing")
			}
			return nil
		},
	}
}

func statusStyle(s health.Status) func(...string) string {
	switch s {
	case health.StatusOK:
		return successStyle.Render
	case health.StatusError:
		return failStyle.Render
	default:
		return dimStyle.Render
	}
}

// printHealth renders the report in the compact startup layout.
func printHealth(w io.Writer, cfg *config.Config, report *health.Report) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("CLAUDEHUB v%s", version)))
	fmt.Fprintln(w, dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))

	for _, c := range report.Dependencies {
		line := fmt.Sprintf("%s %-12s %s", c.Status.Symbol(), c.Name, c.Message)
		fmt.Fprintln(w, statusStyle(c.Status)(line))
		if c.Fix != "" && c.Status != health.StatusOK {
			fmt.Fprintf(w, "    %s\n", dimStyle.Render("fix: "+c.Fix))
		}
	}
	fmt.Fprintln(w)

	const cols, colWidth = 3, 16
	for i, f := range report.Features {
		name := f.Name
		if f.Note != "" {
			name += "*"
		}
		fmt.Fprint(w, statusStyle(f.Status)(fmt.Sprintf("%s %-*s", f.Status.Symbol(), colWidth-2, name)))
		if (i+1)%cols == 0 || i == len(report.Features)-1 {
			fmt.Fprintln(w)
		}
	}
	for _, f := range report.Features {
		if f.Note != "" {
			fmt.Fprintf(w, "  * %s: %s\n", f.Name, f.Note)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s:%d\n", labelStyle.Render("Gateway:"), cfg.Server.Host, cfg.Server.Port)
}
