package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/claudehub/internal/config"
	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/handlers"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Show the routing table",
		Long: `Print the registered providers and, for each (provider, event) bucket,
the handlers in the order they are tried. The first handler that accepts
an event wins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultConfigPath()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			reg, err := newRegistry(cfg, handlers.Deps{Config: handlerConfig(cfg)})
			if err != nil {
				return err
			}
			printRoutes(cmd.OutOrStdout(), reg)
			return nil
		},
	}
}

func printRoutes(w io.Writer, reg *dispatch.Registry) {
	var kinds []string
	for _, p := range reg.Providers() {
		kinds = append(kinds, string(p.Kind()))
	}
	fmt.Fprintln(w, titleStyle.Render("Routes"))
	fmt.Fprintf(w, "%s %s\n\n", labelStyle.Render("Providers:"), strings.Join(kinds, ", "))

	for _, route := range reg.Routes() {
		names := make([]string, len(route.Handlers))
		for i, h := range route.Handlers {
			names[i] = string(h)
		}
		fmt.Fprintf(w, "  %-8s %-34s %s\n",
			dimStyle.Render(string(route.Provider)),
			labelStyle.Render(route.Event),
			strings.Join(names, " → "))
	}
}
