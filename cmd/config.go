package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config [keys...]",
		Short: "Show the resolved configuration",
		Long: `Show configuration values after applying the environment overlay,
environment variables and --set overrides, together with the source each
value came from. With no arguments every key from the files and overrides
is listed; keys only set through environment variables must be named.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, _, err := root.loadConfig()
			if err != nil {
				return err
			}

			keys := args
			if len(keys) == 0 {
				keys = resolver.Keys()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Environment: %s\n", resolver.Environment())

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{text.FgHiCyan.Sprint("KEY"), text.FgHiCyan.Sprint("VALUE"), text.FgHiCyan.Sprint("SOURCE")})
			for _, key := range keys {
				value, ok := resolver.Lookup(key)
				if !ok {
					t.AppendRow(table.Row{key, text.FgHiBlack.Sprint("-"), text.FgHiBlack.Sprint("unset")})
					continue
				}
				t.AppendRow(table.Row{key, value, resolver.Source(key)})
			}
			t.Render()
			return nil
		},
	}
}
