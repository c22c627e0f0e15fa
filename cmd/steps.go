package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"apiprobe/internal/steps"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newStepsCmd() *cobra.Command {
	var (
		format   string
		category string
	)

	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List the available step phrases",
		Long: `List every step phrase the runner understands. Placeholders:
  {string}  a double-quoted string
  {word}    a run of non-space characters
  {int}     an integer
  {long}    a 64-bit integer
  {float}   a decimal number

String arguments may reference stored values as {{key}}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := steps.Catalogue()
			if err != nil {
				return err
			}
			if category != "" {
				defs = filterCategory(defs, category)
			}

			switch format {
			case "json":
				return printStepsJSON(cmd, defs)
			case "table":
				printStepsTable(cmd, defs)
				return nil
			default:
				return fmt.Errorf("invalid format %q, must be 'table' or 'json'", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table, json)")
	cmd.Flags().StringVar(&category, "category", "", "Only list one category (setup, execute, assert)")
	return cmd
}

func filterCategory(defs []steps.Definition, category string) []steps.Definition {
	var out []steps.Definition
	for _, d := range defs {
		if strings.EqualFold(string(d.Category), category) {
			out = append(out, d)
		}
	}
	return out
}

func printStepsTable(cmd *cobra.Command, defs []steps.Definition) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("CATEGORY"), text.FgHiCyan.Sprint("PHRASE")})
	for _, d := range defs {
		t.AppendRow(table.Row{string(d.Category), d.Phrase})
	}
	t.Render()
}

type stepListing struct {
	Category string `json:"category"`
	Phrase   string `json:"phrase"`
}

func printStepsJSON(cmd *cobra.Command, defs []steps.Definition) error {
	listing := make([]stepListing, 0, len(defs))
	for _, d := range defs {
		listing = append(listing, stepListing{Category: string(d.Category), Phrase: d.Phrase})
	}
	data, err := json.MarshalIndent(listing, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
