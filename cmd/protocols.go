package cmd

import (
	"apiprobe/internal/protocol"
	"apiprobe/internal/protocol/builtin"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newProtocolsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "List the registered protocol clients",
		Long: `List the protocol clients steps can use: the built-in catalogue plus
any aliases declared in config/protocols.yml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, resources, err := root.loadConfig()
			if err != nil {
				return err
			}

			registry := protocol.NewRegistry(resolver, builtin.Catalogue())
			if err := registry.ApplyDescriptorFile(resources); err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{text.FgHiCyan.Sprint("PROTOCOL"), text.FgHiCyan.Sprint("DESCRIPTION")})
			for _, d := range registry.Descriptors() {
				t.AppendRow(table.Row{d.Protocol, d.Description})
			}
			t.Render()
			return nil
		},
	}
}
