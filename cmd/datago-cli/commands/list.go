package commands

import (
	"log/slog"
	"strings"

	"datago-harvester/cmd/datago-cli/utils"
	"datago-harvester/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listMaxPages *int

func init() {
	listMaxPages = listCmd.Flags().Int("max-pages", 0, "Stop after this many search pages; 0 traverses all of them.")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list <keyword>",
	Short: "Scrape the portal's search results for a keyword into the list checkpoint.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := newPipeline(cmd.Context())

		items, err := p.CollectList(cmd.Context(), args[0], *listMaxPages)
		if err != nil {
			serviceutil.Fatal("failed to collect search results", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"data id", "title", "provider", "formats"})
		for _, item := range items {
			t.AppendRow(table.Row{
				item.DataID, item.Title, item.Provider,
				strings.Join(item.FormatTypes, " "),
			})
		}
		t.Render()

		slog.Info("list checkpoint written", "items", len(items), "file", p.Config.ListCheckpoint)
	},
}
