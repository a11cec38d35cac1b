package commands

import (
	"log/slog"

	"datago-harvester/cmd/datago-cli/utils"
	"datago-harvester/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var detailLimit *int

func init() {
	detailLimit = detailCmd.Flags().Int("limit", 0, "Enrich at most this many filtered items; 0 means all.")
	rootCmd.AddCommand(detailCmd)
}

var detailCmd = &cobra.Command{
	Use:   "detail",
	Short: "Filter the list checkpoint and enrich survivors with detail-page metadata.",
	Run: func(cmd *cobra.Command, args []string) {
		p := newPipeline(cmd.Context())

		items, err := p.EnrichFromCheckpoint(cmd.Context(), p.Config.ListCheckpoint, *detailLimit)
		if err != nil {
			serviceutil.Fatal("failed to enrich items (run `list` first?)", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"data id", "title", "extension", "download"})
		for _, item := range items {
			t.AppendRow(table.Row{item.DataID, item.Title, item.Extension, item.HasDownloadBtn})
		}
		t.Render()

		slog.Info("detail checkpoint written", "items", len(items), "file", p.Config.DetailCheckpoint)
	},
}
