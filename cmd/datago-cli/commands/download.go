package commands

import (
	"datago-harvester/cmd/datago-cli/utils"
	"datago-harvester/lib/serviceutil"
	"datago-harvester/services/harvest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	downloadIDs   *[]string
	downloadLimit *int
)

func init() {
	downloadIDs = downloadCmd.Flags().StringSlice("ids", nil, "Download only these data ids.")
	downloadLimit = downloadCmd.Flags().Int("limit", 0, "Download at most this many items; 0 means all.")
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download [--ids <id,id,...>] [--limit <n>]",
	Short: "Download the files of the enriched items into per-id directories.",
	Run: func(cmd *cobra.Command, args []string) {
		p := newPipeline(cmd.Context())

		report, err := p.DownloadFromCheckpoint(cmd.Context(), p.Config.DetailCheckpoint, harvest.Selection{
			IDs:   *downloadIDs,
			Limit: *downloadLimit,
		})
		if err != nil {
			serviceutil.Fatal("failed to download files (run `detail` first?)", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"outcome", "count"})
		t.AppendRow(table.Row{"succeeded", report.SuccessCount})
		t.AppendRow(table.Row{"failed", report.FailedCount})
		t.AppendRow(table.Row{"skipped", report.SkippedCount})
		t.Render()

		if report.FailedCount > 0 {
			ft := utils.NewTable()
			ft.AppendHeader(table.Row{"data id", "title", "reason"})
			for _, entry := range report.FailedItems {
				ft.AppendRow(table.Row{entry.DataID, entry.Title, entry.Reason})
			}
			ft.Render()
		}
	},
}
