package commands

import (
	"datago-harvester/cmd/datago-cli/utils"
	"datago-harvester/lib/serviceutil"
	"datago-harvester/services/harvest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	uploadIDs      *[]string
	uploadFilename *string
	uploadRetry    *bool
)

func init() {
	uploadIDs = uploadCmd.Flags().StringSlice("ids", nil, "Upload only these data ids.")
	uploadFilename = uploadCmd.Flags().String("filename", "", "Override the derived filename; only sensible with a single id.")
	uploadRetry = uploadCmd.Flags().Bool("retry-failed", false, "Re-upload the failures of the previous run, minus policy exclusions.")
	rootCmd.AddCommand(uploadCmd)
}

var uploadCmd = &cobra.Command{
	Use:   "upload [--ids <id,id,...>] [--retry-failed]",
	Short: "Push downloaded files to the intake endpoint.",
	Run: func(cmd *cobra.Command, args []string) {
		p := newPipeline(cmd.Context())

		report, err := p.Upload(cmd.Context(), harvest.UploadOptions{
			IDs:            *uploadIDs,
			CustomFilename: *uploadFilename,
			RetryFailed:    *uploadRetry,
		})
		if err != nil {
			serviceutil.Fatal("failed to upload files (run `download` first?)", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"outcome", "count"})
		t.AppendRow(table.Row{"succeeded", report.SuccessCount})
		t.AppendRow(table.Row{"failed", report.FailedCount})
		t.AppendRow(table.Row{"zip excluded", report.FilteredZipCount})
		t.AppendRow(table.Row{"format mismatch", report.FormatMismatchCount})
		t.Render()

		if report.FailedCount > 0 {
			ft := utils.NewTable()
			ft.AppendHeader(table.Row{"data id", "title", "reason"})
			for _, entry := range report.FailedItems {
				ft.AppendRow(table.Row{entry.DataID, entry.Title, entry.Reason})
			}
			ft.Render()
		}
		if report.FormatMismatchCount > 0 {
			mt := utils.NewTable()
			mt.AppendHeader(table.Row{"data id", "declared", "actual"})
			for _, entry := range report.FormatMismatchItems {
				mt.AppendRow(table.Row{entry.DataID, entry.MetaFormat, entry.RealExt})
			}
			mt.Render()
		}
	},
}
