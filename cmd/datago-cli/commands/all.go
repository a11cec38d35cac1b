package commands

import (
	"log/slog"
	"time"

	"datago-harvester/lib/serviceutil"
	"datago-harvester/services/harvest"

	"github.com/spf13/cobra"
)

var (
	allMaxPages *int
	allLimit    *int
)

func init() {
	allMaxPages = allCmd.Flags().Int("max-pages", 0, "Stop listing after this many search pages; 0 traverses all of them.")
	allLimit = allCmd.Flags().Int("limit", 0, "Process at most this many filtered items; 0 means all.")
	rootCmd.AddCommand(allCmd)
}

var allCmd = &cobra.Command{
	Use:   "all <keyword>",
	Short: "Run the full pipeline: list, detail, download, upload.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := newPipeline(cmd.Context())

		t1 := time.Now()
		err := p.RunAll(cmd.Context(), harvest.RunAllOptions{
			Keyword:  args[0],
			MaxPages: *allMaxPages,
			Limit:    *allLimit,
		})
		if err != nil {
			serviceutil.Fatal("pipeline run failed", err)
		}

		slog.Info("pipeline finished", "seconds", time.Since(t1).Seconds())
	},
}
