package commands

import (
	"context"
	"fmt"
	"os"

	"datago-harvester/lib/configutil"
	"datago-harvester/lib/restyutil"
	"datago-harvester/lib/scrapers/datago"
	"datago-harvester/lib/serviceutil"
	"datago-harvester/lib/telemetry"
	"datago-harvester/services/harvest"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "datago-cli",
	Short: "datago-cli scrapes the open data portal and ships files to the intake endpoint.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

var (
	configPath  *string
	verbose     *bool
	dumpDir     *string
	keywords    *[]string
	extensions  *[]string
	downloadDir *string
	listFile    *string
	detailFile  *string
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "harvester.json5", "The pipeline config file; missing file means built-in defaults.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
	dumpDir = rootCmd.PersistentFlags().String("dump-html", "", "When set, dump every scraped page's raw HTML into this directory.")
	keywords = rootCmd.PersistentFlags().StringSlice("keywords", nil, "Override the required-keyword filter from the config.")
	extensions = rootCmd.PersistentFlags().StringSlice("extensions", nil, "Override the supported-extension allow-list from the config.")
	downloadDir = rootCmd.PersistentFlags().String("download-dir", "", "Override the download directory from the config.")
	listFile = rootCmd.PersistentFlags().String("list-file", "", "Override the list checkpoint path from the config.")
	detailFile = rootCmd.PersistentFlags().String("detail-file", "", "Override the detail checkpoint path from the config.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() harvest.Config {
	cfg, err := configutil.ReadOrDefault(*configPath, harvest.DefaultConfig())
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if len(*keywords) > 0 {
		cfg.RequiredKeywords = *keywords
	}
	if len(*extensions) > 0 {
		cfg.SupportedExtensions = *extensions
	}
	if *downloadDir != "" {
		cfg.DownloadDir = *downloadDir
	}
	if *listFile != "" {
		cfg.ListCheckpoint = *listFile
	}
	if *detailFile != "" {
		cfg.DetailCheckpoint = *detailFile
	}
	return cfg
}

// progressReporter renders a single rolling tracker on stderr so pipeline
// stages can show per-item progress without interleaving with stdout
// tables.
func progressReporter() harvest.ProgressFunc {
	pw := progress.NewWriter()
	pw.SetOutputWriter(os.Stderr)
	pw.SetTrackerLength(25)
	pw.SetMessageLength(40)
	go pw.Render()

	var tracker *progress.Tracker
	return func(current, total int, label string) {
		if tracker == nil {
			tracker = &progress.Tracker{Message: label, Total: int64(total)}
			pw.AppendTracker(tracker)
		}
		tracker.UpdateMessage(label)
		tracker.SetValue(int64(current))
	}
}

func newPipeline(ctx context.Context) *harvest.Pipeline {
	cfg := loadConfig()

	opts := datago.ClientOptions{}
	if *dumpDir != "" {
		dump, err := restyutil.NewFilesystemOutput(*dumpDir)
		if err != nil {
			serviceutil.Fatal("failed to create html dump directory", err)
		}
		opts.Dump = &dump
	}
	client, err := datago.NewClient(ctx, opts)
	if err != nil {
		serviceutil.Fatal("failed to initialize portal client", err)
	}

	p := harvest.NewPipeline(client, cfg)
	p.Progress = progressReporter()
	return p
}
