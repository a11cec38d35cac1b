package harvest

import (
	"context"
	"time"

	random "github.com/mazen160/go-random"
)

// DelayRange is a politeness throttle: a randomized pause drawn from
// [MinMs, MaxMs] between consecutive requests to the portal. The delays are
// configurable but deliberately present; stripping them risks the portal
// blocking the client.
type DelayRange struct {
	MinMs int `json:"min_ms"`
	MaxMs int `json:"max_ms"`
}

// Sleep blocks for a random duration in the range, or until ctx is done.
func (d DelayRange) Sleep(ctx context.Context) {
	if d.MaxMs <= 0 {
		return
	}
	ms := d.MinMs
	if d.MaxMs > d.MinMs {
		if n, err := random.IntRange(d.MinMs, d.MaxMs+1); err == nil {
			ms = n
		}
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type IntakeConfig struct {
	// URL of the multipart upload endpoint
	URL string `json:"url"`
	// AuthToken, when set, is passed through unchanged as a bearer token
	AuthToken string `json:"auth_token"`
	// TimeoutSeconds bounds each upload request
	TimeoutSeconds int `json:"timeout_seconds"`
	// Concurrency caps simultaneous in-flight uploads
	Concurrency int `json:"concurrency"`
}

// Config is the explicit configuration threaded through every stage entry
// point. There is no process-wide mutable state; a run owns its Config.
type Config struct {
	// RequiredKeywords: an item survives the keyword filter iff its title or
	// provider contains at least one of these (substring, case-sensitive as
	// scraped).
	RequiredKeywords []string `json:"required_keywords"`
	// SupportedExtensions is the format-filter allow-list of declared format
	// tags. Items with no declared formats pass; the detail page decides.
	SupportedExtensions []string `json:"supported_extensions"`
	// AffordanceFromFormats treats the presence of format hints as a
	// download affordance even without an actionable element. A known
	// precision/recall tradeoff of the list-page heuristic; off by default.
	AffordanceFromFormats bool `json:"affordance_from_formats"`

	PerPage int `json:"per_page"`

	ListDelay     DelayRange `json:"list_delay"`
	DetailDelay   DelayRange `json:"detail_delay"`
	DownloadDelay DelayRange `json:"download_delay"`

	DownloadDir   string `json:"download_dir"`
	UploadInfoDir string `json:"upload_info_dir"`

	ListCheckpoint   string `json:"list_checkpoint"`
	DetailCheckpoint string `json:"detail_checkpoint"`
	DownloadReport   string `json:"download_report"`
	UploadReport     string `json:"upload_report"`
	FailureLog       string `json:"failure_log"`

	Intake IntakeConfig `json:"intake"`
}

func DefaultConfig() Config {
	return Config{
		RequiredKeywords:    []string{"전북", "전라북도", "전북특별자치도"},
		SupportedExtensions: []string{"CSV", "XLSX", "DOCX", "HWPX", "PDF", "XLS", "HWP"},
		PerPage:             10,
		ListDelay:           DelayRange{MinMs: 500, MaxMs: 1000},
		DetailDelay:         DelayRange{MinMs: 1000, MaxMs: 2000},
		DownloadDelay:       DelayRange{MinMs: 1000, MaxMs: 2000},
		DownloadDir:         "downloaded_data",
		UploadInfoDir:       "upload_info",
		ListCheckpoint:      "data_list.json",
		DetailCheckpoint:    "data_detail.json",
		DownloadReport:      "download_results.json",
		UploadReport:        "upload_results.json",
		FailureLog:          "failed_downloads.txt",
		Intake: IntakeConfig{
			URL:            "http://localhost:11311/api/upload",
			TimeoutSeconds: 60,
			Concurrency:    3,
		},
	}
}
