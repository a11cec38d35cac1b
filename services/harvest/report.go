package harvest

import (
	"strings"
	"time"

	"datago-harvester/lib/jsonstore"
)

// ZipPolicyMarker is the reason-string marker of the ZIP policy exclusion.
// Retry-set derivation keys off it, so it must stay stable across runs.
const ZipPolicyMarker = "zip file excluded by policy"

const reportTimeFormat = "2006-01-02 15:04:05"

// ResultEntry is one item's outcome inside an aggregate report.
type ResultEntry struct {
	DataID     string      `json:"data_id"`
	Title      string      `json:"title"`
	DirPath    string      `json:"dir_path,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	UploadInfo *UploadInfo `json:"upload_info,omitempty"`
	MetaFormat string      `json:"meta_format,omitempty"`
	RealExt    string      `json:"real_ext,omitempty"`
}

// DownloadReport is the downloader's aggregate run record: the audit trail
// of which items succeeded, failed or were skipped, and why.
type DownloadReport struct {
	Timestamp     string        `json:"timestamp"`
	TotalAttempts int           `json:"total_attempts"`
	SuccessCount  int           `json:"success_count"`
	FailedCount   int           `json:"failed_count"`
	SkippedCount  int           `json:"skipped_count"`
	SuccessItems  []ResultEntry `json:"success_items"`
	FailedItems   []ResultEntry `json:"failed_items"`
	SkippedItems  []ResultEntry `json:"skipped_items"`
}

// UploadReport mirrors the downloader's report shape, with the uploader's
// two extra outcome classes broken out.
type UploadReport struct {
	Timestamp           string        `json:"timestamp"`
	TotalAttempts       int           `json:"total_attempts"`
	SuccessCount        int           `json:"success_count"`
	FailedCount         int           `json:"failed_count"`
	FilteredZipCount    int           `json:"filtered_zip_count"`
	FormatMismatchCount int           `json:"format_mismatch_count"`
	SuccessItems        []ResultEntry `json:"success_items"`
	FailedItems         []ResultEntry `json:"failed_items"`
	FilteredZipItems    []ResultEntry `json:"filtered_zip_items"`
	FormatMismatchItems []ResultEntry `json:"format_mismatch_items"`
}

func reportTimestamp() string {
	return time.Now().Format(reportTimeFormat)
}

// RetryableFailedIDs derives the retry-failed id set from the last upload
// report: every failed entry except the ones excluded by the ZIP policy,
// which are a deliberate business-rule skip rather than a technical
// failure.
func RetryableFailedIDs(report UploadReport) []string {
	var ids []string
	for _, entry := range report.FailedItems {
		if strings.Contains(entry.Reason, ZipPolicyMarker) {
			continue
		}
		ids = append(ids, entry.DataID)
	}
	return ids
}

// LoadUploadReport reads the last persisted upload report, reporting ok
// when one existed and parsed.
func LoadUploadReport(path string) (UploadReport, bool) {
	var report UploadReport
	if !jsonstore.Exists(path) {
		return report, false
	}
	err := jsonstore.Load(path, &report)
	return report, err == nil
}
