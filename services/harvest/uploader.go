package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"datago-harvester/lib/jsonstore"
	"datago-harvester/lib/scrapers/datago"
	"datago-harvester/lib/telemetry"
	"datago-harvester/lib/textutil"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

// UploadOptions selects which downloaded items to push to the intake
// endpoint. An explicit id list wins over RetryFailed; both unset means
// every downloaded item.
type UploadOptions struct {
	IDs []string
	// CustomFilename overrides filename derivation. Only sensible for
	// single-item uploads.
	CustomFilename string
	// RetryFailed re-selects the failures of the previous upload report,
	// minus the ZIP-policy exclusions.
	RetryFailed bool
}

// UploadInfo is the per-item upload receipt persisted under the upload-info
// directory. Its server_response.success field is what makes re-runs
// idempotent.
type UploadInfo struct {
	DataID           string         `json:"data_id"`
	UploadTimestamp  string         `json:"upload_timestamp"`
	ServerResponse   map[string]any `json:"server_response"`
	UploadedFilename string         `json:"uploaded_filename"`
	FormatMismatch   bool           `json:"format_mismatch"`
	OriginalDirPath  string         `json:"original_dir_path"`
	MetaFileFormat   string         `json:"meta_file_format"`
	RealFileExt      string         `json:"real_file_ext"`
}

var contentTypes = map[string]string{
	"csv":  "text/csv",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"pdf":  "application/pdf",
	"hwp":  "application/x-hwp",
	"hwpx": "application/x-hwpx",
	"json": "application/json",
	"xml":  "application/xml",
	"jpg":  "image/jpeg",
	"zip":  "application/zip",
}

func contentTypeFor(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// uploadTarget is one discovered per-id download directory. Metadata is
// kept as a loose map so filename derivation can probe fields that only
// some portal responses carry.
type uploadTarget struct {
	DataID   string
	DirPath  string
	FilePath string
	RealExt  string
	Meta     map[string]any
}

func metaString(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := meta[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// discoverTargets scans the download directory for completed items: a
// per-id subdirectory counts only when its metadata sidecar parses and a
// data file sits next to it.
func (p *Pipeline) discoverTargets(ctx context.Context) ([]uploadTarget, error) {
	entries, err := os.ReadDir(p.Config.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("read download directory: %w", err)
	}

	var targets []uploadTarget
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(p.Config.DownloadDir, entry.Name())

		var meta map[string]any
		err := jsonstore.Load(filepath.Join(dirPath, "metadata.json"), &meta)
		if err != nil {
			slog.WarnContext(ctx, "directory without readable metadata skipped", "dir", dirPath, "err", err)
			continue
		}

		target := uploadTarget{
			DataID:  metaString(meta, "data_id"),
			DirPath: dirPath,
			Meta:    meta,
		}
		if target.DataID == "" {
			target.DataID = entry.Name()
		}

		files, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || f.Name() == "metadata.json" {
				continue
			}
			target.FilePath = filepath.Join(dirPath, f.Name())
			target.RealExt = strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name()), "."))
			break
		}
		if target.FilePath == "" {
			slog.WarnContext(ctx, "directory without data file skipped", "dir", dirPath)
			continue
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// selectTargets applies the selection precedence: explicit ids, then the
// previous report's retryable failures, then everything.
func (p *Pipeline) selectTargets(ctx context.Context, targets []uploadTarget, opts UploadOptions) []uploadTarget {
	var wanted map[string]bool
	switch {
	case len(opts.IDs) > 0:
		wanted = make(map[string]bool, len(opts.IDs))
		for _, id := range opts.IDs {
			wanted[id] = true
		}
	case opts.RetryFailed:
		prev, ok := LoadUploadReport(p.Config.UploadReport)
		if !ok {
			slog.WarnContext(ctx, "no previous upload report, nothing to retry", "file", p.Config.UploadReport)
			return nil
		}
		ids := RetryableFailedIDs(prev)
		wanted = make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
	default:
		return targets
	}

	var out []uploadTarget
	for _, t := range targets {
		if wanted[t.DataID] {
			out = append(out, t)
		}
	}
	return out
}

// isAlreadyUploaded checks the per-item receipt first, then the previous
// aggregate report. A receipt whose server response does not say success
// does not count.
func (p *Pipeline) isAlreadyUploaded(dataID string, prev UploadReport, prevOK bool) bool {
	var info UploadInfo
	err := jsonstore.Load(filepath.Join(p.Config.UploadInfoDir, dataID+".json"), &info)
	if err == nil {
		if ok, _ := info.ServerResponse["success"].(bool); ok {
			return true
		}
	}
	if prevOK {
		for _, entry := range prev.SuccessItems {
			if entry.DataID == dataID {
				return true
			}
		}
	}
	return false
}

// declaredFormat normalizes the metadata's declared format tag to an
// extension, for comparison against what was actually downloaded.
func declaredFormat(meta map[string]any) string {
	tag := metaString(meta, "extension", "title_format")
	if ext, ok := datago.ExtMap[strings.ToUpper(tag)]; ok {
		return ext
	}
	return strings.ToLower(tag)
}

// uploadFilename derives the filename the intake endpoint sees, in priority
// order: the caller's override, a name field out of the portal metadata,
// the id plus a truncated title, and finally the bare id. Every variant
// ends in the real downloaded extension.
func uploadFilename(custom string, target uploadTarget) string {
	ensureExt := func(name string) string {
		if strings.EqualFold(filepath.Ext(name), "."+target.RealExt) {
			return name
		}
		return name + "." + target.RealExt
	}
	if custom != "" {
		return ensureExt(custom)
	}
	name := metaString(target.Meta,
		"file_data_name", "originalFileName", "original_file_name",
		"fileName", "file_name", "dataName", "data_name")
	if name != "" {
		if safe := textutil.SafeName(name); safe != "" {
			return ensureExt(safe)
		}
	}
	if title := metaString(target.Meta, "title"); title != "" {
		safe := textutil.SafeName(textutil.Truncate(title, 50))
		if safe != "" {
			return ensureExt(target.DataID + "_" + safe)
		}
	}
	return ensureExt(target.DataID)
}

// autoDescription packs the item's scraped metadata fields the intake
// endpoint cares about into a JSON description string.
func autoDescription(meta map[string]any) string {
	desc := map[string]any{"upload_timestamp": reportTimestamp()}
	for _, key := range []string{
		"title", "description", "provider", "category", "keywords",
		"update_cycle", "update_date", "license", "detail_url",
	} {
		if v, ok := meta[key]; ok && v != nil {
			desc[key] = v
		}
	}
	encoded, err := json.Marshal(desc)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

type uploadOutcome struct {
	entry    ResultEntry
	failed   bool
	mismatch bool
}

// uploadOne pushes a single file to the intake endpoint and, on success,
// persists its receipt. The HTTP status plus the response body's success
// flag together decide the outcome.
func (p *Pipeline) uploadOne(ctx context.Context, client *resty.Client, target uploadTarget, custom string) uploadOutcome {
	title := metaString(target.Meta, "title")
	entry := ResultEntry{DataID: target.DataID, Title: title, DirPath: target.DirPath}

	body, err := os.ReadFile(target.FilePath)
	if err != nil {
		entry.Reason = fmt.Sprintf("read data file: %s", err)
		return uploadOutcome{entry: entry, failed: true}
	}

	description := metaString(target.Meta, "description")
	if description == "" {
		description = title
	}

	filename := uploadFilename(custom, target)
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetMultipartField("file", filename, contentTypeFor(target.RealExt), bytes.NewReader(body)).
		SetFormData(map[string]string{
			"data_id":          target.DataID,
			"filename":         filename,
			"description":      description,
			"auto_description": autoDescription(target.Meta),
		}).
		Post(p.Config.Intake.URL)
	if err != nil {
		entry.Reason = fmt.Sprintf("upload request: %s", err)
		return uploadOutcome{entry: entry, failed: true}
	}

	serverResponse := map[string]any{}
	if jsonErr := json.Unmarshal(resp.Body(), &serverResponse); jsonErr != nil {
		serverResponse = map[string]any{"raw": string(resp.Body())}
	}
	if resp.StatusCode() >= 300 {
		entry.Reason = fmt.Sprintf("intake endpoint returned %d: %s", resp.StatusCode(), resp.Status())
		return uploadOutcome{entry: entry, failed: true}
	}
	if ok, present := serverResponse["success"].(bool); present && !ok {
		entry.Reason = fmt.Sprintf("intake endpoint rejected upload: %v", serverResponse["error"])
		return uploadOutcome{entry: entry, failed: true}
	}

	metaFormat := declaredFormat(target.Meta)
	mismatch := metaFormat != "" && metaFormat != target.RealExt

	info := UploadInfo{
		DataID:           target.DataID,
		UploadTimestamp:  reportTimestamp(),
		ServerResponse:   serverResponse,
		UploadedFilename: filename,
		FormatMismatch:   mismatch,
		OriginalDirPath:  target.DirPath,
		MetaFileFormat:   metaFormat,
		RealFileExt:      target.RealExt,
	}
	err = jsonstore.Save(filepath.Join(p.Config.UploadInfoDir, target.DataID+".json"), info)
	if err != nil {
		slog.WarnContext(ctx, "upload succeeded but receipt not persisted",
			"data_id", target.DataID, "err", err)
	}

	entry.UploadInfo = &info
	if mismatch {
		entry.MetaFormat = metaFormat
		entry.RealExt = target.RealExt
	}
	return uploadOutcome{entry: entry, mismatch: mismatch}
}

// Upload pushes the selected downloaded items to the intake endpoint with
// bounded concurrency and persists the aggregate report. Already-uploaded
// items are skipped up front, so re-running after a partial failure only
// touches what is left.
func (p *Pipeline) Upload(ctx context.Context, opts UploadOptions) (UploadReport, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Upload")
	defer span.End()

	targets, err := p.discoverTargets(ctx)
	if err != nil {
		return UploadReport{}, err
	}
	targets = p.selectTargets(ctx, targets, opts)

	if err := os.MkdirAll(p.Config.UploadInfoDir, 0755); err != nil {
		return UploadReport{}, fmt.Errorf("create upload-info directory: %w", err)
	}

	prev, prevOK := LoadUploadReport(p.Config.UploadReport)

	// like the download report, attempts count every selected item, the
	// policy-excluded and already-uploaded ones included
	report := UploadReport{
		Timestamp:           reportTimestamp(),
		TotalAttempts:       len(targets),
		SuccessItems:        []ResultEntry{},
		FailedItems:         []ResultEntry{},
		FilteredZipItems:    []ResultEntry{},
		FormatMismatchItems: []ResultEntry{},
	}

	var pending []uploadTarget
	for _, target := range targets {
		title := metaString(target.Meta, "title")
		switch {
		case target.RealExt == "zip":
			report.FilteredZipItems = append(report.FilteredZipItems, ResultEntry{
				DataID: target.DataID,
				Title:  title,
				Reason: ZipPolicyMarker,
			})
		case p.isAlreadyUploaded(target.DataID, prev, prevOK):
			slog.InfoContext(ctx, "already uploaded, skipping", "data_id", target.DataID, "title", title)
		default:
			pending = append(pending, target)
		}
	}

	slog.InfoContext(ctx, "starting uploads",
		"items", len(pending), "filtered_zip", len(report.FilteredZipItems),
		"endpoint", p.Config.Intake.URL)

	client := resty.New()
	client.SetTimeout(time.Duration(p.Config.Intake.TimeoutSeconds) * time.Second)
	if p.Config.Intake.AuthToken != "" {
		client.SetAuthToken(p.Config.Intake.AuthToken)
	}
	telemetry.InstrumentResty(client, "services/harvest/intake")

	concurrency := p.Config.Intake.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]uploadOutcome, len(pending))
	var done atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, target := range pending {
		group.Go(func() error {
			outcomes[i] = p.uploadOne(groupCtx, client, target, opts.CustomFilename)
			p.progress(int(done.Add(1)), len(pending), target.DataID)
			return nil
		})
	}
	// workers never return errors; failures live in their outcome slots
	_ = group.Wait()

	for _, outcome := range outcomes {
		switch {
		case outcome.failed:
			slog.WarnContext(ctx, "upload failed",
				"data_id", outcome.entry.DataID, "reason", outcome.entry.Reason)
			report.FailedItems = append(report.FailedItems, outcome.entry)
		default:
			report.SuccessItems = append(report.SuccessItems, outcome.entry)
			if outcome.mismatch {
				report.FormatMismatchItems = append(report.FormatMismatchItems, outcome.entry)
			}
		}
	}

	report.SuccessCount = len(report.SuccessItems)
	report.FailedCount = len(report.FailedItems)
	report.FilteredZipCount = len(report.FilteredZipItems)
	report.FormatMismatchCount = len(report.FormatMismatchItems)

	err = jsonstore.Save(p.Config.UploadReport, report)
	if err != nil {
		return report, fmt.Errorf("persist upload report: %w", err)
	}
	slog.InfoContext(ctx, "upload report written",
		"success", report.SuccessCount, "failed", report.FailedCount,
		"format_mismatch", report.FormatMismatchCount, "file", p.Config.UploadReport)
	return report, nil
}
