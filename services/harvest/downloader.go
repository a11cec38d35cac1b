package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"datago-harvester/lib/jsonstore"
	"datago-harvester/lib/koreanenc"
	"datago-harvester/lib/scrapers/datago"
)

// DownloadInfo is the resolution provenance persisted next to a downloaded
// file: which identifier and serial finally worked, where they came from,
// and how the extension was decided.
type DownloadInfo struct {
	DownloadTimestamp string           `json:"download_timestamp"`
	FilePath          string           `json:"file_path"`
	FileSize          int64            `json:"file_size"`
	FileExt           string           `json:"file_ext"`
	AtchFileID        string           `json:"atch_file_id"`
	FileDetailSn      string           `json:"file_detail_sn"`
	RefSource         datago.RefSource `json:"ref_source"`
	ExtSource         datago.ExtSource `json:"ext_source"`
}

// ItemMetadata is the per-item sidecar: the full enriched item plus the
// download record. Its presence inside a per-id directory is the
// download-completion invariant.
type ItemMetadata struct {
	datago.Item
	DownloadInfo DownloadInfo `json:"download_info"`
}

// Selection narrows a download run: an explicit id list wins over a count
// limit; zero values select everything.
type Selection struct {
	IDs   []string
	Limit int
}

func (s Selection) apply(items []datago.Item) []datago.Item {
	if len(s.IDs) > 0 {
		wanted := make(map[string]bool, len(s.IDs))
		for _, id := range s.IDs {
			wanted[id] = true
		}
		var out []datago.Item
		for _, item := range items {
			if wanted[item.DataID] {
				out = append(out, item)
			}
		}
		return out
	}
	if s.Limit > 0 && s.Limit < len(items) {
		return items[:s.Limit]
	}
	return items
}

// resolveFileRef walks the identifier-resolution tiers, each attempted only
// when the prior yielded nothing: the metadata-lookup endpoint, the scraped
// file-detail token, and finally the synthesized template identifier.
func (p *Pipeline) resolveFileRef(ctx context.Context, item datago.Item, referer string) (datago.FileRef, datago.RefSource) {
	if ref, ok := p.Client.LookupFileRef(ctx, item.DataID, referer); ok {
		return ref, datago.RefFromLookup
	}
	if ref, ok := datago.RefFromFileDetailID(item.FileDetailID); ok {
		slog.DebugContext(ctx, "file ref recovered from detail token",
			"data_id", item.DataID, "atch_file_id", ref.AtchFileID, "serial", ref.FileDetailSn)
		return ref, datago.RefFromDetailID
	}
	ref := datago.SynthesizeRef(item.DataID)
	slog.DebugContext(ctx, "file ref synthesized", "data_id", item.DataID, "atch_file_id", ref.AtchFileID)
	return ref, datago.RefSynthesized
}

// fetchWithRetries tries the resolved identifier, then the alternate serial
// candidates, then the last-resort endpoint variant. The returned ref
// carries the serial that actually worked.
func (p *Pipeline) fetchWithRetries(ctx context.Context, item datago.Item, ref datago.FileRef, referer string) (datago.FetchedFile, datago.FileRef, error) {
	file, err := p.Client.FetchFile(ctx, ref, referer)
	if err == nil {
		return file, ref, nil
	}
	slog.DebugContext(ctx, "download failed, retrying with alternate serials",
		"data_id", item.DataID, "serial", ref.FileDetailSn, "err", err)

	for _, serial := range datago.RetrySerials(ref.FileDetailSn) {
		retryRef := datago.FileRef{AtchFileID: ref.AtchFileID, FileDetailSn: serial}
		file, retryErr := p.Client.FetchFile(ctx, retryRef, referer)
		if retryErr == nil {
			slog.InfoContext(ctx, "download succeeded on retry", "data_id", item.DataID, "serial", serial)
			return file, retryRef, nil
		}
		err = retryErr
	}

	slog.DebugContext(ctx, "all serial retries failed, trying last-resort endpoint", "data_id", item.DataID)
	file, lastErr := p.Client.FetchFileLastResort(ctx, item.DataID, referer)
	if lastErr == nil {
		return file, ref, nil
	}
	return datago.FetchedFile{}, ref, err
}

// downloadItem retrieves one item's file into its per-id directory and
// writes the metadata sidecar. Every failure returns a reason; nothing
// here aborts the surrounding loop.
func (p *Pipeline) downloadItem(ctx context.Context, item datago.Item) (dirPath string, err error) {
	if item.DataID == "" {
		return "", fmt.Errorf("item has no data id")
	}

	referer := item.DetailURL
	if referer == "" {
		referer = p.Client.DetailURLFor(item.DataID)
	}

	ext, extSource := datago.ResolveExtension(item)
	if idExt, ok := datago.ExtensionFromFileDetailID(item.FileDetailID); ok {
		ext, extSource = idExt, datago.ExtFromFileID
	}

	ref, refSource := p.resolveFileRef(ctx, item, referer)
	file, ref, err := p.fetchWithRetries(ctx, item, ref, referer)
	if err != nil {
		return "", err
	}

	// the extension the server declares outranks every scraped hint
	if file.ServerExt != "" && file.ServerExt != ext {
		ext, extSource = file.ServerExt, datago.ExtFromServer
	}

	dirPath = filepath.Join(p.Config.DownloadDir, item.DataID)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("create item directory: %w", err)
	}
	filePath := filepath.Join(dirPath, "data."+ext)
	if err := os.WriteFile(filePath, file.Body, 0644); err != nil {
		return "", fmt.Errorf("write data file: %w", err)
	}

	if ext == "csv" {
		converted, convErr := koreanenc.RecoverFile(filePath)
		if convErr != nil {
			slog.WarnContext(ctx, "encoding recovery failed, file left as downloaded",
				"data_id", item.DataID, "err", convErr)
		} else if converted {
			slog.DebugContext(ctx, "legacy encoding converted to utf-8", "data_id", item.DataID)
		}
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return "", err
	}

	sidecar := ItemMetadata{
		Item: item,
		DownloadInfo: DownloadInfo{
			DownloadTimestamp: reportTimestamp(),
			FilePath:          filePath,
			FileSize:          info.Size(),
			FileExt:           ext,
			AtchFileID:        ref.AtchFileID,
			FileDetailSn:      ref.FileDetailSn,
			RefSource:         refSource,
			ExtSource:         extSource,
		},
	}
	err = jsonstore.Save(filepath.Join(dirPath, "metadata.json"), sidecar)
	if err != nil {
		return "", fmt.Errorf("persist metadata sidecar: %w", err)
	}
	return dirPath, nil
}

// Download retrieves the files of the selected items, one per-id directory
// each, and persists the aggregate report. Per-item failures are recorded
// and the loop proceeds; the returned report partitions every attempted
// item into succeeded, failed and skipped.
func (p *Pipeline) Download(ctx context.Context, items []datago.Item, sel Selection) (DownloadReport, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Download")
	defer span.End()

	selected := sel.apply(items)
	slog.InfoContext(ctx, "starting downloads", "items", len(selected))

	if err := os.MkdirAll(p.Config.DownloadDir, 0755); err != nil {
		return DownloadReport{}, fmt.Errorf("create download directory: %w", err)
	}

	report := DownloadReport{
		Timestamp:     reportTimestamp(),
		TotalAttempts: len(selected),
		SuccessItems:  []ResultEntry{},
		FailedItems:   []ResultEntry{},
		SkippedItems:  []ResultEntry{},
	}

	for i, item := range selected {
		p.progress(i+1, len(selected), item.DisplayName())

		if !item.HasDownloadBtn {
			slog.DebugContext(ctx, "skipping item without download affordance", "title", item.DisplayName())
			report.SkippedItems = append(report.SkippedItems, ResultEntry{
				DataID: item.DataID,
				Title:  item.Title,
				Reason: "no download affordance",
			})
			continue
		}

		dirPath, err := p.downloadItem(ctx, item)
		if err != nil {
			slog.WarnContext(ctx, "download failed", "title", item.DisplayName(), "err", err)
			report.FailedItems = append(report.FailedItems, ResultEntry{
				DataID: item.DataID,
				Title:  item.Title,
				Reason: err.Error(),
			})
			logErr := jsonstore.AppendLine(p.Config.FailureLog,
				fmt.Sprintf("%s: %s", item.DisplayName(), err.Error()))
			if logErr != nil {
				slog.WarnContext(ctx, "failed to append failure log", "err", logErr)
			}
		} else {
			report.SuccessItems = append(report.SuccessItems, ResultEntry{
				DataID:  item.DataID,
				Title:   item.Title,
				DirPath: dirPath,
			})
		}

		if i < len(selected)-1 {
			p.Config.DownloadDelay.Sleep(ctx)
		}
		if ctx.Err() != nil {
			break
		}
	}

	report.SuccessCount = len(report.SuccessItems)
	report.FailedCount = len(report.FailedItems)
	report.SkippedCount = len(report.SkippedItems)

	err := jsonstore.Save(p.Config.DownloadReport, report)
	if err != nil {
		return report, fmt.Errorf("persist download report: %w", err)
	}
	slog.InfoContext(ctx, "download report written",
		"success", report.SuccessCount, "failed", report.FailedCount,
		"skipped", report.SkippedCount, "file", p.Config.DownloadReport)
	return report, nil
}

// DownloadFromCheckpoint runs Download over a persisted detail checkpoint.
func (p *Pipeline) DownloadFromCheckpoint(ctx context.Context, path string, sel Selection) (DownloadReport, error) {
	var items []datago.Item
	err := jsonstore.Load(path, &items)
	if err != nil {
		return DownloadReport{}, fmt.Errorf("load detail checkpoint: %w", err)
	}
	slog.InfoContext(ctx, "detail checkpoint loaded", "items", len(items), "file", path)
	return p.Download(ctx, items, sel)
}
