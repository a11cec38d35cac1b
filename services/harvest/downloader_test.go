package harvest

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"datago-harvester/lib/jsonstore"
	"datago-harvester/lib/scrapers/datago"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const busStopsCSV = "정류소명,위도,경도\n전주역,35.84,127.16\n"

// fakePortal serves the lookup and download endpoints for the download
// scenario: item 200 resolves and downloads fine, everything else fails at
// every tier.
func fakePortal(t *testing.T, downloads *atomic.Int64) http.Handler {
	legacyCSV, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(busStopsCSV))
	require.NoError(t, err)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/tcs/dss/selectFileDataDownload.do":
			if q.Get("file_detail_sn") != "" {
				// last-resort endpoint variant; always an error page here
				w.Header().Set("content-type", "text/html")
				w.Write([]byte("<html>not found</html>"))
				return
			}
			if q.Get("publicDataPk") == "200" {
				w.Header().Set("content-type", "application/json")
				w.Write([]byte(`{"atchFileId":"FILE_200","fileDetailSn":"1"}`))
				return
			}
			w.Header().Set("content-type", "text/html")
			w.Write([]byte("<html>login required</html>"))
		case "/cmm/cmm/fileDownload.do":
			downloads.Add(1)
			if q.Get("atchFileId") == "FILE_200" {
				w.Header().Set("content-type", "application/octet-stream")
				w.Header().Set("content-disposition", `attachment; filename="stops.csv"`)
				w.Write(legacyCSV)
				return
			}
			w.Header().Set("content-type", "text/html")
			w.Write([]byte("<html>no such file</html>"))
		default:
			http.NotFound(w, r)
		}
	})
}

func TestDownload(t *testing.T) {
	var downloads atomic.Int64
	p, _ := newTestPipeline(t, fakePortal(t, &downloads))

	items := []datago.Item{
		{DataID: "100", Title: "다운로드 버튼 없는 항목"},
		{DataID: "200", Title: "버스정류소 현황", FormatTypes: []string{"CSV"}, HasDownloadBtn: true},
		{DataID: "300", Title: "실패하는 항목", HasDownloadBtn: true},
	}

	report, err := p.Download(context.Background(), items, Selection{})
	require.NoError(t, err)

	require.Equal(t, 3, report.TotalAttempts)
	require.Equal(t, 1, report.SuccessCount)
	require.Equal(t, 1, report.FailedCount)
	require.Equal(t, 1, report.SkippedCount)
	require.Equal(t, "200", report.SuccessItems[0].DataID)
	require.Equal(t, "300", report.FailedItems[0].DataID)
	require.Equal(t, "100", report.SkippedItems[0].DataID)

	// the downloaded file was transcoded to utf-8 in place
	contents, err := os.ReadFile(filepath.Join(p.Config.DownloadDir, "200", "data.csv"))
	require.NoError(t, err)
	require.Equal(t, busStopsCSV, string(contents))

	// the sidecar records the resolution provenance
	var meta ItemMetadata
	err = jsonstore.Load(filepath.Join(p.Config.DownloadDir, "200", "metadata.json"), &meta)
	require.NoError(t, err)
	require.Equal(t, "200", meta.DataID)
	require.Equal(t, "FILE_200", meta.DownloadInfo.AtchFileID)
	require.Equal(t, "1", meta.DownloadInfo.FileDetailSn)
	require.Equal(t, datago.RefFromLookup, meta.DownloadInfo.RefSource)
	require.Equal(t, "csv", meta.DownloadInfo.FileExt)
	require.Equal(t, datago.ExtFromFormatTypes, meta.DownloadInfo.ExtSource)

	// the failing item exhausted every serial and the synthesized id:
	// 1 + {0,2,3} for item 300, plus the single fetch for item 200
	require.EqualValues(t, 5, downloads.Load())

	// failures land in the plain-text log
	logContents, err := os.ReadFile(p.Config.FailureLog)
	require.NoError(t, err)
	require.Contains(t, string(logContents), "실패하는 항목")

	var persisted DownloadReport
	err = jsonstore.Load(p.Config.DownloadReport, &persisted)
	require.NoError(t, err)
	require.Equal(t, 1, persisted.SuccessCount)
}

func TestDownloadSelection(t *testing.T) {
	var downloads atomic.Int64
	p, _ := newTestPipeline(t, fakePortal(t, &downloads))

	items := []datago.Item{
		{DataID: "200", Title: "버스정류소 현황", HasDownloadBtn: true},
		{DataID: "300", Title: "실패하는 항목", HasDownloadBtn: true},
	}

	report, err := p.Download(context.Background(), items, Selection{IDs: []string{"200"}})
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalAttempts)
	require.Equal(t, 1, report.SuccessCount)

	report, err = p.Download(context.Background(), items, Selection{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalAttempts)
}

func TestDownloadExtensionFromDetailToken(t *testing.T) {
	// a trusted extension embedded in the scraped token wins over format
	// hints, and the token also resolves the ref without the lookup api
	item := datago.Item{
		DataID:         "200",
		Title:          "엑셀 항목",
		FileDetailID:   "uddi:abc123_2.xlsx",
		FormatTypes:    []string{"CSV"},
		HasDownloadBtn: true,
	}

	var downloads atomic.Int64
	p, _ := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "selectFileDataDownload") {
			w.Header().Set("content-type", "text/html")
			w.Write([]byte("<html>nope</html>"))
			return
		}
		downloads.Add(1)
		require.Equal(t, "abc123", r.URL.Query().Get("atchFileId"))
		require.Equal(t, "2", r.URL.Query().Get("fileDetailSn"))
		w.Header().Set("content-type", "application/octet-stream")
		w.Write([]byte("spreadsheet bytes"))
	}))

	report, err := p.Download(context.Background(), []datago.Item{item}, Selection{})
	require.NoError(t, err)
	require.Equal(t, 1, report.SuccessCount)

	var meta ItemMetadata
	err = jsonstore.Load(filepath.Join(p.Config.DownloadDir, "200", "metadata.json"), &meta)
	require.NoError(t, err)
	require.Equal(t, "xlsx", meta.DownloadInfo.FileExt)
	require.Equal(t, datago.ExtFromFileID, meta.DownloadInfo.ExtSource)
	require.Equal(t, datago.RefFromDetailID, meta.DownloadInfo.RefSource)

	_, err = os.Stat(filepath.Join(p.Config.DownloadDir, "200", "data.xlsx"))
	require.NoError(t, err)
}
