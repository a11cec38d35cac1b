package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"datago-harvester/lib/jsonstore"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// writeDownloadDir fabricates one completed per-id download directory.
func writeDownloadDir(t *testing.T, cfg Config, id, title, ext, contents string, extra map[string]any) {
	dir := filepath.Join(cfg.DownloadDir, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data."+ext), []byte(contents), 0644))

	meta := map[string]any{"data_id": id, "title": title}
	for k, v := range extra {
		meta[k] = v
	}
	require.NoError(t, jsonstore.Save(filepath.Join(dir, "metadata.json"), meta))
}

type intakeStub struct {
	server   *httptest.Server
	calls    atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64
}

// newIntakeStub runs a fake intake endpoint that tracks its peak number of
// simultaneous requests.
func newIntakeStub(t *testing.T, delay time.Duration) *intakeStub {
	stub := &intakeStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		current := stub.inflight.Add(1)
		defer stub.inflight.Add(-1)
		for {
			peak := stub.peak.Load()
			if current <= peak || stub.peak.CompareAndSwap(peak, current) {
				break
			}
		}
		time.Sleep(delay)

		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		require.NotEmpty(t, r.FormValue("data_id"))

		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func uploadPipeline(t *testing.T, stub *intakeStub) *Pipeline {
	cfg := testConfig(t)
	cfg.Intake.URL = stub.server.URL + "/api/upload"
	return NewPipeline(nil, cfg)
}

func TestUploadIdempotence(t *testing.T) {
	stub := newIntakeStub(t, 0)
	p := uploadPipeline(t, stub)

	for _, id := range []string{"1", "2", "3", "4"} {
		writeDownloadDir(t, p.Config, id, "전북 데이터 "+id, "csv", "a,b\n", nil)
	}

	report, err := p.Upload(context.Background(), UploadOptions{})
	require.NoError(t, err)
	require.Equal(t, 4, report.SuccessCount)
	require.Equal(t, 0, report.FailedCount)
	require.EqualValues(t, 4, stub.calls.Load())

	// receipts exist for every uploaded item
	var info UploadInfo
	err = jsonstore.Load(filepath.Join(p.Config.UploadInfoDir, "1.json"), &info)
	require.NoError(t, err)
	require.Equal(t, "1", info.DataID)
	require.Equal(t, true, info.ServerResponse["success"])

	// a second run still counts the four directories but uploads nothing
	report, err = p.Upload(context.Background(), UploadOptions{})
	require.NoError(t, err)
	require.Equal(t, 4, report.TotalAttempts)
	require.Equal(t, 0, report.SuccessCount)
	require.EqualValues(t, 4, stub.calls.Load())
}

func TestUploadBoundedConcurrency(t *testing.T) {
	stub := newIntakeStub(t, 50*time.Millisecond)
	p := uploadPipeline(t, stub)

	for i := 0; i < 9; i++ {
		id := string(rune('a' + i))
		writeDownloadDir(t, p.Config, id, "항목 "+id, "csv", "a,b\n", nil)
	}

	report, err := p.Upload(context.Background(), UploadOptions{})
	require.NoError(t, err)
	require.Equal(t, 9, report.SuccessCount)
	require.LessOrEqual(t, stub.peak.Load(), int64(3))
}

func TestUploadZipExclusion(t *testing.T) {
	stub := newIntakeStub(t, 0)
	p := uploadPipeline(t, stub)

	writeDownloadDir(t, p.Config, "1", "전북 CSV 데이터", "csv", "a,b\n", nil)
	writeDownloadDir(t, p.Config, "2", "전북 압축 데이터", "zip", "PK\x03\x04", nil)

	report, err := p.Upload(context.Background(), UploadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalAttempts)
	require.Equal(t, 1, report.SuccessCount)
	require.Equal(t, 1, report.FilteredZipCount)
	require.Equal(t, "2", report.FilteredZipItems[0].DataID)
	require.Contains(t, report.FilteredZipItems[0].Reason, ZipPolicyMarker)
	require.EqualValues(t, 1, stub.calls.Load())
}

func TestUploadFormatMismatch(t *testing.T) {
	stub := newIntakeStub(t, 0)
	p := uploadPipeline(t, stub)

	writeDownloadDir(t, p.Config, "1", "선언과 다른 데이터", "csv", "a,b\n",
		map[string]any{"extension": "XLSX"})

	report, err := p.Upload(context.Background(), UploadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, report.SuccessCount)
	require.Equal(t, 1, report.FormatMismatchCount)
	require.Equal(t, "xlsx", report.FormatMismatchItems[0].MetaFormat)
	require.Equal(t, "csv", report.FormatMismatchItems[0].RealExt)
}

func TestUploadRetryFailedSelection(t *testing.T) {
	stub := newIntakeStub(t, 0)
	p := uploadPipeline(t, stub)

	for _, id := range []string{"1", "2", "3"} {
		writeDownloadDir(t, p.Config, id, "항목 "+id, "csv", "a,b\n", nil)
	}

	// previous run: 1 and 2 failed for real, 3 was a policy exclusion
	prev := UploadReport{
		FailedItems: []ResultEntry{
			{DataID: "1", Reason: "intake endpoint returned 500"},
			{DataID: "2", Reason: "upload request: connection refused"},
			{DataID: "3", Reason: ZipPolicyMarker},
		},
	}
	require.NoError(t, jsonstore.Save(p.Config.UploadReport, prev))

	if diff := cmp.Diff([]string{"1", "2"}, RetryableFailedIDs(prev)); diff != "" {
		t.Fatal(diff)
	}

	report, err := p.Upload(context.Background(), UploadOptions{RetryFailed: true})
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalAttempts)
	require.Equal(t, 2, report.SuccessCount)
	require.EqualValues(t, 2, stub.calls.Load())
}

func TestUploadServerRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(t)
	cfg.Intake.URL = server.URL + "/api/upload"
	p := NewPipeline(nil, cfg)

	writeDownloadDir(t, p.Config, "1", "항목", "csv", "a,b\n", nil)

	report, err := p.Upload(context.Background(), UploadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, report.FailedCount)
	require.Contains(t, report.FailedItems[0].Reason, "quota exceeded")

	// no receipt for a rejected upload, so a retry is possible
	require.NoFileExists(t, filepath.Join(p.Config.UploadInfoDir, "1.json"))
}

func TestUploadFilename(t *testing.T) {
	target := uploadTarget{
		DataID:  "15104486",
		RealExt: "csv",
		Meta: map[string]any{
			"title":          "전북특별자치도 버스정류소 현황",
			"file_data_name": "전북 버스정류소/현황 2024",
		},
	}

	// custom override wins
	require.Equal(t, "custom.csv", uploadFilename("custom", target))
	require.Equal(t, "custom.csv", uploadFilename("custom.csv", target))

	// metadata name field, sanitized
	require.Equal(t, "전북_버스정류소현황_2024.csv", uploadFilename("", target))

	// id plus truncated title
	delete(target.Meta, "file_data_name")
	require.Equal(t, "15104486_전북특별자치도_버스정류소_현황.csv", uploadFilename("", target))

	// bare id
	target.Meta = map[string]any{}
	require.Equal(t, "15104486.csv", uploadFilename("", target))
}
