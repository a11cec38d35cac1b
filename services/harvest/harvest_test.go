package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"datago-harvester/lib/scrapers/datago"
	"datago-harvester/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// testConfig zeroes out the politeness delays and roots every artifact
// path in a per-test temp directory.
func testConfig(t *testing.T) Config {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.ListDelay = DelayRange{}
	cfg.DetailDelay = DelayRange{}
	cfg.DownloadDelay = DelayRange{}
	cfg.DownloadDir = filepath.Join(dir, "downloaded_data")
	cfg.UploadInfoDir = filepath.Join(dir, "upload_info")
	cfg.ListCheckpoint = filepath.Join(dir, "data_list.json")
	cfg.DetailCheckpoint = filepath.Join(dir, "data_detail.json")
	cfg.DownloadReport = filepath.Join(dir, "download_results.json")
	cfg.UploadReport = filepath.Join(dir, "upload_results.json")
	cfg.FailureLog = filepath.Join(dir, "failed_downloads.txt")
	return cfg
}

func newTestPipeline(t *testing.T, handler http.Handler) (*Pipeline, *httptest.Server) {
	t.Cleanup(telemetry.SetupForTesting(t, "services/harvest"))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := datago.NewClient(context.Background(), datago.ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)
	return NewPipeline(client, testConfig(t)), server
}
