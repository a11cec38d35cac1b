package harvest

import (
	"context"
	"net/http"
	"testing"

	"datago-harvester/lib/jsonstore"
	"datago-harvester/lib/scrapers/datago"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func keptIDs(items []datago.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.DataID)
	}
	return ids
}

func TestFilterByKeyword(t *testing.T) {
	items := []datago.Item{
		{DataID: "1", Title: "전북특별자치도 버스정류소 현황", Provider: "전북특별자치도"},
		{DataID: "2", Title: "가로수 현황", Provider: "전라북도 전주시"},
		{DataID: "3", Title: "서울시 공원 현황", Provider: "서울특별시"},
	}

	kept := FilterByKeyword(items, []string{"전북", "전라북도"})
	if diff := cmp.Diff([]string{"1", "2"}, keptIDs(kept)); diff != "" {
		t.Fatal(diff)
	}
}

func TestFilterByFormat(t *testing.T) {
	items := []datago.Item{
		{DataID: "1", FormatTypes: []string{"CSV"}},
		{DataID: "2", FormatTypes: []string{"LINK", "XLSX"}},
		{DataID: "3", FormatTypes: []string{"LINK"}},
		{DataID: "4", FormatTypes: nil},
	}

	kept := FilterByFormat(items, []string{"CSV", "XLSX"})
	if diff := cmp.Diff([]string{"1", "2", "4"}, keptIDs(kept)); diff != "" {
		t.Fatal(diff)
	}

	// an empty allow-list keeps only format-less items
	kept = FilterByFormat(items, nil)
	if diff := cmp.Diff([]string{"4"}, keptIDs(kept)); diff != "" {
		t.Fatal(diff)
	}
}

func TestFilterByAffordance(t *testing.T) {
	items := []datago.Item{
		{DataID: "1", HasDownloadBtn: true},
		{DataID: "2", FormatTypes: []string{"CSV"}},
		{DataID: "3"},
	}

	kept := FilterByAffordance(items, false)
	if diff := cmp.Diff([]string{"1"}, keptIDs(kept)); diff != "" {
		t.Fatal(diff)
	}

	kept = FilterByAffordance(items, true)
	if diff := cmp.Diff([]string{"1", "2"}, keptIDs(kept)); diff != "" {
		t.Fatal(diff)
	}
}

const enrichDetailFixture = `<html><body>
<table class="dataset-table fileDataDetail"><tr><th>메뉴</th><td>chrome</td></tr></table>
<table class="dataset-table fileDataDetail">
  <tr><th>확장자</th><td>CSV</td><th>제공기관</th><td>전북특별자치도</td></tr>
</table>
<a href="#" onclick="fn_fileDataDown('15104486','uddi:abc_1.csv')">다운로드</a>
</body></html>`

func TestEnrich(t *testing.T) {
	p, server := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(enrichDetailFixture))
	}))

	items := []datago.Item{
		{
			DataID:         "15104486",
			Title:          "전북특별자치도 버스정류소 현황",
			Provider:       "전북특별자치도",
			DetailURL:      server.URL + "/data/15104486/fileData.do",
			FormatTypes:    []string{"CSV"},
			HasDownloadBtn: true,
			ListPageOnly:   true,
		},
		{
			DataID:   "99",
			Title:    "서울시 공원 현황",
			Provider: "서울특별시",
		},
	}

	enriched, err := p.Enrich(context.Background(), items, 0)
	require.NoError(t, err)
	require.Len(t, enriched, 1)

	item := enriched[0]
	require.Equal(t, "CSV", item.Extension)
	require.Equal(t, "uddi:abc_1.csv", item.FileDetailID)
	require.False(t, item.ListPageOnly)

	// checkpoint holds the enriched set
	var persisted []datago.Item
	err = jsonstore.Load(p.Config.DetailCheckpoint, &persisted)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, "15104486", persisted[0].DataID)
}

func TestEnrichAllFiltered(t *testing.T) {
	p, _ := newTestPipeline(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no detail page should be fetched")
	}))

	items := []datago.Item{{DataID: "1", Title: "서울시 공원 현황", Provider: "서울특별시"}}
	enriched, err := p.Enrich(context.Background(), items, 0)
	require.NoError(t, err)
	require.Empty(t, enriched)
}
