package datago

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"datago-harvester/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// applyDetailRow maps one metadata-table row onto the item, keyed by the
// recognized Korean header substrings.
func applyDetailRow(item *Item, header, value string) {
	switch {
	case strings.Contains(header, "파일데이터명"):
		item.FileDataName = value
	case strings.Contains(header, "분류체계"):
		item.Category = value
	case strings.Contains(header, "제공기관"):
		item.Provider = value
	case strings.Contains(header, "관리부서명"):
		item.Department = value
	case strings.Contains(header, "관리부서 전화번호"):
		item.ContactPhone = value
	case strings.Contains(header, "수집방법"):
		item.CollectionMethod = value
	case strings.Contains(header, "업데이트 주기"):
		item.UpdateCycle = value
	case strings.Contains(header, "차기 등록 예정일"):
		item.NextUpdateDate = value
	case strings.Contains(header, "확장자"):
		item.Extension = value
	case strings.Contains(header, "키워드"):
		item.Keywords = item.Keywords[:0]
		for _, kw := range strings.Split(value, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				item.Keywords = append(item.Keywords, kw)
			}
		}
	case strings.Contains(header, "등록일"):
		item.RegisterDate = value
	case strings.Contains(header, "수정일"):
		item.UpdateDate = value
	case strings.Contains(header, "제공형태"):
		item.ProvisionType = value
	case strings.Contains(header, "설명"):
		item.Description = value
	case strings.Contains(header, "기타 유의사항"):
		item.Note = value
	case strings.Contains(header, "이용허락범위"):
		item.License = value
	}
}

func parseMetaTable(ctx context.Context, item *Item, doc *goquery.Document) {
	tables := doc.Find(".dataset-table.fileDataDetail")
	if tables.Length() < 2 {
		// With fewer than two candidate tables the page layout is not the
		// known one; the first table is usually navigation chrome, so no
		// metadata is taken. When there are two or more, the second is the
		// authoritative one -- a quirk of the portal's markup, confirmed
		// empirically, not to be "fixed" without evidence.
		slog.WarnContext(ctx, "metadata table not found on detail page", "url", item.DetailURL, "candidates", tables.Length())
		return
	}
	metaTable := tables.Eq(1)

	metaTable.Find("tr").Each(func(_ int, row *goquery.Selection) {
		headers := row.Find("th")
		values := row.Find("td")
		headers.Each(func(i int, th *goquery.Selection) {
			if i >= values.Length() {
				return
			}
			header := htmlutil.CleanText(th.Text())
			td := values.Eq(i)
			value := htmlutil.CleanText(td.Text())
			if value == "" && strings.Contains(header, "이용허락범위") {
				// license cells sometimes hold the text inside an anchor
				value = htmlutil.CleanText(td.Find("a").First().Text())
			}
			applyDetailRow(item, header, value)
		})
	})
}

func parseDownloadTrigger(ctx context.Context, item *Item, doc *goquery.Document) {
	var buttons []*goquery.Selection
	doc.Find("a, button").Each(func(_ int, sel *goquery.Selection) {
		text := htmlutil.CleanText(sel.Text())
		if strings.Contains(text, "다운로드") && !strings.Contains(strings.ToLower(text), "meta") {
			buttons = append(buttons, sel)
		}
	})

	if len(buttons) == 0 {
		item.HasDownloadBtn = false
		slog.WarnContext(ctx, "no download trigger on detail page", "url", item.DetailURL)
		return
	}

	item.HasDownloadBtn = true
	btn := buttons[0]
	item.DownloadBtnText = htmlutil.CleanText(btn.Text())

	onclick, _ := btn.Attr("onclick")
	args := ParseOnclickArgs(onclick)
	if len(args) >= 2 {
		item.FileID = args[0]
		item.FileDetailID = args[1]
		if len(args) > 2 {
			item.DownloadParams = args[2:]
		}
		slog.DebugContext(ctx, "parsed download trigger",
			"data_id", item.DataID, "file_id", item.FileID, "file_detail_id", item.FileDetailID)
	}
}

// Detail fetches the item's detail page and merges its structured metadata
// into the item: the metadata table fields, a re-derived download-affordance
// flag and the raw download-trigger parameters. The item is returned
// unchanged (with no error) on a non-200 response; enrichment is best
// effort per item.
func (c *Client) Detail(ctx context.Context, item *Item) error {
	ctx, span := tracer.Start(ctx, "client:Detail")
	defer span.End()

	if item.DetailURL == "" {
		return fmt.Errorf("item %q has no detail url", item.DisplayName())
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		Get(item.DetailURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch detail page")
		return err
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "detail page returned non-200", "url", item.DetailURL, "status", res.StatusCode())
		return nil
	}

	c.dumpPage(fmt.Sprintf("detail_%s.html", item.DataID), res.Body())

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse detail page html")
		return err
	}

	parseMetaTable(ctx, item, doc)
	parseDownloadTrigger(ctx, item, doc)

	item.ListPageOnly = false
	return nil
}
