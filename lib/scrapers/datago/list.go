package datago

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"datago-harvester/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// DefaultPerPage is the portal's search page size.
const DefaultPerPage = 10

func searchParams(keyword string, perPage int) map[string]string {
	return map[string]string{
		"dType":    "FILE",
		"keyword":  keyword,
		"operator": "AND",
		"perPage":  strconv.Itoa(perPage),
	}
}

var (
	updatePageRegex = regexp.MustCompile(`updatePage\((\d+)\)`)
	resultCountRegex = regexp.MustCompile(`총\s*([0-9,]+)\s*건`)
)

// countPages determines the total page count of a search-result document,
// trying three strategies in order and returning the first one that yields a
// value:
//  1. the "last page" control's embedded page-jump argument
//  2. the "총 N건" result-count string, ceiling-divided by the page size
//  3. the maximum page number among the visible pagination controls
func countPages(doc *goquery.Document, perPage int) int {
	if onclick, ok := doc.Find("nav.pagination a.control.last").Attr("onclick"); ok {
		if groups := updatePageRegex.FindStringSubmatch(onclick); len(groups) == 2 {
			if n, err := strconv.Atoi(groups[1]); err == nil && n > 0 {
				slog.Debug("page count from last-page control", "pages", n)
				return n
			}
		}
	}

	countSel := doc.Find(".result-count strong")
	if countSel.Length() == 0 {
		countSel = doc.Find("strong")
	}
	if groups := resultCountRegex.FindStringSubmatch(countSel.Text()); len(groups) == 2 {
		total, err := strconv.Atoi(strings.ReplaceAll(groups[1], ",", ""))
		if err == nil && total > 0 {
			pages := (total + perPage - 1) / perPage
			slog.Debug("page count from result count", "total", total, "pages", pages)
			return pages
		}
	}

	maxPage := 1
	doc.Find("nav.pagination a").Each(func(_ int, sel *goquery.Selection) {
		onclick, _ := sel.Attr("onclick")
		groups := updatePageRegex.FindStringSubmatch(onclick)
		if len(groups) != 2 {
			return
		}
		if n, err := strconv.Atoi(groups[1]); err == nil && n > maxPage {
			maxPage = n
		}
	})
	slog.Debug("page count from pagination controls", "pages", maxPage)
	return maxPage
}

// PageCount fetches the first result page for keyword and reports the total
// page count. A failed fetch reports a single page rather than an error so a
// listing run degrades instead of aborting.
func (c *Client) PageCount(ctx context.Context, keyword string, perPage int) (int, error) {
	ctx, span := tracer.Start(ctx, "client:PageCount")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(searchParams(keyword, perPage)).
		Get(listPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch search page")
		return 0, err
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "search page returned non-200, assuming one page", "status", res.StatusCode())
		return 1, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse search page html")
		return 0, err
	}
	return countPages(doc, perPage), nil
}

// title-embedded format tokens; stripped from the display title and kept as
// a weak extension hint
var titleFormatTokens = []string{"CSV", "JSON", "XML", "XLSX", "XLS", "PDF", "HWPX", "HWP", "JPG"}

func splitTitleFormats(fullTitle string) (title, titleFormat string) {
	title = fullTitle
	for _, tok := range titleFormatTokens {
		if strings.Contains(title, tok) {
			if titleFormat == "" {
				titleFormat = tok
			}
			title = strings.ReplaceAll(title, tok, "")
		}
	}
	title = strings.TrimSpace(strings.ReplaceAll(title, "+", ""))
	return title, titleFormat
}

var dataIDRegex = regexp.MustCompile(`/data/(\d+)/fileData`)

// parseListItem extracts the surface fields of one search-result entry.
// Returns false when the entry has no title anchor (decorative list rows).
func (c *Client) parseListItem(sel *goquery.Selection) (Item, bool) {
	titleAnchor := sel.Find("dl dt a").First()
	if titleAnchor.Length() == 0 {
		return Item{}, false
	}

	var item Item
	item.FullTitle = htmlutil.CleanText(titleAnchor.Text())
	item.Title, item.TitleFormat = splitTitleFormats(item.FullTitle)

	if href, ok := titleAnchor.Attr("href"); ok {
		item.DetailURL = c.resolveURL(href)
	}
	if groups := dataIDRegex.FindStringSubmatch(item.DetailURL); len(groups) == 2 {
		item.DataID = groups[1]
	}

	item.FormatTypes = []string{}
	sel.Find("dl dt a span.data-format, dl dt a span.tagset, dl dt span.data-format, dl dt span.tagset").
		Each(func(_ int, span *goquery.Selection) {
			if text := htmlutil.CleanText(span.Text()); text != "" {
				item.FormatTypes = append(item.FormatTypes, text)
			}
		})

	item.Provider = htmlutil.CleanText(sel.Find(`p:contains('제공기관') > span.data`).First().Text())
	item.Category = htmlutil.CleanText(sel.Find("p > span:first-child").First().Text())
	item.MediaType = htmlutil.CleanText(sel.Find(`p:contains('매체유형') > span.data`).First().Text())
	item.UpdateDate = htmlutil.CleanText(sel.Find(`p:contains('수정일') > span`).First().Text())

	if cycle := htmlutil.CleanText(sel.Find(`p:contains('주기성 데이터')`).First().Text()); cycle != "" {
		item.UpdateCycle = strings.TrimSpace(strings.Replace(cycle, "주기성 데이터", "", 1))
	}
	// always a slice, never null, in the persisted checkpoint
	item.Keywords = []string{}
	if kw := htmlutil.CleanText(sel.Find(`p:contains('키워드')`).First().Text()); strings.Contains(kw, "키워드") {
		kw = strings.TrimSpace(strings.Replace(kw, "키워드", "", 1))
		for _, part := range strings.Split(kw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				item.Keywords = append(item.Keywords, part)
			}
		}
	}

	// rough affordance check only; the detail page re-derives this from the
	// actual download trigger
	download := sel.Find(`a:contains('다운로드'), a.download-btn, a.btn-download, a[onclick*='download']`)
	item.HasDownloadBtn = download.Length() > 0

	item.ListPageOnly = true
	return item, true
}

// ListPage fetches one search-result page and parses its entries. A non-200
// response yields zero items, not an error.
func (c *Client) ListPage(ctx context.Context, keyword string, perPage, page int) ([]Item, error) {
	ctx, span := tracer.Start(ctx, "client:ListPage")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(searchParams(keyword, perPage)).
		SetQueryParam("currentPage", strconv.Itoa(page)).
		Get(listPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch list page")
		return nil, err
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "list page returned non-200", "page", page, "status", res.StatusCode())
		return nil, nil
	}

	c.dumpPage(fmt.Sprintf("list_%d.html", page), res.Body())

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse list page html")
		return nil, err
	}

	var items []Item
	doc.Find("div.result-list > ul > li").Each(func(_ int, sel *goquery.Selection) {
		if item, ok := c.parseListItem(sel); ok {
			items = append(items, item)
		}
	})
	return items, nil
}
