package harvest

import (
	"context"
	"fmt"
	"log/slog"

	"datago-harvester/lib/jsonstore"
	"datago-harvester/lib/scrapers/datago"
)

// CollectList paginates the portal's search endpoint for keyword and
// persists every scraped surface record, unfiltered, to the list
// checkpoint. maxPages of 0 traverses all pages. A failed page fetch
// contributes zero items but never aborts the run; an empty overall result
// is an empty slice, not an error.
func (p *Pipeline) CollectList(ctx context.Context, keyword string, maxPages int) ([]datago.Item, error) {
	ctx, span := tracer.Start(ctx, "pipeline:CollectList")
	defer span.End()

	totalPages, err := p.Client.PageCount(ctx, keyword, p.Config.PerPage)
	if err != nil {
		return nil, fmt.Errorf("determine page count: %w", err)
	}

	pages := totalPages
	if maxPages > 0 && maxPages < totalPages {
		pages = maxPages
	}
	slog.InfoContext(ctx, "collecting search results",
		"keyword", keyword, "total_pages", totalPages, "pages_to_fetch", pages)

	var all []datago.Item
	for page := 1; page <= pages; page++ {
		p.progress(page, pages, fmt.Sprintf("page %d", page))

		items, err := p.Client.ListPage(ctx, keyword, p.Config.PerPage, page)
		if err != nil {
			slog.WarnContext(ctx, "list page fetch failed", "page", page, "err", err)
		} else if len(items) == 0 {
			slog.WarnContext(ctx, "list page yielded no items", "page", page)
		} else {
			slog.DebugContext(ctx, "list page parsed", "page", page, "items", len(items))
			all = append(all, items...)
		}

		if page < pages {
			p.Config.ListDelay.Sleep(ctx)
		}
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
	}

	if len(all) == 0 {
		slog.WarnContext(ctx, "search produced no items", "keyword", keyword)
		return nil, nil
	}

	err = jsonstore.Save(p.Config.ListCheckpoint, all)
	if err != nil {
		return nil, fmt.Errorf("persist list checkpoint: %w", err)
	}
	slog.InfoContext(ctx, "list checkpoint written",
		"items", len(all), "file", p.Config.ListCheckpoint)
	return all, nil
}

// LoadListCheckpoint reads a previously persisted list checkpoint.
func LoadListCheckpoint(path string) ([]datago.Item, error) {
	var items []datago.Item
	err := jsonstore.Load(path, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}
