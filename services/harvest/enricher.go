package harvest

import (
	"context"
	"fmt"
	"log/slog"

	"datago-harvester/lib/jsonstore"
	"datago-harvester/lib/scrapers/datago"
	"datago-harvester/lib/textutil"
)

// FilterByKeyword keeps the items whose title or provider contains at least
// one of the required keywords.
func FilterByKeyword(items []datago.Item, keywords []string) []datago.Item {
	var kept []datago.Item
	for _, item := range items {
		if textutil.ContainsAny(item.Title, keywords) || textutil.ContainsAny(item.Provider, keywords) {
			kept = append(kept, item)
		} else {
			slog.Debug("keyword filter dropped item", "title", item.Title, "provider", item.Provider)
		}
	}
	return kept
}

// FilterByFormat keeps the items whose declared format list is empty (the
// detail page will decide) or intersects the supported-extension allow-list.
func FilterByFormat(items []datago.Item, supported []string) []datago.Item {
	allowed := make(map[string]bool, len(supported))
	for _, ext := range supported {
		allowed[ext] = true
	}

	var kept []datago.Item
	for _, item := range items {
		if len(item.FormatTypes) == 0 {
			kept = append(kept, item)
			continue
		}
		match := false
		for _, f := range item.FormatTypes {
			if allowed[f] {
				match = true
				break
			}
		}
		if match {
			kept = append(kept, item)
		} else {
			slog.Debug("format filter dropped item", "title", item.Title, "formats", item.FormatTypes)
		}
	}
	return kept
}

// FilterByAffordance keeps the items whose download-affordance flag is set.
// With affordanceFromFormats enabled, declared format hints also count as
// an affordance signal -- a looser heuristic that trades precision for
// recall.
func FilterByAffordance(items []datago.Item, affordanceFromFormats bool) []datago.Item {
	var kept []datago.Item
	for _, item := range items {
		if item.HasDownloadBtn || (affordanceFromFormats && len(item.FormatTypes) > 0) {
			kept = append(kept, item)
		} else {
			slog.Debug("affordance filter dropped item", "title", item.Title)
		}
	}
	return kept
}

// Enrich applies the three filters in strict sequence, then visits the
// detail page of each survivor (capped at limit; 0 means no cap) to merge
// its structured metadata, and persists the enriched set to the detail
// checkpoint. Any filter emptying the set short-circuits to an empty result
// with a warning; that is never an error.
func (p *Pipeline) Enrich(ctx context.Context, items []datago.Item, limit int) ([]datago.Item, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Enrich")
	defer span.End()

	filtered := FilterByKeyword(items, p.Config.RequiredKeywords)
	slog.InfoContext(ctx, "keyword filter applied", "kept", len(filtered), "of", len(items))
	if len(filtered) == 0 {
		slog.WarnContext(ctx, "no items left after keyword filter")
		return nil, nil
	}

	formatted := FilterByFormat(filtered, p.Config.SupportedExtensions)
	slog.InfoContext(ctx, "format filter applied", "kept", len(formatted), "of", len(filtered))
	if len(formatted) == 0 {
		slog.WarnContext(ctx, "no items left after format filter")
		return nil, nil
	}

	actionable := FilterByAffordance(formatted, p.Config.AffordanceFromFormats)
	slog.InfoContext(ctx, "affordance filter applied", "kept", len(actionable), "of", len(formatted))
	if len(actionable) == 0 {
		slog.WarnContext(ctx, "no items left after affordance filter")
		return nil, nil
	}

	if limit > 0 && limit < len(actionable) {
		actionable = actionable[:limit]
	}

	enriched := make([]datago.Item, 0, len(actionable))
	for i := range actionable {
		item := actionable[i]
		p.progress(i+1, len(actionable), item.DisplayName())

		err := p.Client.Detail(ctx, &item)
		if err != nil {
			// enrichment is best effort; the surface record still flows on
			slog.WarnContext(ctx, "detail enrichment failed", "title", item.DisplayName(), "err", err)
		}
		enriched = append(enriched, item)

		if i < len(actionable)-1 {
			p.Config.DetailDelay.Sleep(ctx)
		}
		if ctx.Err() != nil {
			return enriched, ctx.Err()
		}
	}

	err := jsonstore.Save(p.Config.DetailCheckpoint, enriched)
	if err != nil {
		return nil, fmt.Errorf("persist detail checkpoint: %w", err)
	}
	slog.InfoContext(ctx, "detail checkpoint written",
		"items", len(enriched), "file", p.Config.DetailCheckpoint)
	return enriched, nil
}

// EnrichFromCheckpoint runs Enrich over a persisted list checkpoint.
func (p *Pipeline) EnrichFromCheckpoint(ctx context.Context, path string, limit int) ([]datago.Item, error) {
	items, err := LoadListCheckpoint(path)
	if err != nil {
		return nil, fmt.Errorf("load list checkpoint: %w", err)
	}
	slog.InfoContext(ctx, "list checkpoint loaded", "items", len(items), "file", path)
	return p.Enrich(ctx, items, limit)
}
