// Package harvest drives the four-stage collection pipeline:
// list -> detail -> download -> upload. Each stage consumes the previous
// stage's persisted checkpoint and produces its own, so every stage can be
// re-run independently; the portal's stable data id is the idempotence key
// throughout and doubles as the per-item directory name.
package harvest

import (
	"context"
	"log/slog"

	"datago-harvester/lib/scrapers/datago"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/harvest")

// ProgressFunc reports per-item progress to the caller's UI. May be nil.
type ProgressFunc func(current, total int, label string)

type Pipeline struct {
	Client   *datago.Client
	Config   Config
	Progress ProgressFunc
}

func NewPipeline(client *datago.Client, cfg Config) *Pipeline {
	return &Pipeline{Client: client, Config: cfg}
}

func (p *Pipeline) progress(current, total int, label string) {
	if p.Progress != nil {
		p.Progress(current, total, label)
	}
}

// RunAllOptions carries the knobs of a full list-to-upload run.
type RunAllOptions struct {
	Keyword  string
	MaxPages int
	Limit    int
}

// RunAll executes all four stages in order. A stage yielding an empty set
// aborts the remainder of the run; that is a normal outcome, not an error.
func (p *Pipeline) RunAll(ctx context.Context, opts RunAllOptions) error {
	ctx, span := tracer.Start(ctx, "pipeline:RunAll")
	defer span.End()

	items, err := p.CollectList(ctx, opts.Keyword, opts.MaxPages)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		slog.WarnContext(ctx, "listing produced no items, stopping pipeline")
		return nil
	}

	enriched, err := p.Enrich(ctx, items, opts.Limit)
	if err != nil {
		return err
	}
	if len(enriched) == 0 {
		slog.WarnContext(ctx, "no items survived filtering and enrichment, stopping pipeline")
		return nil
	}

	report, err := p.Download(ctx, enriched, Selection{Limit: opts.Limit})
	if err != nil {
		return err
	}
	if report.SuccessCount == 0 {
		slog.WarnContext(ctx, "no items downloaded, stopping pipeline")
		return nil
	}

	_, err = p.Upload(ctx, UploadOptions{})
	return err
}
