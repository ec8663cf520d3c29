// Package process runs fetched notices through text extraction and
// summarization. Each item is driven by a small state machine; items run
// concurrently on a bounded pool.
package process

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/noticeflow/internal/notice"
	"github.com/TobiSchelling/noticeflow/internal/ocr"
	"github.com/TobiSchelling/noticeflow/internal/suggest"
)

// Summarizer produces the JSON summary text for one notice.
type Summarizer interface {
	Summarize(ctx context.Context, title string, images []notice.Image, content string) (string, error)
}

// Options configure a Pipeline.
type Options struct {
	Workers        int
	MaxSuggestions int
}

// Pipeline is the processing stage.
type Pipeline struct {
	ocr            ocr.Extractor
	summarizer     Summarizer
	engine         *suggest.Engine
	workers        int
	maxSuggestions int
	observe        func(item notice.Item, trace []State)
}

// New creates a Pipeline. A nil extractor disables OCR; a nil engine uses
// the wall clock.
func New(extractor ocr.Extractor, summarizer Summarizer, engine *suggest.Engine, opts Options) *Pipeline {
	if extractor == nil {
		extractor = ocr.Nop{}
	}
	if engine == nil {
		engine = suggest.New()
	}
	if opts.Workers <= 0 {
		opts.Workers = 20
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = suggest.DefaultMax
	}
	return &Pipeline{
		ocr:            extractor,
		summarizer:     summarizer,
		engine:         engine,
		workers:        opts.Workers,
		maxSuggestions: opts.MaxSuggestions,
	}
}

// Result summarizes a processing phase.
type Result struct {
	Succeeded int
	Failed    int
}

// Run processes every item and returns the outcomes sorted by source.
// Items still queued when ctx is cancelled are not processed.
func (p *Pipeline) Run(ctx context.Context, items []notice.Item) ([]notice.Processed, Result) {
	slog.Info("processing started", "items", len(items), "workers", p.workers)
	start := time.Now()

	out := make([]notice.Processed, len(items))
	done := make([]bool, len(items))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out[i] = p.Step(ctx, item)
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	processed := out[:0]
	for i := range out {
		if done[i] {
			processed = append(processed, out[i])
		}
	}
	sort.SliceStable(processed, func(a, b int) bool {
		return processed[a].Item.SourceID < processed[b].Item.SourceID
	})

	var res Result
	for _, pr := range processed {
		if pr.Outcome.Status == notice.StatusSuccess {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	slog.Info("processing complete", "succeeded", res.Succeeded, "failed", res.Failed, "elapsed", time.Since(start).Round(time.Millisecond))
	return processed, res
}
