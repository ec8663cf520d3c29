// Package fetch downloads notice content. The Executor partitions a batch
// into fast and grouped work, retries each item a bounded number of times and
// returns exactly one FetchResult per input item.
package fetch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// Fetcher retrieves the content of a single item.
type Fetcher interface {
	Fetch(ctx context.Context, item notice.Item) (notice.Item, error)
}

// Options configure an Executor.
type Options struct {
	MaxRetries        int
	FastRetryDelay    time.Duration
	GroupedRetryDelay time.Duration
	MaxFastWorkers    int
	// IsFast reports whether a domain is safe for fully parallel fetching.
	IsFast func(domain string) bool
}

// Executor runs the fetch phase of a pipeline run.
type Executor struct {
	fetcher Fetcher
	opts    Options
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor.
func NewExecutor(f Fetcher, opts Options) *Executor {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxFastWorkers <= 0 {
		opts.MaxFastWorkers = 20
	}
	return &Executor{fetcher: f, opts: opts, sleep: sleepCtx}
}

// Result summarizes a fetch phase.
type Result struct {
	Fetched int
	Failed  int
	Workers int
}

// Run fetches every item and returns one result per item, sorted by source.
func (e *Executor) Run(ctx context.Context, items []notice.Item) ([]notice.FetchResult, Result) {
	results := make([]notice.FetchResult, len(items))
	fast, groups := e.partition(items)

	workers := WorkerBudget(len(groups), len(fast), e.opts.MaxFastWorkers)
	slog.Info("fetch started", "items", len(items), "fast", len(fast), "grouped_sources", len(groups), "workers", workers)
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, i := range fast {
		g.Go(func() error {
			results[i] = e.fetchWithRetry(ctx, items[i], e.opts.FastRetryDelay)
			return nil
		})
	}
	for _, group := range groups {
		g.Go(func() error {
			for _, i := range group {
				results[i] = e.fetchWithRetry(ctx, items[i], e.opts.GroupedRetryDelay)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Item.SourceID < results[b].Item.SourceID
	})

	summary := Result{Workers: workers}
	for _, r := range results {
		if r.Success {
			summary.Fetched++
		} else {
			summary.Failed++
		}
	}
	slog.Info("fetch complete", "fetched", summary.Fetched, "failed", summary.Failed, "elapsed", time.Since(start).Round(time.Millisecond))
	return results, summary
}

// WorkerBudget is one worker per grouped source plus up to maxFast workers
// for fast items, never less than one.
func WorkerBudget(groups, fastItems, maxFast int) int {
	n := groups + min(maxFast, fastItems)
	if n < 1 {
		return 1
	}
	return n
}

// partition returns indexes of fast items and, per grouped source in first-
// seen order, the indexes of its items.
func (e *Executor) partition(items []notice.Item) (fast []int, groups [][]int) {
	bySource := make(map[int64]int)
	for i, it := range items {
		if e.opts.IsFast != nil && e.opts.IsFast(Domain(it.Link)) {
			fast = append(fast, i)
			continue
		}
		g, ok := bySource[it.SourceID]
		if !ok {
			g = len(groups)
			bySource[it.SourceID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return fast, groups
}

func (e *Executor) fetchWithRetry(ctx context.Context, item notice.Item, delay time.Duration) notice.FetchResult {
	attempts := e.opts.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, delay); err != nil {
				return notice.FetchResult{Item: item, Err: err, Attempts: attempt - 1}
			}
		}
		fetched, err := e.fetcher.Fetch(ctx, item)
		if err == nil {
			return notice.FetchResult{Item: fetched, Success: true, Attempts: attempt}
		}
		lastErr = err
		slog.Warn("fetch attempt failed", "source_id", item.SourceID, "link", item.Link, "attempt", attempt, "err", err)
		if ctx.Err() != nil {
			return notice.FetchResult{Item: item, Err: lastErr, Attempts: attempt}
		}
	}
	slog.Error("fetch failed", "source_id", item.SourceID, "link", item.Link, "attempts", attempts, "err", lastErr)
	return notice.FetchResult{Item: item, Err: lastErr, Attempts: attempts}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
