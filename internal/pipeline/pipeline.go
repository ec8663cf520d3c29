package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/TobiSchelling/noticeflow/internal/collect"
	"github.com/TobiSchelling/noticeflow/internal/config"
	"github.com/TobiSchelling/noticeflow/internal/fetch"
	"github.com/TobiSchelling/noticeflow/internal/llm"
	"github.com/TobiSchelling/noticeflow/internal/notice"
	"github.com/TobiSchelling/noticeflow/internal/notify"
	"github.com/TobiSchelling/noticeflow/internal/ocr"
	"github.com/TobiSchelling/noticeflow/internal/process"
	"github.com/TobiSchelling/noticeflow/internal/suggest"
	"github.com/TobiSchelling/noticeflow/internal/summarize"
)

// Store is the persistence a run reads from and writes to. Both the SQLite
// and the Postgres stores satisfy it.
type Store interface {
	collect.Store
	notify.Store
	InsertNotice(ctx context.Context, item notice.Item) (int64, error)
	UpdateNoticeOutcome(ctx context.Context, key notice.Key, outcome notice.Outcome) error
	StartRun(ctx context.Context) (notice.Run, error)
	FinishRun(ctx context.Context, run notice.Run) error
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Run   notice.Run
	Steps []StepResult
}

// Deps are the collaborators of a run. Zero fields are built from config.
type Deps struct {
	Pages      collect.PageFetcher
	Fetcher    fetch.Fetcher
	OCR        ocr.Extractor
	Summarizer process.Summarizer
	Sender     notify.Sender
	Engine     *suggest.Engine
}

// Pipeline orchestrates discover, fetch, store, process and distribute.
type Pipeline struct {
	cfg         *config.Config
	store       Store
	registry    *collect.Registry
	executor    *fetch.Executor
	processor   *process.Pipeline
	distributor *notify.Distributor
}

// New creates a pipeline with collaborators built from cfg.
func New(cfg *config.Config, store Store) (*Pipeline, error) {
	return NewWithDeps(cfg, store, Deps{})
}

// NewWithDeps creates a pipeline, filling any missing collaborator from cfg.
func NewWithDeps(cfg *config.Config, store Store, deps Deps) (*Pipeline, error) {
	isFast := func(domain string) bool { return cfg.IsFastDomain(domain) }

	if deps.Pages == nil || deps.Fetcher == nil {
		content := fetch.NewContentFetcher(fetch.ContentOptions{
			UserAgent:     cfg.Sources.UserAgent,
			Timeout:       cfg.Sources.RequestTimeout,
			RatePerSecond: cfg.Sources.GroupedRatePerSecond,
			Throttled:     func(domain string) bool { return !isFast(domain) },
		})
		if deps.Pages == nil {
			deps.Pages = content
		}
		if deps.Fetcher == nil {
			deps.Fetcher = content
		}
	}
	if deps.OCR == nil {
		deps.OCR = ocr.Nop{}
		if cfg.Processing.OCR.Enabled {
			deps.OCR = ocr.NewHTTPExtractor(cfg.Processing.OCR.Endpoint, cfg.Processing.OCR.Timeout)
		}
	}
	if deps.Summarizer == nil {
		provider := llm.CreateProvider(cfg.Summarization, cfg.Secrets)
		if provider == nil {
			slog.Warn("no summarization provider configured; every notice will get the fallback summary",
				"provider", cfg.Summarization.Provider)
		}
		deps.Summarizer = summarize.New(provider, summarize.Options{
			MaxTokens:       cfg.Summarization.MaxTokens,
			MaxContentChars: cfg.Summarization.MaxContentChars,
			RepairJSON:      cfg.Summarization.RepairJSON,
		})
	}
	if deps.Sender == nil {
		deps.Sender = notify.NewMailer(cfg.Distribution, cfg.Secrets)
	}

	renderer, err := notify.NewRenderer(cfg.Distribution.Brand)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:      cfg,
		store:    store,
		registry: collect.NewRegistry(store, deps.Pages),
		executor: fetch.NewExecutor(deps.Fetcher, fetch.Options{
			MaxRetries:        cfg.Fetch.MaxRetries,
			FastRetryDelay:    cfg.Fetch.FastRetryDelay,
			GroupedRetryDelay: cfg.Fetch.GroupedRetryDelay,
			MaxFastWorkers:    cfg.Fetch.MaxFastWorkers,
			IsFast:            isFast,
		}),
		processor: process.New(deps.OCR, deps.Summarizer, deps.Engine, process.Options{
			Workers:        cfg.Processing.Workers,
			MaxSuggestions: cfg.Processing.MaxSuggestions,
		}),
		distributor: notify.NewDistributor(store, deps.Sender, renderer, cfg.Distribution.Workers),
	}, nil
}

// Run executes one full run. A non-zero sourceID limits the run to that
// source. The run stops between steps once ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, sourceID int64) *Result {
	r := &Result{}
	run, err := p.store.StartRun(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Start", Err: err})
		return r
	}
	r.Run = run
	defer p.finish(ctx, r)
	slog.Info("run started", "run_id", run.ID, "source_id", sourceID)

	// Step 1: Discover
	items, step := p.runDiscover(ctx, sourceID)
	r.Run.Candidates = len(items)
	r.Steps = append(r.Steps, step)
	if step.Err != nil || len(items) == 0 || p.cancelled(ctx, r, "Fetch") {
		return r
	}

	// Step 2: Fetch
	results, fetchRes := p.executor.Run(ctx, items)
	r.Run.Fetched, r.Run.Failed = fetchRes.Fetched, fetchRes.Failed
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d notices, %d failed", fetchRes.Fetched, fetchRes.Failed),
	})
	if p.cancelled(ctx, r, "Store") {
		return r
	}

	// Step 3: Store
	fetched, step := p.runStore(ctx, results)
	r.Steps = append(r.Steps, step)
	if len(fetched) == 0 || p.cancelled(ctx, r, "Process") {
		return r
	}

	// Step 4: Process
	processed, step := p.runProcess(ctx, fetched)
	r.Run.Processed = len(processed)
	r.Steps = append(r.Steps, step)
	if p.cancelled(ctx, r, "Distribute") {
		return r
	}

	// Step 5: Distribute
	res, err := p.distributor.Run(ctx, processed)
	r.Run.Delivered = res.Sent
	r.Steps = append(r.Steps, StepResult{
		Name:    "Distribute",
		Summary: fmt.Sprintf("Sent %d notices, %d failed, %d without subscribers", res.Sent, res.Failed, res.Skipped),
		Err:     err,
	})
	return r
}

func (p *Pipeline) runDiscover(ctx context.Context, sourceID int64) ([]notice.Item, StepResult) {
	step := StepResult{Name: "Discover"}
	var ids []int64
	if sourceID != 0 {
		if _, err := p.registry.SourceInfo(ctx, sourceID); err != nil {
			step.Err = err
			return nil, step
		}
		ids = []int64{sourceID}
	} else {
		var err error
		if ids, err = p.registry.SourceIDs(ctx); err != nil {
			step.Err = err
			return nil, step
		}
	}

	items, res := p.registry.Collect(ctx, ids)
	step.Summary = fmt.Sprintf("Found %d new notices (%d total, %d duplicates, %d sources failed)",
		res.NewItems, res.TotalFound, res.Duplicates, res.Failed)
	return items, step
}

// runStore persists successful fetches and returns their items in order.
func (p *Pipeline) runStore(ctx context.Context, results []notice.FetchResult) ([]notice.Item, StepResult) {
	var (
		fetched []notice.Item
		errs    *multierror.Error
		stored  int
	)
	for _, res := range results {
		if !res.Success {
			continue
		}
		fetched = append(fetched, res.Item)
		id, err := p.store.InsertNotice(ctx, res.Item)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if id != 0 {
			stored++
		}
	}
	return fetched, StepResult{
		Name:    "Store",
		Summary: fmt.Sprintf("Stored %d notices", stored),
		Err:     errs.ErrorOrNil(),
	}
}

func (p *Pipeline) runProcess(ctx context.Context, items []notice.Item) ([]notice.Processed, StepResult) {
	processed, res := p.processor.Run(ctx, items)

	var errs *multierror.Error
	for _, pr := range processed {
		if err := p.store.UpdateNoticeOutcome(ctx, pr.Item.Key(), pr.Outcome); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("saving outcome for %s: %w", pr.Item.Link, err))
		}
	}
	return processed, StepResult{
		Name:    "Process",
		Summary: fmt.Sprintf("Processed %d notices: %d summarized, %d failed", len(processed), res.Succeeded, res.Failed),
		Err:     errs.ErrorOrNil(),
	}
}

// cancelled records a stop before step next when ctx is done.
func (p *Pipeline) cancelled(ctx context.Context, r *Result, next string) bool {
	if ctx.Err() == nil {
		return false
	}
	r.Steps = append(r.Steps, StepResult{
		Name: next,
		Err:  fmt.Errorf("run cancelled before %s: %w", next, ctx.Err()),
	})
	return true
}

func (p *Pipeline) finish(ctx context.Context, r *Result) {
	now := time.Now().UTC()
	r.Run.FinishedAt = &now
	if err := p.store.FinishRun(context.WithoutCancel(ctx), r.Run); err != nil {
		slog.Error("recording run failed", "run_id", r.Run.ID, "err", err)
	}
	elapsed := now.Sub(r.Run.StartedAt).Round(time.Second)
	slog.Info("run complete",
		"run_id", r.Run.ID,
		"candidates", r.Run.Candidates,
		"fetched", r.Run.Fetched,
		"failed", r.Run.Failed,
		"processed", r.Run.Processed,
		"delivered", r.Run.Delivered,
		"elapsed", elapsed,
	)
}

// Err joins the errors of all steps.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

// DryRun reports, per source, how many new notices a run would fetch and
// how many subscribers would receive them. Nothing is fetched or written.
func (p *Pipeline) DryRun(ctx context.Context, sourceID int64) *Result {
	r := &Result{}

	ids := []int64{sourceID}
	if sourceID == 0 {
		var err error
		if ids, err = p.registry.SourceIDs(ctx); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Discover", Err: err})
			return r
		}
	}

	subscribers, err := p.store.SubscribersBySource(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Distribute", Err: err})
		return r
	}

	for _, id := range ids {
		src, err := p.registry.SourceInfo(ctx, id)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: fmt.Sprintf("Source %d", id), Err: err})
			continue
		}
		name := fmt.Sprintf("%s (#%d)", src.Title, src.ID)
		items, err := p.registry.NewItems(ctx, id)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: name, Err: err})
			continue
		}
		r.Run.Candidates += len(items)
		r.Steps = append(r.Steps, StepResult{
			Name:    name,
			Summary: fmt.Sprintf("[dry-run] %d new notices, %d subscribers", len(items), len(subscribers[id])),
		})
	}
	return r
}
