// Package collect is the source registry: it lists configured sources and
// discovers links not seen in earlier runs.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// Store is the persistence the registry reads from.
type Store interface {
	Sources(ctx context.Context) ([]notice.Source, error)
	Source(ctx context.Context, id int64) (notice.Source, error)
	SeenLinks(ctx context.Context, sourceID int64) (map[string]bool, error)
}

// PageFetcher downloads and parses a listing page.
type PageFetcher interface {
	Document(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// Result holds the results of a discovery run.
type Result struct {
	TotalFound int
	NewItems   int
	Duplicates int
	Failed     int
	Sources    map[int64]int
}

// Registry discovers new items per source.
type Registry struct {
	store Store
	pages PageFetcher
	feeds *gofeed.Parser
}

// NewRegistry creates a registry over store, using pages for listing pages.
func NewRegistry(store Store, pages PageFetcher) *Registry {
	return &Registry{store: store, pages: pages, feeds: gofeed.NewParser()}
}

// SourceIDs returns the ids of all configured sources.
func (r *Registry) SourceIDs(ctx context.Context) ([]int64, error) {
	sources, err := r.store.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	ids := make([]int64, len(sources))
	for i, s := range sources {
		ids[i] = s.ID
	}
	return ids, nil
}

// SourceInfo returns one source's title, URL and selectors.
func (r *Registry) SourceInfo(ctx context.Context, id int64) (notice.Source, error) {
	return r.store.Source(ctx, id)
}

// NewItems returns the items of a source whose links are not yet stored.
// The seen-link set is read once, before discovery.
func (r *Registry) NewItems(ctx context.Context, sourceID int64) ([]notice.Item, error) {
	items, _, err := r.discover(ctx, sourceID)
	return items, err
}

func (r *Registry) discover(ctx context.Context, sourceID int64) (fresh []notice.Item, found int, err error) {
	src, err := r.store.Source(ctx, sourceID)
	if err != nil {
		return nil, 0, fmt.Errorf("loading source %d: %w", sourceID, err)
	}
	seen, err := r.store.SeenLinks(ctx, sourceID)
	if err != nil {
		return nil, 0, fmt.Errorf("loading seen links for source %d: %w", sourceID, err)
	}
	if seen == nil {
		seen = make(map[string]bool)
	}

	var candidates []notice.Item
	if src.FeedURL != "" {
		candidates, err = feedCandidates(ctx, r.feeds, src)
	} else {
		candidates, err = r.pageCandidates(ctx, src)
	}
	if err != nil {
		return nil, 0, err
	}

	for _, c := range candidates {
		if seen[c.Link] {
			continue
		}
		seen[c.Link] = true
		fresh = append(fresh, c)
	}
	return fresh, len(candidates), nil
}

// Collect discovers new items for each source. A failing source is logged
// and contributes no items.
func (r *Registry) Collect(ctx context.Context, sourceIDs []int64) ([]notice.Item, *Result) {
	res := &Result{Sources: make(map[int64]int)}
	var all []notice.Item

	for _, id := range sourceIDs {
		if ctx.Err() != nil {
			break
		}
		items, found, err := r.discover(ctx, id)
		if err != nil {
			slog.Error("discovery failed", "source_id", id, "err", err)
			res.Failed++
			continue
		}
		res.TotalFound += found
		res.NewItems += len(items)
		res.Duplicates += found - len(items)
		res.Sources[id] = len(items)
		all = append(all, items...)
		slog.Info("discovered items", "source_id", id, "found", found, "new", len(items))
	}

	slog.Info("discovery complete", "found", res.TotalFound, "new", res.NewItems, "duplicates", res.Duplicates, "failed_sources", res.Failed)
	return all, res
}

func (r *Registry) pageCandidates(ctx context.Context, src notice.Source) ([]notice.Item, error) {
	if src.LinkSelector == "" {
		return nil, fmt.Errorf("source %d has neither feed_url nor link_selector", src.ID)
	}
	doc, err := r.pages.Document(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	base := doc.Url
	if base == nil {
		base, _ = url.Parse(src.URL)
	}

	var items []notice.Item
	doc.Find(src.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		a := s
		if goquery.NodeName(s) != "a" {
			a = s.Find("a[href]").First()
		}
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		title := collapseSpace(a.Text())
		if title == "" {
			title = collapseSpace(a.AttrOr("title", ""))
		}
		if title == "" {
			return
		}
		items = append(items, newItem(src, ref.String(), title))
	})
	return items, nil
}

func newItem(src notice.Source, link, title string) notice.Item {
	return notice.Item{
		SourceID:        src.ID,
		Link:            link,
		Title:           title,
		Category:        src.Title,
		ContentSelector: src.ContentSelector,
	}
}
