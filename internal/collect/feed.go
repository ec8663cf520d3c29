package collect

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

const maxPerFeed = 50

// feedCandidates lists the newest entries of an RSS/Atom feed.
func feedCandidates(ctx context.Context, parser *gofeed.Parser, src notice.Source) ([]notice.Item, error) {
	feed, err := parser.ParseURLWithContext(src.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", src.FeedURL, err)
	}

	var items []notice.Item
	for _, entry := range feed.Items {
		if len(items) >= maxPerFeed {
			break
		}
		if item, ok := parseItem(entry, src); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func parseItem(entry *gofeed.Item, src notice.Source) (notice.Item, bool) {
	link := strings.TrimSpace(entry.Link)
	if link == "" {
		link = strings.TrimSpace(entry.GUID)
	}
	if link == "" {
		return notice.Item{}, false
	}

	title := collapseSpace(entry.Title)
	if title == "" {
		return notice.Item{}, false
	}

	return newItem(src, link, title), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
