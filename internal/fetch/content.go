package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// ErrNoContent is returned when a page yields no notice body.
var ErrNoContent = errors.New("no extractable content")

// ContentOptions configure a ContentFetcher.
type ContentOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerSecond throttles requests to hosts for which Throttled
	// reports true. Zero disables throttling.
	RatePerSecond float64
	Throttled     func(domain string) bool
}

// ContentFetcher downloads notice pages and extracts body HTML and images.
type ContentFetcher struct {
	client    *http.Client
	userAgent string
	rate      float64
	throttled func(string) bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(opts ContentOptions) *ContentFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "noticeflow/1.0"
	}
	return &ContentFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		rate:      opts.RatePerSecond,
		throttled: opts.Throttled,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Fetch downloads item.Link and fills RawContent and Images. With a content
// selector the first match's outer HTML is used; otherwise readability
// extracts the article.
func (f *ContentFetcher) Fetch(ctx context.Context, item notice.Item) (notice.Item, error) {
	body, pageURL, err := f.get(ctx, item.Link)
	if err != nil {
		return item, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return item, fmt.Errorf("parsing %s: %w", item.Link, err)
	}

	var content *goquery.Selection
	if item.ContentSelector != "" {
		content = doc.Find(item.ContentSelector).First()
		if content.Length() == 0 {
			return item, fmt.Errorf("selector %q matched nothing on %s: %w", item.ContentSelector, item.Link, ErrNoContent)
		}
		item.RawContent, err = goquery.OuterHtml(content)
		if err != nil {
			return item, fmt.Errorf("rendering content: %w", err)
		}
	} else {
		article, err := readability.FromReader(bytes.NewReader(body), pageURL)
		if err != nil {
			return item, fmt.Errorf("readability on %s: %w", item.Link, err)
		}
		item.RawContent = strings.TrimSpace(article.Content)
		if item.RawContent != "" {
			if d, err := goquery.NewDocumentFromReader(strings.NewReader(item.RawContent)); err == nil {
				content = d.Selection
			}
		}
	}

	if strings.TrimSpace(item.RawContent) == "" {
		return item, fmt.Errorf("%s: %w", item.Link, ErrNoContent)
	}
	item.Images = extractImages(content, pageURL)
	return item, nil
}

// Document downloads pageURL and parses it for selector queries.
func (f *ContentFetcher) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, u, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	doc.Url = u
	return doc, nil
}

func (f *ContentFetcher) get(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if err := f.wait(ctx, Domain(rawURL)); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, &HTTPError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL
	}
	return body, u, nil
}

func (f *ContentFetcher) wait(ctx context.Context, domain string) error {
	if f.rate <= 0 || f.throttled == nil || !f.throttled(domain) {
		return nil
	}
	f.mu.Lock()
	l, ok := f.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.rate), 1)
		f.limiters[domain] = l
	}
	f.mu.Unlock()
	return l.Wait(ctx)
}

func extractImages(content *goquery.Selection, base *url.URL) []notice.Image {
	if content == nil {
		return nil
	}
	var images []notice.Image
	seen := make(map[string]bool)
	content.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		abs := ref.String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		images = append(images, notice.Image{URL: abs, Filename: filename(ref)})
	})
	return images
}

func filename(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// Domain returns the lowercased host (with port) of rawURL, or "".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// HTTPError is a response with status >= 400.
type HTTPError struct {
	URL  string
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}
