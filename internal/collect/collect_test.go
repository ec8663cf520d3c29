package collect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/noticeflow/internal/fetch"
	"github.com/TobiSchelling/noticeflow/internal/notice"
)

type fakeStore struct {
	sources []notice.Source
	seen    map[int64]map[string]bool
}

func (s *fakeStore) Sources(context.Context) ([]notice.Source, error) { return s.sources, nil }

func (s *fakeStore) Source(_ context.Context, id int64) (notice.Source, error) {
	for _, src := range s.sources {
		if src.ID == id {
			return src, nil
		}
	}
	return notice.Source{}, errors.New("not found")
}

func (s *fakeStore) SeenLinks(_ context.Context, id int64) (map[string]bool, error) {
	out := map[string]bool{}
	for k, v := range s.seen[id] {
		out[k] = v
	}
	return out, nil
}

const listPage = `<html><body><table class="board">
<tr><td class="subject"><a href="/notice/view?id=3">  2025 장학금
   신청 안내 </a></td></tr>
<tr><td class="subject"><a href="view?id=2">교환학생 모집</a></td></tr>
<tr><td class="subject"><a href="/notice/view?id=3">2025 장학금 신청 안내</a></td></tr>
<tr><td class="subject"><a href="#">빈 링크</a></td></tr>
<tr><td class="subject"><a href="/notice/view?id=1"></a></td></tr>
</table></body></html>`

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>학생처</title>
<item><title>행사 안내</title><link>https://feed.example/n/10</link></item>
<item><title>이미 본 공지</title><link>https://feed.example/n/9</link></item>
<item><title></title><link>https://feed.example/n/8</link></item>
</channel></rss>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/notice/list", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(listPage)) })
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFeed))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "down", http.StatusBadGateway) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewItemsFromListingPage(t *testing.T) {
	srv := newSite(t)
	store := &fakeStore{
		sources: []notice.Source{{
			ID: 1, Title: "장학공지", URL: srv.URL + "/notice/list",
			LinkSelector: "td.subject a", ContentSelector: "div.view",
		}},
		seen: map[int64]map[string]bool{1: {srv.URL + "/notice/view?id=2": true}},
	}
	reg := NewRegistry(store, fetch.NewContentFetcher(fetch.ContentOptions{}))

	items, err := reg.NewItems(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, srv.URL+"/notice/view?id=3", items[0].Link)
	assert.Equal(t, "2025 장학금 신청 안내", items[0].Title)
	assert.Equal(t, "장학공지", items[0].Category)
	assert.Equal(t, "div.view", items[0].ContentSelector)
	assert.Equal(t, int64(1), items[0].SourceID)
}

func TestNewItemsFromFeed(t *testing.T) {
	srv := newSite(t)
	store := &fakeStore{
		sources: []notice.Source{{ID: 2, Title: "학생행사", FeedURL: srv.URL + "/rss"}},
		seen:    map[int64]map[string]bool{2: {"https://feed.example/n/9": true}},
	}
	reg := NewRegistry(store, fetch.NewContentFetcher(fetch.ContentOptions{}))

	items, err := reg.NewItems(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://feed.example/n/10", items[0].Link)
	assert.Equal(t, "행사 안내", items[0].Title)
}

func TestCollectIsolatesFailingSources(t *testing.T) {
	srv := newSite(t)
	store := &fakeStore{sources: []notice.Source{
		{ID: 1, URL: srv.URL + "/broken", LinkSelector: "a"},
		{ID: 2, FeedURL: srv.URL + "/rss"},
		{ID: 3, URL: srv.URL + "/notice/list"},
	}}
	reg := NewRegistry(store, fetch.NewContentFetcher(fetch.ContentOptions{}))

	ids, err := reg.SourceIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	items, res := reg.Collect(context.Background(), ids)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, res.Sources[2])
	assert.Equal(t, 2, res.NewItems)
}

func TestSourceInfo(t *testing.T) {
	store := &fakeStore{sources: []notice.Source{{ID: 5, Title: "취업", URL: "https://x.example"}}}
	reg := NewRegistry(store, nil)

	src, err := reg.SourceInfo(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "취업", src.Title)

	_, err = reg.SourceInfo(context.Background(), 6)
	assert.Error(t, err)
}
