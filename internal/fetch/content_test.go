package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

const noticePage = `<html><body>
<div id="nav">메뉴</div>
<div class="bg-white p-4">
  <h2>2025학년도 장학금 신청 안내</h2>
  <p>신청 기간은 2025.09.01 ~ 2025.09.04 입니다.</p>
  <img src="/files/poster.png">
  <img data-src="images/detail.jpg" src="data:image/gif;base64,R0lGOD">
  <img src="/files/poster.png">
</div>
</body></html>`

const articlePage = `<html><head><title>공지</title></head><body>
<article><h1>학사 일정 변경 안내</h1>
<p>2학기 수강신청 변경 기간이 아래와 같이 조정되었습니다. 학생 여러분께서는 변경된 일정을 반드시 확인하시기 바랍니다.</p>
<p>변경 기간 동안에는 포털 시스템 점검이 함께 진행되므로 일부 서비스 이용이 제한될 수 있습니다. 자세한 사항은 학사팀으로 문의 바랍니다.</p>
</article></body></html>`

func newNoticeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/notice/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "noticeflow-test", r.UserAgent())
		w.Write([]byte(noticePage))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestContentFetcherWithSelector(t *testing.T) {
	srv := newNoticeServer(t)
	f := NewContentFetcher(ContentOptions{UserAgent: "noticeflow-test", Timeout: time.Second})

	item, err := f.Fetch(context.Background(), notice.Item{
		SourceID:        1,
		Link:            srv.URL + "/notice/1",
		ContentSelector: "div.bg-white",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(item.RawContent, `<div class="bg-white p-4">`))
	assert.Contains(t, item.RawContent, "2025.09.04")
	assert.NotContains(t, item.RawContent, "메뉴")

	require.Len(t, item.Images, 2)
	assert.Equal(t, srv.URL+"/files/poster.png", item.Images[0].URL)
	assert.Equal(t, "poster.png", item.Images[0].Filename)
	assert.Equal(t, srv.URL+"/notice/images/detail.jpg", item.Images[1].URL)
}

func TestContentFetcherSelectorMiss(t *testing.T) {
	srv := newNoticeServer(t)
	f := NewContentFetcher(ContentOptions{UserAgent: "noticeflow-test"})

	_, err := f.Fetch(context.Background(), notice.Item{Link: srv.URL + "/notice/1", ContentSelector: "#missing"})
	assert.True(t, errors.Is(err, ErrNoContent))
}

func TestContentFetcherReadabilityFallback(t *testing.T) {
	srv := newNoticeServer(t)
	f := NewContentFetcher(ContentOptions{})

	item, err := f.Fetch(context.Background(), notice.Item{Link: srv.URL + "/article"})
	require.NoError(t, err)
	assert.Contains(t, item.RawContent, "수강신청 변경 기간")
	assert.Empty(t, item.Images)
}

func TestContentFetcherHTTPError(t *testing.T) {
	srv := newNoticeServer(t)
	f := NewContentFetcher(ContentOptions{})

	_, err := f.Fetch(context.Background(), notice.Item{Link: srv.URL + "/gone"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusGone, httpErr.Code)
}

func TestContentFetcherThrottlesGroupedDomains(t *testing.T) {
	srv := newNoticeServer(t)
	f := NewContentFetcher(ContentOptions{
		UserAgent:     "noticeflow-test",
		RatePerSecond: 10,
		Throttled:     func(string) bool { return true },
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), notice.Item{Link: srv.URL + "/notice/1", ContentSelector: "div.bg-white"})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Len(t, f.limiters, 1)
}

func TestDocument(t *testing.T) {
	srv := newNoticeServer(t)
	f := NewContentFetcher(ContentOptions{UserAgent: "noticeflow-test"})

	doc, err := f.Document(context.Background(), srv.URL+"/notice/1")
	require.NoError(t, err)
	assert.Equal(t, "2025학년도 장학금 신청 안내", doc.Find("h2").Text())
	assert.Equal(t, srv.URL+"/notice/1", doc.Url.String())
}
