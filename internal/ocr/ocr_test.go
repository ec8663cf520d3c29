package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com/poster.png", body["url"])
		w.Write([]byte(`{"text": "  신청 마감 2025.09.04  "}`))
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.URL, time.Second)
	assert.Equal(t, "신청 마감 2025.09.04", e.Extract(context.Background(), "https://example.com/poster.png"))
}

func TestHTTPExtractorDegradesToEmpty(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	assert.Equal(t, "", NewHTTPExtractor(failing.URL, time.Second).Extract(context.Background(), "x"))

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer garbage.Close()
	assert.Equal(t, "", NewHTTPExtractor(garbage.URL, time.Second).Extract(context.Background(), "x"))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"text": "late"}`))
	}))
	defer slow.Close()
	assert.Equal(t, "", NewHTTPExtractor(slow.URL, 20*time.Millisecond).Extract(context.Background(), "x"))

	assert.Equal(t, "", NewHTTPExtractor("http://127.0.0.1:1", time.Second).Extract(context.Background(), "x"))
}

func TestNop(t *testing.T) {
	assert.Equal(t, "", Nop{}.Extract(context.Background(), "x"))
}
