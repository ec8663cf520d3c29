// Package ocr is the client for the image text-extraction service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Extractor returns the text found in an image. Failures yield "".
type Extractor interface {
	Extract(ctx context.Context, imageURL string) string
}

// Nop is used when OCR is disabled.
type Nop struct{}

// Extract always returns "".
func (Nop) Extract(context.Context, string) string { return "" }

// HTTPExtractor posts image URLs to an OCR service that downloads the image
// and replies with {"text": "..."}.
type HTTPExtractor struct {
	Endpoint string
	client   *http.Client
}

// NewHTTPExtractor creates an extractor for endpoint with a per-call timeout.
func NewHTTPExtractor(endpoint string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExtractor{
		Endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Extract sends imageURL to the service. Errors are logged, never returned.
func (e *HTTPExtractor) Extract(ctx context.Context, imageURL string) string {
	text, err := e.extract(ctx, imageURL)
	if err != nil {
		slog.Warn("ocr failed", "url", imageURL, "err", err)
		return ""
	}
	slog.Debug("ocr done", "url", imageURL, "chars", len(text))
	return text
}

func (e *HTTPExtractor) extract(ctx context.Context, imageURL string) (string, error) {
	data, err := json.Marshal(map[string]string{"url": imageURL})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
