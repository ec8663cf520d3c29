// Package summarize turns notice content into the structured summary record
// by prompting an LLM and decoding the JSON object it returns.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/TobiSchelling/noticeflow/internal/llm"
	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// Error kinds understood by the suggestion rules.
const (
	KindNetwork = "network"
	KindAPI     = "api"
	KindJSON    = "json"
	KindSummary = "summary"
)

// Error is a classified summarization failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or KindSummary when err is not
// a summarization Error.
func KindOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindSummary
}

// Options tune a Summarizer.
type Options struct {
	MaxTokens       int
	MaxContentChars int
	RepairJSON      bool
}

// Summarizer calls an LLM provider with the notice-analysis prompt.
type Summarizer struct {
	provider llm.Provider
	opts     Options
}

// New creates a Summarizer. A nil provider makes every call fail with an
// api-kind error.
func New(provider llm.Provider, opts Options) *Summarizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Summarizer{provider: provider, opts: opts}
}

// Summarize returns the validated JSON object span of the model's reply.
func (s *Summarizer) Summarize(ctx context.Context, title string, images []notice.Image, content string) (string, error) {
	if s.provider == nil {
		return "", &Error{Kind: KindAPI, Err: fmt.Errorf("summarizing: %w", llm.ErrNotConfigured)}
	}

	prompt := BuildPrompt(title, images, content, s.opts.MaxContentChars)
	reply, err := s.provider.Generate(ctx, prompt, s.opts.MaxTokens)
	if err != nil {
		return "", &Error{Kind: classify(err), Err: fmt.Errorf("summarizing: %w", err)}
	}

	span, err := llm.ExtractJSON(reply)
	if err == nil {
		return span, nil
	}
	if s.opts.RepairJSON {
		if repaired, ok := repair(reply); ok {
			slog.Debug("repaired malformed JSON reply", "title", title)
			return repaired, nil
		}
	}
	return "", &Error{Kind: KindJSON, Err: err}
}

func repair(reply string) (string, bool) {
	candidate := llm.FindJSONSpan(reply)
	if candidate == "" {
		i := strings.IndexByte(reply, '{')
		if i < 0 {
			return "", false
		}
		candidate = reply[i:]
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", false
	}
	span, err := llm.ExtractJSON(repaired)
	if err != nil {
		return "", false
	}
	return span, true
}

func classify(err error) string {
	if llm.IsAuthError(err) {
		return KindAPI
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return KindSummary
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindSummary
}
