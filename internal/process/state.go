package process

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/noticeflow/internal/notice"
	"github.com/TobiSchelling/noticeflow/internal/summarize"
	"github.com/TobiSchelling/noticeflow/internal/suggest"
)

// State is a node of the per-item processing graph.
type State int

const (
	Start State = iota
	Extracting
	Summarizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case Extracting:
		return "extracting"
	case Summarizing:
		return "summarizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Input validation limits.
const (
	MinTitleRunes   = 5
	MinContentRunes = 50
	KindValidation  = "validation"
)

// run is the mutable context of one item's traversal.
type run struct {
	item    notice.Item
	raw     string
	summary notice.Summary
	quality notice.QualityReport
	errKind string
	errMsg  string
	trace   []State
}

type transition func(p *Pipeline, ctx context.Context, r *run) State

var transitions = map[State]transition{
	Start:       (*Pipeline).start,
	Extracting:  (*Pipeline).extract,
	Summarizing: (*Pipeline).summarize,
}

func (p *Pipeline) start(_ context.Context, r *run) State {
	if msg := validate(r.item); msg != "" {
		r.errKind, r.errMsg = KindValidation, msg
		return Failed
	}
	if r.item.HasImages() {
		return Extracting
	}
	return Summarizing
}

func (p *Pipeline) extract(ctx context.Context, r *run) State {
	images := make([]notice.Image, len(r.item.Images))
	copy(images, r.item.Images)
	for i := range images {
		images[i].OCRText = p.ocr.Extract(ctx, images[i].URL)
	}
	r.item.Images = images
	return Summarizing
}

func (p *Pipeline) summarize(ctx context.Context, r *run) State {
	raw, err := p.summarizer.Summarize(ctx, r.item.Title, r.item.Images, r.item.RawContent)
	if err != nil {
		r.errKind, r.errMsg = summarize.KindOf(err), err.Error()
		return Failed
	}
	r.raw = raw

	s, q, err := summarize.Decode(raw, r.item.Title)
	if err != nil {
		r.errKind, r.errMsg = summarize.KindOf(err), err.Error()
		return Failed
	}
	r.summary, r.quality = s, q
	return Done
}

// validate returns a user-facing message for unusable input, or "".
func validate(item notice.Item) string {
	var missing []string
	if strings.TrimSpace(item.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(item.RawContent) == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return "필수 필드 누락: " + strings.Join(missing, ", ")
	}
	if utf8.RuneCountInString(strings.TrimSpace(item.Title)) < MinTitleRunes {
		return "제목이 너무 짧습니다"
	}
	if utf8.RuneCountInString(strings.TrimSpace(item.RawContent)) < MinContentRunes {
		return "내용이 너무 짧습니다"
	}
	return ""
}

// Step drives one item from Start to a terminal state and packages the
// outcome with its suggestions.
// A panic in a collaborator ends the item in Failed with kind "unexpected".
func (p *Pipeline) Step(ctx context.Context, item notice.Item) (out notice.Processed) {
	r := &run{item: item}
	defer func() {
		if rec := recover(); rec != nil {
			r.errKind, r.errMsg = "unexpected", fmt.Sprintf("panic: %v", rec)
			out = p.failure(r)
		}
	}()

	state := Start
	for !state.Terminal() {
		r.trace = append(r.trace, state)
		next, ok := transitions[state]
		if !ok {
			r.errKind, r.errMsg = "unexpected", fmt.Sprintf("no transition from %s", state)
			state = Failed
			break
		}
		state = next(p, ctx, r)
	}
	r.trace = append(r.trace, state)

	if p.observe != nil {
		p.observe(item, r.trace)
	}

	if state == Done {
		return p.success(r)
	}
	return p.failure(r)
}

func (p *Pipeline) success(r *run) notice.Processed {
	suggestions := suggest.Consolidate([][]string{
		p.engine.FromSummary(r.summary),
		p.engine.FromQuality(r.quality),
		p.engine.FromCategory(r.item.Category),
	}, p.maxSuggestions)
	if len(suggestions) == 0 {
		suggestions = p.engine.FromCategory("")
	}

	parsed := r.summary
	slog.Info("summarized", "source_id", r.item.SourceID, "link", r.item.Link, "suggestions", len(suggestions), "complete", r.quality.IsComplete)
	return notice.Processed{
		Item: r.item,
		Outcome: notice.Outcome{
			Status:      notice.StatusSuccess,
			Data:        r.raw,
			Parsed:      &parsed,
			Suggestions: suggestions,
			Quality:     r.quality,
		},
		Summary: r.summary,
	}
}

func (p *Pipeline) failure(r *run) notice.Processed {
	suggestions := suggest.Consolidate([][]string{p.engine.FromError(r.errKind, r.errMsg)}, p.maxSuggestions)
	if len(suggestions) == 0 {
		suggestions = p.engine.FromError("", "")
	}

	slog.Error("processing failed", "source_id", r.item.SourceID, "link", r.item.Link, "kind", r.errKind, "err", r.errMsg)
	return notice.Processed{
		Item: r.item,
		Outcome: notice.Outcome{
			Status:      notice.StatusError,
			Error:       r.errMsg,
			Suggestions: suggestions,
		},
		Summary: notice.FallbackSummary(r.item.Title),
	}
}
