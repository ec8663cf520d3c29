package summarize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TobiSchelling/noticeflow/internal/llm"
	"github.com/TobiSchelling/noticeflow/internal/notice"
	"github.com/TobiSchelling/noticeflow/internal/suggest"
)

// MinSummaryRunes is the length below which a summary counts as missing.
const MinSummaryRunes = 50

// Quality warnings.
const (
	WarnScheduleDate = "일정의 날짜 정보를 확인할 수 없습니다"
	WarnTarget       = "대상 정보가 명확하지 않습니다"
)

// Decode parses a summary JSON object. Any object is accepted: absent fields
// decode to empty values, scalar fields tolerate numbers and lists, and the
// schedule may be a list, a single object or plain text. The title is always
// replaced by originalTitle.
func Decode(raw, originalTitle string) (notice.Summary, notice.QualityReport, error) {
	fields, err := llm.ParseJSONResponse(raw)
	if err != nil {
		return notice.Summary{}, notice.QualityReport{}, &Error{Kind: KindJSON, Err: fmt.Errorf("decoding summary: %w", err)}
	}

	s := notice.Summary{
		Title:             originalTitle,
		Summary:           text(fields["summary"]),
		Schedule:          schedule(fields["schedule"]),
		Target:            text(fields["target"]),
		ApplicationMethod: text(fields["application_method"]),
		ImportantNotes:    text(fields["important_notes"]),
	}
	return s, Assess(s), nil
}

// Assess reports missing or doubtful fields of a decoded summary.
func Assess(s notice.Summary) notice.QualityReport {
	var q notice.QualityReport

	if utf8.RuneCountInString(strings.TrimSpace(s.Summary)) < MinSummaryRunes {
		q.MissingFields = append(q.MissingFields, "summary")
	}
	if len(s.Schedule) == 0 {
		q.MissingFields = append(q.MissingFields, "schedule")
	}
	if strings.TrimSpace(s.Target) == "" {
		q.MissingFields = append(q.MissingFields, "target")
	}
	q.IsComplete = len(q.MissingFields) == 0

	for _, e := range s.Schedule {
		if _, ok := suggest.ParseDeadline(e.Date, time.UTC); !ok {
			q.Warnings = append(q.Warnings, WarnScheduleDate)
			break
		}
	}
	switch strings.ToLower(strings.TrimSpace(s.Target)) {
	case "unknown", "미정", "없음":
		q.Warnings = append(q.Warnings, WarnTarget)
	}
	return q
}

func schedule(v any) []notice.ScheduleEntry {
	out := []notice.ScheduleEntry{}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if entry, ok := scheduleEntry(e); ok {
				out = append(out, entry)
			}
		}
	case nil:
	default:
		if entry, ok := scheduleEntry(t); ok {
			out = append(out, entry)
		}
	}
	return out
}

func scheduleEntry(v any) (notice.ScheduleEntry, bool) {
	switch t := v.(type) {
	case map[string]any:
		e := notice.ScheduleEntry{
			Description: text(t["description"]),
			Date:        text(t["date"]),
			Location:    text(t["location"]),
		}
		return e, e != notice.ScheduleEntry{}
	default:
		desc := text(t)
		return notice.ScheduleEntry{Description: desc}, desc != ""
	}
}

// text flattens a JSON value into a display string.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := text(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " / ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := text(t[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, " / ")
	default:
		return fmt.Sprint(t)
	}
}
