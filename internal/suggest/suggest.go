// Package suggest derives short, user-facing hints from a structured
// summary, a processing error, a quality report or a notice category.
//
// Every function is pure over its inputs and safe for concurrent use. None of
// them panic: an internal failure yields a single generic suggestion instead.
package suggest

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// DefaultMax is the default cap applied by Consolidate.
const DefaultMax = 10

// Engine evaluates the suggestion rule tables. The zero value is usable and
// compares deadlines against the wall clock.
type Engine struct {
	// Now returns the reference time for deadline proximity.
	Now func() time.Time
}

// New creates an Engine using the wall clock.
func New() *Engine {
	return &Engine{Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// FromSummary applies the keyword rules to a parsed summary in a fixed order:
// title, schedule deadlines, application method, target, important notes.
func (e *Engine) FromSummary(s notice.Summary) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("summary suggestions failed", "panic", r)
			out = append(out, msgSummaryFailure)
		}
	}()

	out = append(out, titleRules.apply(s)...)

	if len(s.Schedule) == 0 {
		out = append(out, msgNoSchedule)
	} else {
		for _, entry := range s.Schedule {
			if strings.Contains(entry.Description, "마감") {
				out = append(out, e.Deadline(entry.Date)...)
			}
		}
	}

	out = append(out, applicationRules.apply(s)...)
	out = append(out, targetRules.apply(s)...)
	out = append(out, notesRules.apply(s)...)
	return out
}

var deadlinePatterns = []struct {
	re               *regexp.Regexp
	year, month, day int
}{
	{regexp.MustCompile(`(\d{4})\.(\d{1,2})\.(\d{1,2})`), 1, 2, 3},
	{regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`), 1, 2, 3},
	{regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`), 3, 1, 2},
}

// ParseDeadline finds the first supported date in s (YYYY.MM.DD, YYYY-MM-DD
// or MM/DD/YYYY) and returns it as a date in loc.
func ParseDeadline(s string, loc *time.Location) (time.Time, bool) {
	for _, p := range deadlinePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[p.year])
		mo, _ := strconv.Atoi(m[p.month])
		d, _ := strconv.Atoi(m[p.day])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
		if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// Deadline buckets a deadline date string by whole calendar days remaining.
func (e *Engine) Deadline(date string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("deadline suggestions failed", "panic", r)
			out = []string{"📅 마감일을 달력에 표시해두세요"}
		}
	}()

	if date == "" {
		return []string{"⏰ 마감일을 별도로 확인해주세요"}
	}

	now := e.now()
	deadline, ok := ParseDeadline(date, now.Location())
	if !ok {
		return []string{"📅 마감일 형식을 확인하여 일정을 관리하세요"}
	}

	days := DaysUntil(now, deadline)
	switch {
	case days < 0:
		return []string{"⚠️ 마감일이 지났습니다. 연장 가능 여부를 확인해보세요"}
	case days == 0:
		return []string{"🚨 오늘이 마감일입니다!"}
	case days <= 3:
		return []string{fmt.Sprintf("⏰ %d일 후 마감입니다. 서둘러 준비하세요!", days)}
	case days <= 7:
		return []string{fmt.Sprintf("📅 일주일 내 마감(%d일 후)입니다. 미리 준비하세요", days)}
	case days <= 14:
		return []string{"📋 2주 내 마감입니다. 필요한 서류를 준비해보세요"}
	default:
		return []string{fmt.Sprintf("📆 마감까지 %d일 남았습니다. 계획적으로 준비하세요", days)}
	}
}

// DaysUntil counts calendar days from now's date to deadline's date.
func DaysUntil(now, deadline time.Time) int {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(deadline.Year(), deadline.Month(), deadline.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// FromError classifies an error by kind and message substrings into a fixed
// set of remediation hints.
func (e *Engine) FromError(kind, message string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("error suggestions failed", "panic", r)
			out = []string{msgErrorFailure}
		}
	}()

	kind = strings.ToLower(kind)
	message = strings.ToLower(message)
	for _, c := range errorClasses {
		if c.matches(kind, message) {
			return append([]string(nil), c.suggestions...)
		}
	}
	return append([]string(nil), otherErrorSuggestions...)
}

// FromQuality turns missing fields and warnings into follow-up hints.
func (e *Engine) FromQuality(q notice.QualityReport) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("quality suggestions failed", "panic", r)
			out = append(out, msgQualityFailure)
		}
	}()

	if !q.IsComplete {
		out = append(out, msgIncomplete)
		for _, field := range q.MissingFields {
			if msg, ok := missingFieldMessages[field]; ok {
				out = append(out, msg)
			}
		}
	}

	for _, w := range q.Warnings {
		for _, r := range warningRules {
			if containsAny(w, r.keywords) {
				out = append(out, r.message)
				break
			}
		}
	}
	return out
}

// FromCategory returns generic advice for a notice category.
func (e *Engine) FromCategory(category string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("category suggestions failed", "panic", r)
			out = []string{msgCategoryFailure}
		}
	}()

	category = strings.ToLower(category)
	for _, c := range categoryClasses {
		if containsAny(category, c.keywords) {
			return append([]string(nil), c.suggestions...)
		}
	}
	return append([]string(nil), defaultCategorySuggestions...)
}

// Consolidate flattens lists in order, drops duplicates keeping the first
// occurrence and truncates to limit (DefaultMax when limit <= 0).
func Consolidate(lists [][]string, limit int) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("consolidating suggestions failed", "panic", r)
			out = []string{msgConsolidateFailure}
		}
	}()

	if limit <= 0 {
		limit = DefaultMax
	}
	seen := make(map[string]struct{})
	out = []string{}
	for _, list := range lists {
		for _, s := range list {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
