// Package calendar builds event-creation deep links for schedule entries.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

const (
	baseURL      = "https://calendar.google.com/calendar/render?"
	timezone     = "Asia/Seoul"
	defaultTitle = "제목 없음"
)

// Link is a schedule entry paired with its calendar URL.
type Link struct {
	notice.ScheduleEntry
	URL string
}

// Links returns one link per schedule entry that carries a usable date.
// Entries without a date, or with a date that cannot be parsed, are skipped.
func Links(s notice.Summary) []Link {
	if len(s.Schedule) == 0 {
		return nil
	}

	var out []Link
	for _, entry := range s.Schedule {
		u, ok := EntryURL(s, entry)
		if !ok {
			continue
		}
		out = append(out, Link{ScheduleEntry: entry, URL: u})
	}
	return out
}

// EntryURL returns the calendar link for one entry of s, or false when the
// entry has no usable date.
func EntryURL(s notice.Summary, entry notice.ScheduleEntry) (string, bool) {
	dates, ok := DateRange(entry.Date)
	if !ok {
		return "", false
	}
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = defaultTitle
	}
	return eventURL(title, strings.TrimSpace(s.Summary), entry, dates), true
}

// DateRange converts a schedule date into the all-day "YYYYMMDD/YYYYMMDD"
// range ending on the following day. Accepted inputs are "YYYY.MM.DD" and
// "YYYY-MM-DD", optionally followed by a " HH:MM" time which is ignored.
func DateRange(date string) (string, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", false
	}
	if i := strings.IndexByte(date, ' '); i >= 0 {
		date = date[:i]
	}

	parts := strings.Split(strings.ReplaceAll(date, ".", "-"), "-")
	if len(parts) != 3 {
		return "", false
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", false
		}
		nums[i] = n
	}
	year, month, day := nums[0], nums[1], nums[2]

	start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if start.Year() != year || int(start.Month()) != month || start.Day() != day {
		return "", false
	}
	end := start.AddDate(0, 0, 1)
	return start.Format("20060102") + "/" + end.Format("20060102"), true
}

func eventURL(title, summary string, entry notice.ScheduleEntry, dates string) string {
	text := title
	if desc := strings.TrimSpace(entry.Description); desc != "" {
		text = title + " - " + desc
	}

	var lines []string
	if loc := strings.TrimSpace(entry.Location); loc != "" {
		lines = append(lines, "[장소] "+loc)
	}
	if summary != "" {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, summary)
	}

	params := []struct{ key, value string }{
		{"action", "TEMPLATE"},
		{"text", Quote(text, "")},
		{"dates", Quote(dates, "/T:")},
		{"details", Quote(strings.Join(lines, "\n"), "")},
		{"ctz", Quote(timezone, "")},
	}
	var parts []string
	for _, p := range params {
		if p.value == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", p.key, p.value))
	}
	return baseURL + strings.Join(parts, "&")
}

// Quote percent-encodes s byte-wise as UTF-8, leaving ASCII letters, digits,
// "-_.~" and any byte in extraSafe untouched. Spaces become %20.
func Quote(s, extraSafe string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) || (c < 0x80 && strings.IndexByte(extraSafe, c) >= 0) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '_' || c == '.' || c == '~'
}
