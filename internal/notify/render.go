package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/TobiSchelling/noticeflow/internal/calendar"
	"github.com/TobiSchelling/noticeflow/internal/notice"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultCategory = "Unknown Category"

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Renderer turns summaries into messages.
type Renderer struct {
	brand string
	page  *template.Template
	md    goldmark.Markdown
}

// NewRenderer parses the embedded message template.
func NewRenderer(brand string) (*Renderer, error) {
	page, err := template.ParseFS(templateFS, "templates/notice.html")
	if err != nil {
		return nil, fmt.Errorf("parsing message template: %w", err)
	}
	return &Renderer{
		brand: brand,
		page:  page,
		md:    goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps())),
	}, nil
}

type scheduleView struct {
	notice.ScheduleEntry
	URL string
}

type pageView struct {
	Brand             string
	Category          string
	Title             string
	Target            string
	Schedule          []scheduleView
	ApplicationMethod string
	Details           template.HTML
}

// Render builds the subject, plain text and HTML bodies for one notice.
func (r *Renderer) Render(category string, s notice.Summary) (Message, error) {
	if category == "" {
		category = defaultCategory
	}

	view := pageView{
		Brand:             r.brand,
		Category:          category,
		Title:             s.Title,
		Target:            s.Target,
		ApplicationMethod: s.ApplicationMethod,
		Details:           r.markdown(s.Summary),
	}
	for _, entry := range s.Schedule {
		u, _ := calendar.EntryURL(s, entry)
		view.Schedule = append(view.Schedule, scheduleView{ScheduleEntry: entry, URL: u})
	}

	var buf bytes.Buffer
	if err := r.page.Execute(&buf, view); err != nil {
		return Message{}, fmt.Errorf("rendering html: %w", err)
	}

	return Message{
		Subject: s.Title,
		Text:    r.text(category, s),
		HTML:    buf.String(),
	}, nil
}

func (r *Renderer) text(category string, s notice.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s의 신규 업데이트 내용입니다.\n\n", r.brand, category)
	fmt.Fprintf(&b, "    제목: %s\n", s.Title)
	fmt.Fprintf(&b, "    대상: %s", s.Target)
	if len(s.Schedule) > 0 {
		b.WriteString("\n    주요일정:")
		for _, entry := range s.Schedule {
			b.WriteString("\n      - " + entry.Description)
			if entry.Date != "" {
				fmt.Fprintf(&b, " (%s)", entry.Date)
			}
			if entry.Location != "" {
				fmt.Fprintf(&b, " [장소: %s]", entry.Location)
			}
		}
	}
	if s.ApplicationMethod != "" {
		fmt.Fprintf(&b, "\n    신청방법: %s", s.ApplicationMethod)
	}
	fmt.Fprintf(&b, "\n    세부내용: %s\n", s.Summary)
	return b.String()
}

// markdown renders text with hard line breaks. Raw HTML in the input is
// not passed through.
func (r *Renderer) markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}
