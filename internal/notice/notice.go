// Package notice holds the records that flow through a run: sources, fetched
// items, structured summaries, processing outcomes and delivery audit rows.
package notice

import "time"

// Source is an external origin publishing notices.
type Source struct {
	ID              int64
	Title           string
	URL             string
	LinkSelector    string
	ContentSelector string
	FeedURL         string
}

// Image is an image reference found inside an item's content.
type Image struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	OCRText  string `json:"ocr_text"`
}

// Item is one notice discovered on a source.
type Item struct {
	SourceID        int64   `json:"source_id"`
	Link            string  `json:"link"`
	Title           string  `json:"title"`
	RawContent      string  `json:"raw_content"`
	Images          []Image `json:"images"`
	Category        string  `json:"category"`
	ContentSelector string  `json:"-"`
}

// Key identifies an item within a run.
type Key struct {
	SourceID int64
	Link     string
}

// Key returns the (source, link) identity of the item.
func (it Item) Key() Key {
	return Key{SourceID: it.SourceID, Link: it.Link}
}

// HasImages reports whether the item carries at least one image reference.
func (it Item) HasImages() bool {
	return len(it.Images) > 0
}

// FetchResult is the terminal fetch outcome for one item.
type FetchResult struct {
	Item     Item
	Success  bool
	Err      error
	Attempts int
}

// Error returns the last fetch error text, or "" on success.
func (r FetchResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ScheduleEntry is a single crucial date mentioned by a notice.
type ScheduleEntry struct {
	Description string `json:"description"`
	Date        string `json:"date"`
	Location    string `json:"location"`
}

// Summary is the structured record produced by the summarization service.
// Absent fields are empty strings and an empty schedule, never nil.
type Summary struct {
	Title             string          `json:"title"`
	Summary           string          `json:"summary"`
	Schedule          []ScheduleEntry `json:"schedule"`
	Target            string          `json:"target"`
	ApplicationMethod string          `json:"application_method"`
	ImportantNotes    string          `json:"important_notes"`
}

// Placeholder messages used when no summary could be produced.
const (
	FallbackSchedule = "AI 처리 실패"
	FallbackUnknown  = "Unknown"
	FallbackNotes    = "AI 요약을 생성할 수 없습니다."
)

// FallbackSummary is the degraded placeholder distributed when summarization fails.
func FallbackSummary(title string) Summary {
	return Summary{
		Title:             title,
		Schedule:          []ScheduleEntry{{Description: FallbackSchedule}},
		Target:            FallbackUnknown,
		ApplicationMethod: FallbackUnknown,
		ImportantNotes:    FallbackNotes,
	}
}

// QualityReport describes gaps in a decoded summary.
type QualityReport struct {
	IsComplete    bool     `json:"is_complete"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Status is the terminal processing status of an item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome is the packaged result of the processing pipeline for one item.
type Outcome struct {
	Status      Status        `json:"status"`
	Data        string        `json:"data,omitempty"`
	Parsed      *Summary      `json:"parsed_data,omitempty"`
	Error       string        `json:"error,omitempty"`
	Suggestions []string      `json:"suggestions"`
	Quality     QualityReport `json:"-"`
}

// Processed is an item that finished the processing pipeline, with the
// summary that should be distributed for it.
type Processed struct {
	Item    Item
	Outcome Outcome
	Summary Summary
}

// Delivery statuses.
const (
	DeliverySuccess = "success"
	DeliveryError   = "error"
)

// DeliveryLog is the append-only audit record of one distribution attempt.
type DeliveryLog struct {
	SourceID       int64
	RecipientCount int
	Status         string
	Error          string
	SentAt         time.Time
}

// DeliveryStats aggregates delivery logs over a window.
type DeliveryStats struct {
	TotalSends      int     `json:"total_sends"`
	TotalRecipients int     `json:"total_recipients"`
	SuccessfulSends int     `json:"successful_sends"`
	FailedSends     int     `json:"failed_sends"`
	SuccessRate     float64 `json:"success_rate"`
}

// Run is one recorded pipeline run.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Candidates int        `json:"candidates"`
	Fetched    int        `json:"fetched"`
	Failed     int        `json:"failed"`
	Processed  int        `json:"processed"`
	Delivered  int        `json:"delivered"`
}
