package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addSource(t *testing.T, db *DB, title string) int64 {
	t.Helper()
	id, err := db.AddSource(context.Background(), notice.Source{
		Title:        title,
		URL:          "https://example.com/" + title,
		LinkSelector: "a.notice",
	})
	if err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	return id
}

func TestAddAndListSources(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	first := addSource(t, db, "장학공지")
	addSource(t, db, "학사공지")

	sources, err := db.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].ID != first || sources[0].LinkSelector != "a.notice" {
		t.Errorf("unexpected first source: %+v", sources[0])
	}

	got, err := db.Source(ctx, first)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if got.Title != "장학공지" {
		t.Errorf("expected title 장학공지, got %q", got.Title)
	}
}

func TestSourceNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Source(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := db.RemoveSource(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from RemoveSource, got %v", err)
	}
}

func TestInsertDuplicateNotice(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := addSource(t, db, "a")

	item := notice.Item{SourceID: src, Link: "https://example.com/n/1", Title: "First"}
	id, err := db.InsertNotice(ctx, item)
	if err != nil {
		t.Fatalf("InsertNotice: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero notice ID")
	}

	item.Title = "Duplicate"
	id, err = db.InsertNotice(ctx, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 0 {
		t.Error("expected 0 for duplicate notice")
	}
}

func TestSeenLinksPerSource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := addSource(t, db, "a")
	b := addSource(t, db, "b")
	db.InsertNotice(ctx, notice.Item{SourceID: a, Link: "https://x/1", Title: "one"})
	db.InsertNotice(ctx, notice.Item{SourceID: b, Link: "https://x/2", Title: "two"})

	seen, err := db.SeenLinks(ctx, a)
	if err != nil {
		t.Fatalf("SeenLinks: %v", err)
	}
	if !seen["https://x/1"] || seen["https://x/2"] {
		t.Errorf("unexpected seen set: %v", seen)
	}
}

func TestUpdateNoticeOutcome(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := addSource(t, db, "a")
	item := notice.Item{SourceID: src, Link: "https://x/1", Title: "장학금 안내"}
	db.InsertNotice(ctx, item)

	outcome := notice.Outcome{
		Status:      notice.StatusError,
		Error:       "no JSON object found",
		Suggestions: []string{"🔄 다시 시도해주세요"},
	}
	if err := db.UpdateNoticeOutcome(ctx, item.Key(), outcome); err != nil {
		t.Fatalf("UpdateNoticeOutcome: %v", err)
	}

	data, err := db.NoticeOutcome(ctx, item.Key())
	if err != nil {
		t.Fatalf("NoticeOutcome: %v", err)
	}
	var got notice.Outcome
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("stored outcome is not JSON: %v", err)
	}
	if got.Status != notice.StatusError || got.Error != outcome.Error {
		t.Errorf("unexpected stored outcome: %+v", got)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Notices != 1 || stats.SummaryFailures != 1 || stats.Summarized != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSubscribersBySource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := addSource(t, db, "a")
	b := addSource(t, db, "b")

	zed, _ := db.AddSubscriber(ctx, "zed@example.com")
	amy, _ := db.AddSubscriber(ctx, "amy@example.com")
	off, _ := db.AddSubscriber(ctx, "off@example.com")

	for _, sub := range []int64{zed, amy, off} {
		if err := db.Subscribe(ctx, sub, a); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	db.Subscribe(ctx, zed, b)
	db.Unsubscribe(ctx, zed, b)
	if err := db.SetEmailNotifications(ctx, off, false); err != nil {
		t.Fatalf("SetEmailNotifications: %v", err)
	}

	bySource, err := db.SubscribersBySource(ctx)
	if err != nil {
		t.Fatalf("SubscribersBySource: %v", err)
	}
	want := []string{"amy@example.com", "zed@example.com"}
	got := bySource[a]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected %v for source a, got %v", want, got)
	}
	if _, ok := bySource[b]; ok {
		t.Errorf("inactive subscription should not be listed: %v", bySource[b])
	}
}

func TestAddSubscriberIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	first, err := db.AddSubscriber(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("AddSubscriber: %v", err)
	}
	second, err := db.AddSubscriber(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("AddSubscriber again: %v", err)
	}
	if first != second {
		t.Errorf("expected same id, got %d and %d", first, second)
	}
}

func TestListSubscribers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := addSource(t, db, "a")
	b := addSource(t, db, "b")
	sub, _ := db.AddSubscriber(ctx, "a@example.com")
	db.AddSubscriber(ctx, "lonely@example.com")
	db.Subscribe(ctx, sub, a)
	db.Subscribe(ctx, sub, b)

	subs, err := db.ListSubscribers(ctx)
	if err != nil {
		t.Fatalf("ListSubscribers: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(subs))
	}
	if len(subs[0].Sources) != 2 || !subs[0].EmailNotifications {
		t.Errorf("unexpected first subscriber: %+v", subs[0])
	}
	if len(subs[1].Sources) != 0 {
		t.Errorf("expected no sources for second subscriber, got %v", subs[1].Sources)
	}
}

func TestDeliveryStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	entries := []notice.DeliveryLog{
		{SourceID: 1, RecipientCount: 3, Status: notice.DeliverySuccess},
		{SourceID: 1, RecipientCount: 3, Status: notice.DeliverySuccess},
		{SourceID: 2, RecipientCount: 2, Status: notice.DeliveryError, Error: "smtp: 550"},
	}
	for _, e := range entries {
		if err := db.LogDelivery(ctx, e); err != nil {
			t.Fatalf("LogDelivery: %v", err)
		}
	}

	stats, err := db.DeliveryStats(ctx, 7)
	if err != nil {
		t.Fatalf("DeliveryStats: %v", err)
	}
	if stats.TotalSends != 3 || stats.SuccessfulSends != 2 || stats.FailedSends != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.TotalRecipients != 8 {
		t.Errorf("expected 8 recipients, got %d", stats.TotalRecipients)
	}
	if stats.SuccessRate < 66.6 || stats.SuccessRate > 66.7 {
		t.Errorf("expected ~66.7%% success rate, got %f", stats.SuccessRate)
	}

	logs, err := db.DeliveryLogs(ctx, 10)
	if err != nil {
		t.Fatalf("DeliveryLogs: %v", err)
	}
	if len(logs) != 3 || logs[0].Error != "smtp: 550" {
		t.Errorf("expected newest log first, got %+v", logs)
	}
}

func TestDeliveryStatsEmpty(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.DeliveryStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("DeliveryStats: %v", err)
	}
	if stats.TotalSends != 0 || stats.SuccessRate != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run, err := db.StartRun(ctx)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run id")
	}
	run.Candidates, run.Fetched, run.Failed, run.Processed, run.Delivered = 3, 2, 1, 2, 2
	if err := db.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := db.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID || got.Candidates != 3 || got.Delivered != 2 || got.FinishedAt == nil {
		t.Errorf("unexpected run: %+v", got)
	}
}
