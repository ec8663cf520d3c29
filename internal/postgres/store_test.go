package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/noticeflow/internal/database"
	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// openTestDB connects to NOTICEFLOW_TEST_POSTGRES_DSN and truncates every
// table. Tests skip when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("NOTICEFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NOTICEFLOW_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.pool.Exec(ctx,
		"TRUNCATE sources, notices, subscribers, subscriptions, delivery_log, runs RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	return db
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestSourcesAndNotices(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.AddSource(ctx, notice.Source{Title: "장학공지", URL: "https://example.com/list", LinkSelector: "a"})
	require.NoError(t, err)

	src, err := db.Source(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "장학공지", src.Title)

	_, err = db.Source(ctx, id+100)
	assert.True(t, errors.Is(err, database.ErrNotFound))

	item := notice.Item{SourceID: id, Link: "https://example.com/n/1", Title: "공지"}
	first, err := db.InsertNotice(ctx, item)
	require.NoError(t, err)
	assert.NotZero(t, first)

	dup, err := db.InsertNotice(ctx, item)
	require.NoError(t, err)
	assert.Zero(t, dup)

	seen, err := db.SeenLinks(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen[item.Link])

	require.NoError(t, db.UpdateNoticeOutcome(ctx, item.Key(), notice.Outcome{Status: notice.StatusSuccess, Suggestions: []string{}}))
	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Summarized)
}

func TestSubscribersBySource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src, err := db.AddSource(ctx, notice.Source{Title: "a", URL: "https://a"})
	require.NoError(t, err)

	zed, _ := db.AddSubscriber(ctx, "zed@example.com")
	amy, _ := db.AddSubscriber(ctx, "amy@example.com")
	again, _ := db.AddSubscriber(ctx, "amy@example.com")
	assert.Equal(t, amy, again)

	require.NoError(t, db.Subscribe(ctx, zed, src))
	require.NoError(t, db.Subscribe(ctx, amy, src))

	bySource, err := db.SubscribersBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.com", "zed@example.com"}, bySource[src])

	require.NoError(t, db.Unsubscribe(ctx, zed, src))
	bySource, err = db.SubscribersBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.com"}, bySource[src])
}

func TestDeliveryStatsAndRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.LogDelivery(ctx, notice.DeliveryLog{SourceID: 1, RecipientCount: 2, Status: notice.DeliverySuccess}))
	require.NoError(t, db.LogDelivery(ctx, notice.DeliveryLog{SourceID: 1, RecipientCount: 2, Status: notice.DeliveryError, Error: "boom"}))

	stats, err := db.DeliveryStats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSends)
	assert.Equal(t, 4, stats.TotalRecipients)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)

	run, err := db.StartRun(ctx)
	require.NoError(t, err)
	run.Delivered = 2
	require.NoError(t, db.FinishRun(ctx, run))

	runs, err := db.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Delivered)
	assert.NotNil(t, runs[0].FinishedAt)
}
