package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/TobiSchelling/noticeflow/internal/database"
	"github.com/TobiSchelling/noticeflow/internal/notice"
)

var sourceColumns = []string{"id", "title", "url", "link_selector", "content_selector", "feed_url"}

// Sources returns all sources ordered by id.
func (db *DB) Sources(ctx context.Context) ([]notice.Source, error) {
	rows, err := db.query(ctx, psql.Select(sourceColumns...).From("sources").OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notice.Source
	for rows.Next() {
		var s notice.Source
		if err := rows.Scan(&s.ID, &s.Title, &s.URL, &s.LinkSelector, &s.ContentSelector, &s.FeedURL); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Source returns one source, or database.ErrNotFound.
func (db *DB) Source(ctx context.Context, id int64) (notice.Source, error) {
	var s notice.Source
	err := db.queryRow(ctx,
		psql.Select(sourceColumns...).From("sources").Where(sq.Eq{"id": id}),
		&s.ID, &s.Title, &s.URL, &s.LinkSelector, &s.ContentSelector, &s.FeedURL,
	)
	return s, notFound(err, "source %d", id)
}

// AddSource inserts a source and returns its id.
func (db *DB) AddSource(ctx context.Context, s notice.Source) (int64, error) {
	var id int64
	err := db.queryRow(ctx,
		psql.Insert("sources").
			Columns("title", "url", "link_selector", "content_selector", "feed_url").
			Values(s.Title, s.URL, s.LinkSelector, s.ContentSelector, s.FeedURL).
			Suffix("RETURNING id"),
		&id,
	)
	if err != nil {
		return 0, fmt.Errorf("adding source: %w", err)
	}
	return id, nil
}

// RemoveSource deletes a source with its notices and subscriptions.
func (db *DB) RemoveSource(ctx context.Context, id int64) error {
	n, err := db.exec(ctx, psql.Delete("sources").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("source %d: %w", id, database.ErrNotFound)
	}
	return nil
}

// SeenLinks returns the set of links already stored for a source.
func (db *DB) SeenLinks(ctx context.Context, sourceID int64) (map[string]bool, error) {
	rows, err := db.query(ctx, psql.Select("link").From("notices").Where(sq.Eq{"source_id": sourceID}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		seen[link] = true
	}
	return seen, rows.Err()
}

// InsertNotice stores a fetched item. Returns 0 when the (source, link) pair
// is already stored.
func (db *DB) InsertNotice(ctx context.Context, item notice.Item) (int64, error) {
	var id int64
	err := db.queryRow(ctx,
		psql.Insert("notices").
			Columns("source_id", "link", "title", "raw_html").
			Values(item.SourceID, item.Link, item.Title, item.RawContent).
			Suffix("ON CONFLICT (source_id, link) DO NOTHING RETURNING id"),
		&id,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("inserting notice: %w", err)
	}
	return id, nil
}

// UpdateNoticeOutcome stores the processing outcome for a stored notice.
func (db *DB) UpdateNoticeOutcome(ctx context.Context, key notice.Key, outcome notice.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}
	_, err = db.exec(ctx, psql.Update("notices").
		Set("ai_json", string(data)).
		Set("status", string(outcome.Status)).
		Where(sq.Eq{"source_id": key.SourceID, "link": key.Link}))
	return err
}

// AddSubscriber inserts a subscriber, or returns the id of the existing one.
func (db *DB) AddSubscriber(ctx context.Context, email string) (int64, error) {
	var id int64
	err := db.queryRow(ctx,
		psql.Insert("subscribers").Columns("email").Values(email).
			Suffix("ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email RETURNING id"),
		&id,
	)
	if err != nil {
		return 0, fmt.Errorf("adding subscriber: %w", err)
	}
	return id, nil
}

// SetEmailNotifications toggles delivery for a subscriber.
func (db *DB) SetEmailNotifications(ctx context.Context, subscriberID int64, enabled bool) error {
	n, err := db.exec(ctx, psql.Update("subscribers").
		Set("email_notifications", enabled).
		Where(sq.Eq{"id": subscriberID}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("subscriber %d: %w", subscriberID, database.ErrNotFound)
	}
	return nil
}

// Subscribe activates a subscription, creating it if needed.
func (db *DB) Subscribe(ctx context.Context, subscriberID, sourceID int64) error {
	_, err := db.exec(ctx, psql.Insert("subscriptions").
		Columns("subscriber_id", "source_id", "is_active").
		Values(subscriberID, sourceID, true).
		Suffix("ON CONFLICT (subscriber_id, source_id) DO UPDATE SET is_active = TRUE, subscribed_at = now()"))
	if err != nil {
		return fmt.Errorf("subscribing %d to %d: %w", subscriberID, sourceID, err)
	}
	return nil
}

// Unsubscribe deactivates a subscription.
func (db *DB) Unsubscribe(ctx context.Context, subscriberID, sourceID int64) error {
	_, err := db.exec(ctx, psql.Update("subscriptions").
		Set("is_active", false).
		Where(sq.Eq{"subscriber_id": subscriberID, "source_id": sourceID}))
	return err
}

// Subscriber looks up a subscriber by email.
func (db *DB) Subscriber(ctx context.Context, email string) (database.Subscriber, error) {
	var s database.Subscriber
	err := db.queryRow(ctx,
		psql.Select("id", "email", "email_notifications").From("subscribers").Where(sq.Eq{"email": email}),
		&s.ID, &s.Email, &s.EmailNotifications,
	)
	return s, notFound(err, "subscriber %s", email)
}

// ListSubscribers returns all subscribers with their active source ids.
func (db *DB) ListSubscribers(ctx context.Context) ([]database.Subscriber, error) {
	rows, err := db.query(ctx, psql.
		Select("s.id", "s.email", "s.email_notifications", "us.source_id").
		From("subscribers s").
		LeftJoin("subscriptions us ON us.subscriber_id = s.id AND us.is_active").
		OrderBy("s.id", "us.source_id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.Subscriber
	for rows.Next() {
		var (
			id       int64
			email    string
			enabled  bool
			sourceID *int64
		)
		if err := rows.Scan(&id, &email, &enabled, &sourceID); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, database.Subscriber{ID: id, Email: email, EmailNotifications: enabled})
		}
		if sourceID != nil {
			last := &out[len(out)-1]
			last.Sources = append(last.Sources, *sourceID)
		}
	}
	return out, rows.Err()
}

// SubscribersBySource maps each source id to the emails of active,
// notification-enabled subscribers, ordered by email.
func (db *DB) SubscribersBySource(ctx context.Context) (map[int64][]string, error) {
	rows, err := db.query(ctx, psql.
		Select("us.source_id", "s.email").
		From("subscriptions us").
		Join("subscribers s ON us.subscriber_id = s.id").
		Where(sq.Eq{"us.is_active": true, "s.email_notifications": true}).
		OrderBy("us.source_id", "s.email"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			sourceID int64
			email    string
		)
		if err := rows.Scan(&sourceID, &email); err != nil {
			return nil, err
		}
		out[sourceID] = append(out[sourceID], email)
	}
	return out, rows.Err()
}

// LogDelivery appends one delivery attempt to the audit log.
func (db *DB) LogDelivery(ctx context.Context, entry notice.DeliveryLog) error {
	sentAt := entry.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	var errMsg *string
	if entry.Error != "" {
		errMsg = &entry.Error
	}
	_, err := db.exec(ctx, psql.Insert("delivery_log").
		Columns("source_id", "recipient_count", "status", "error_message", "sent_at").
		Values(entry.SourceID, entry.RecipientCount, entry.Status, errMsg, sentAt))
	if err != nil {
		return fmt.Errorf("logging delivery: %w", err)
	}
	return nil
}

// DeliveryStats aggregates delivery attempts of the last days days.
func (db *DB) DeliveryStats(ctx context.Context, days int) (notice.DeliveryStats, error) {
	var s notice.DeliveryStats
	err := db.queryRow(ctx, psql.
		Select(
			"COUNT(*)",
			"COALESCE(SUM(recipient_count), 0)",
			"COUNT(*) FILTER (WHERE status = 'success')",
			"COUNT(*) FILTER (WHERE status = 'error')",
		).
		From("delivery_log").
		Where(sq.GtOrEq{"sent_at": time.Now().AddDate(0, 0, -days)}),
		&s.TotalSends, &s.TotalRecipients, &s.SuccessfulSends, &s.FailedSends,
	)
	if err != nil {
		return s, fmt.Errorf("delivery stats: %w", err)
	}
	if s.TotalSends > 0 {
		s.SuccessRate = float64(s.SuccessfulSends) / float64(s.TotalSends) * 100
	}
	return s, nil
}

// StartRun records the start of a pipeline run.
func (db *DB) StartRun(ctx context.Context) (notice.Run, error) {
	run := notice.Run{ID: uuid.NewString(), StartedAt: time.Now().UTC().Truncate(time.Second)}
	_, err := db.exec(ctx, psql.Insert("runs").Columns("id", "started_at").Values(run.ID, run.StartedAt))
	if err != nil {
		return run, fmt.Errorf("starting run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counts of a run.
func (db *DB) FinishRun(ctx context.Context, run notice.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err := db.exec(ctx, psql.Update("runs").SetMap(map[string]any{
		"finished_at": finished,
		"candidates":  run.Candidates,
		"fetched":     run.Fetched,
		"failed":      run.Failed,
		"processed":   run.Processed,
		"delivered":   run.Delivered,
	}).Where(sq.Eq{"id": run.ID}))
	return err
}

// RecentRuns returns the latest runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]notice.Run, error) {
	rows, err := db.query(ctx, psql.
		Select("id", "started_at", "finished_at", "candidates", "fetched", "failed", "processed", "delivered").
		From("runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notice.Run
	for rows.Next() {
		var r notice.Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Candidates, &r.Fetched, &r.Failed, &r.Processed, &r.Delivered); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats returns aggregate statistics.
func (db *DB) GetStats(ctx context.Context) (*database.Stats, error) {
	s := &database.Stats{}
	counts := []struct {
		b    sq.SelectBuilder
		dest *int
	}{
		{psql.Select("COUNT(*)").From("sources"), &s.Sources},
		{psql.Select("COUNT(*)").From("notices"), &s.Notices},
		{psql.Select("COUNT(*)").From("notices").Where(sq.Eq{"status": "success"}), &s.Summarized},
		{psql.Select("COUNT(*)").From("notices").Where(sq.Eq{"status": "error"}), &s.SummaryFailures},
		{psql.Select("COUNT(*)").From("subscribers"), &s.Subscribers},
		{psql.Select("COUNT(*)").From("subscriptions").Where(sq.Eq{"is_active": true}), &s.ActiveSubscriptions},
		{psql.Select("COUNT(*)").From("runs"), &s.Runs},
	}
	for _, c := range counts {
		if err := db.queryRow(ctx, c.b, c.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
