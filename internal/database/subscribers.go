package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddSubscriber inserts a subscriber, or returns the id of the existing one
// with the same email.
func (db *DB) AddSubscriber(ctx context.Context, email string) (int64, error) {
	if _, err := db.conn.ExecContext(ctx,
		"INSERT INTO subscribers (email) VALUES (?) ON CONFLICT (email) DO NOTHING", email,
	); err != nil {
		return 0, fmt.Errorf("adding subscriber: %w", err)
	}
	var id int64
	err := db.conn.QueryRowContext(ctx, "SELECT id FROM subscribers WHERE email = ?", email).Scan(&id)
	return id, err
}

// SetEmailNotifications toggles delivery for a subscriber.
func (db *DB) SetEmailNotifications(ctx context.Context, subscriberID int64, enabled bool) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE subscribers SET email_notifications = ? WHERE id = ?", enabled, subscriberID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("subscriber %d: %w", subscriberID, ErrNotFound)
	}
	return nil
}

// Subscribe activates a subscription, creating it if needed.
func (db *DB) Subscribe(ctx context.Context, subscriberID, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (subscriber_id, source_id, is_active) VALUES (?, ?, 1)
		ON CONFLICT (subscriber_id, source_id) DO UPDATE SET is_active = 1, subscribed_at = datetime('now')`,
		subscriberID, sourceID,
	)
	if err != nil {
		return fmt.Errorf("subscribing %d to %d: %w", subscriberID, sourceID, err)
	}
	return nil
}

// Unsubscribe deactivates a subscription.
func (db *DB) Unsubscribe(ctx context.Context, subscriberID, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE subscriptions SET is_active = 0 WHERE subscriber_id = ? AND source_id = ?",
		subscriberID, sourceID,
	)
	return err
}

// Subscriber looks up a subscriber by email.
func (db *DB) Subscriber(ctx context.Context, email string) (Subscriber, error) {
	var s Subscriber
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, email, email_notifications FROM subscribers WHERE email = ?", email,
	).Scan(&s.ID, &s.Email, &s.EmailNotifications)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("subscriber %s: %w", email, ErrNotFound)
	}
	return s, err
}

// ListSubscribers returns all subscribers with their active source ids.
func (db *DB) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.id, s.email, s.email_notifications, us.source_id
		FROM subscribers s
		LEFT JOIN subscriptions us ON us.subscriber_id = s.id AND us.is_active = 1
		ORDER BY s.id, us.source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var (
			id       int64
			email    string
			enabled  bool
			sourceID sql.NullInt64
		)
		if err := rows.Scan(&id, &email, &enabled, &sourceID); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, Subscriber{ID: id, Email: email, EmailNotifications: enabled})
		}
		if sourceID.Valid {
			last := &out[len(out)-1]
			last.Sources = append(last.Sources, sourceID.Int64)
		}
	}
	return out, rows.Err()
}

// SubscribersBySource maps each source id to the emails of subscribers with
// an active subscription and notifications enabled, ordered by email.
func (db *DB) SubscribersBySource(ctx context.Context) (map[int64][]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT us.source_id, s.email
		FROM subscriptions us
		JOIN subscribers s ON us.subscriber_id = s.id
		WHERE us.is_active = 1 AND s.email_notifications = 1
		ORDER BY us.source_id, s.email`)
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
