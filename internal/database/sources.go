package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

const sourceColumns = "id, title, url, link_selector, content_selector, feed_url"

// Sources returns all sources ordered by id.
func (db *DB) Sources(ctx context.Context) ([]notice.Source, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+sourceColumns+" FROM sources ORDER BY id")
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

// Source returns one source, or ErrNotFound.
func (db *DB) Source(ctx context.Context, id int64) (notice.Source, error) {
	var s notice.Source
	err := db.conn.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM sources WHERE id = ?", id).
		Scan(&s.ID, &s.Title, &s.URL, &s.LinkSelector, &s.ContentSelector, &s.FeedURL)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	return s, err
}

// AddSource inserts a source and returns its id.
func (db *DB) AddSource(ctx context.Context, s notice.Source) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO sources (title, url, link_selector, content_selector, feed_url)
		VALUES (?, ?, ?, ?, ?)`,
		s.Title, s.URL, s.LinkSelector, s.ContentSelector, s.FeedURL,
	)
	if err != nil {
		return 0, fmt.Errorf("adding source: %w", err)
	}
	return result.LastInsertId()
}

// RemoveSource deletes a source with its notices and subscriptions.
func (db *DB) RemoveSource(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	return nil
}
