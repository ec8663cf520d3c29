package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// SeenLinks returns the set of links already stored for a source.
func (db *DB) SeenLinks(ctx context.Context, sourceID int64) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT link FROM notices WHERE source_id = ?", sourceID)
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

// InsertNotice stores a fetched item. Returns the ID on success, 0 if the
// (source, link) pair is already stored.
func (db *DB) InsertNotice(ctx context.Context, item notice.Item) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO notices (source_id, link, title, raw_html) VALUES (?, ?, ?, ?)
		ON CONFLICT (source_id, link) DO NOTHING`,
		item.SourceID, item.Link, item.Title, item.RawContent,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting notice: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// UpdateNoticeOutcome stores the processing outcome for a stored notice.
func (db *DB) UpdateNoticeOutcome(ctx context.Context, key notice.Key, outcome notice.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		"UPDATE notices SET ai_json = ?, status = ? WHERE source_id = ? AND link = ?",
		string(data), string(outcome.Status), key.SourceID, key.Link,
	)
	return err
}

// NoticeOutcome returns the stored outcome JSON for a notice, or "".
func (db *DB) NoticeOutcome(ctx context.Context, key notice.Key) (string, error) {
	var data *string
	err := db.conn.QueryRowContext(ctx,
		"SELECT ai_json FROM notices WHERE source_id = ? AND link = ?", key.SourceID, key.Link,
	).Scan(&data)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", nil
	}
	return *data, nil
}
