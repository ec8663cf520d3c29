package database

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

const timeLayout = "2006-01-02 15:04:05"

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
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO delivery_log (source_id, recipient_count, status, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.SourceID, entry.RecipientCount, entry.Status, errMsg, sentAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("logging delivery: %w", err)
	}
	return nil
}

// DeliveryLogs returns delivery attempts newest first, up to limit.
func (db *DB) DeliveryLogs(ctx context.Context, limit int) ([]notice.DeliveryLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT source_id, recipient_count, status, COALESCE(error_message, ''), sent_at
		FROM delivery_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notice.DeliveryLog
	for rows.Next() {
		var (
			l      notice.DeliveryLog
			sentAt string
		)
		if err := rows.Scan(&l.SourceID, &l.RecipientCount, &l.Status, &l.Error, &sentAt); err != nil {
			return nil, err
		}
		l.SentAt, _ = time.ParseInLocation(timeLayout, sentAt, time.UTC)
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeliveryStats aggregates delivery attempts of the last days days.
func (db *DB) DeliveryStats(ctx context.Context, days int) (notice.DeliveryStats, error) {
	var s notice.DeliveryStats
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(recipient_count), 0),
			COUNT(CASE WHEN status = 'success' THEN 1 END),
			COUNT(CASE WHEN status = 'error' THEN 1 END)
		FROM delivery_log
		WHERE sent_at >= ?`, cutoff,
	).Scan(&s.TotalSends, &s.TotalRecipients, &s.SuccessfulSends, &s.FailedSends)
	if err != nil {
		return s, fmt.Errorf("delivery stats: %w", err)
	}
	if s.TotalSends > 0 {
		s.SuccessRate = float64(s.SuccessfulSends) / float64(s.TotalSends) * 100
	}
	return s, nil
}
