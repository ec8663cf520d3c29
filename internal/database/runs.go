package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// StartRun records the start of a pipeline run and returns its id.
func (db *DB) StartRun(ctx context.Context) (notice.Run, error) {
	run := notice.Run{ID: uuid.NewString(), StartedAt: time.Now().UTC().Truncate(time.Second)}
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO runs (id, started_at) VALUES (?, ?)", run.ID, run.StartedAt.Format(timeLayout),
	)
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
	_, err := db.conn.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, candidates = ?, fetched = ?, failed = ?, processed = ?, delivered = ?
		WHERE id = ?`,
		finished.Format(timeLayout), run.Candidates, run.Fetched, run.Failed, run.Processed, run.Delivered, run.ID,
	)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]notice.Run, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, started_at, finished_at, candidates, fetched, failed, processed, delivered
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notice.Run
	for rows.Next() {
		var (
			r        notice.Run
			started  string
			finished *string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Candidates, &r.Fetched, &r.Failed, &r.Processed, &r.Delivered); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.ParseInLocation(timeLayout, started, time.UTC)
		if finished != nil {
			t, err := time.ParseInLocation(timeLayout, *finished, time.UTC)
			if err == nil {
				r.FinishedAt = &t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM sources", &s.Sources},
		{"SELECT COUNT(*) FROM notices", &s.Notices},
		{"SELECT COUNT(*) FROM notices WHERE status = 'success'", &s.Summarized},
		{"SELECT COUNT(*) FROM notices WHERE status = 'error'", &s.SummaryFailures},
		{"SELECT COUNT(*) FROM subscribers", &s.Subscribers},
		{"SELECT COUNT(*) FROM subscriptions WHERE is_active = 1", &s.ActiveSubscriptions},
		{"SELECT COUNT(*) FROM runs", &s.Runs},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
