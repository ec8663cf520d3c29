package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    link_selector TEXT NOT NULL DEFAULT '',
    content_selector TEXT NOT NULL DEFAULT '',
    feed_url TEXT NOT NULL DEFAULT '',
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS notices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    link TEXT NOT NULL,
    title TEXT NOT NULL,
    raw_html TEXT,
    ai_json TEXT,
    status TEXT,
    crawled_at TEXT DEFAULT (datetime('now')),
    UNIQUE (source_id, link)
);

CREATE TABLE IF NOT EXISTS subscribers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT UNIQUE NOT NULL,
    email_notifications INTEGER NOT NULL DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS subscriptions (
    subscriber_id INTEGER NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
    source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    is_active INTEGER NOT NULL DEFAULT 1,
    subscribed_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (subscriber_id, source_id)
);

CREATE TABLE IF NOT EXISTS delivery_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL,
    recipient_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('success', 'error')),
    error_message TEXT,
    sent_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    candidates INTEGER DEFAULT 0,
    fetched INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    processed INTEGER DEFAULT 0,
    delivered INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notices_source ON notices(source_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_source ON subscriptions(source_id);
CREATE INDEX IF NOT EXISTS idx_delivery_log_sent ON delivery_log(sent_at);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
