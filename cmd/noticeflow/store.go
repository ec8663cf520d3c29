package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TobiSchelling/noticeflow/internal/database"
	"github.com/TobiSchelling/noticeflow/internal/notice"
	"github.com/TobiSchelling/noticeflow/internal/pipeline"
	"github.com/TobiSchelling/noticeflow/internal/postgres"
	"github.com/TobiSchelling/noticeflow/internal/server"
)

// store is everything the CLI needs from persistence.
type store interface {
	pipeline.Store
	server.Store
	AddSource(ctx context.Context, s notice.Source) (int64, error)
	RemoveSource(ctx context.Context, id int64) error
	AddSubscriber(ctx context.Context, email string) (int64, error)
	Subscriber(ctx context.Context, email string) (database.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]database.Subscriber, error)
	Subscribe(ctx context.Context, subscriberID, sourceID int64) error
	Unsubscribe(ctx context.Context, subscriberID, sourceID int64) error
	SetEmailNotifications(ctx context.Context, subscriberID int64, enabled bool) error
	GetStats(ctx context.Context) (*database.Stats, error)
	Close() error
}

var (
	_ store = (*database.DB)(nil)
	_ store = (*postgres.DB)(nil)
)

func openStore(ctx context.Context) (store, error) {
	if cfg.Storage.Driver == "postgres" {
		db, err := postgres.Open(ctx, cfg.Secrets.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.Open(filepath.Join(dataDir, "noticeflow.db"))
	if err != nil {
		return nil, err
	}
	return db, nil
}

// storeLocation describes where data lives, for status output.
func storeLocation() string {
	if cfg.Storage.Driver == "postgres" {
		return "postgres (NOTICEFLOW_POSTGRES_DSN)"
	}
	return filepath.Join(cfg.GetDataDir(), "noticeflow.db")
}
