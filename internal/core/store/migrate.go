package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trade_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id TEXT NOT NULL,
		collection TEXT NOT NULL,
		kind TEXT NOT NULL,
		asset_id TEXT,
		price REAL,
		tx_hash TEXT,
		error TEXT,
		occurred_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trade_events_position ON trade_events(position_id);`,
	`CREATE INDEX IF NOT EXISTS idx_trade_events_occurred ON trade_events(occurred_at);`,
	`CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		max_price REAL NOT NULL,
		unit TEXT NOT NULL,
		max_retries INTEGER NOT NULL,
		stop_on_error INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_checked_at INTEGER,
		last_error TEXT,
		fulfillment TEXT,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		direction TEXT NOT NULL,
		target_price REAL NOT NULL,
		status TEXT NOT NULL,
		last_checked_at INTEGER,
		last_triggered_at INTEGER,
		last_price REAL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
