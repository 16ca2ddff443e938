package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		route TEXT NOT NULL,
		caller TEXT NOT NULL,
		allowed INTEGER NOT NULL,
		action TEXT,
		target TEXT,
		label TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		occurred_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_occurred ON audit_events(occurred_at);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_caller ON audit_events(caller, occurred_at);`,
}

// Migrate creates the audit schema if it does not exist. Safe to run
// on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply audit schema: %w", err)
		}
	}
	return nil
}
