package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/core"
)

// Record persists one audit event. Implements engine.AuditSink.
func (s *Store) Record(ctx context.Context, event core.AuditEvent) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO audit_events
			(request_id, route, caller, allowed, action, target, label, confidence, cache_hit, latency_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.RequestID,
		event.Route,
		event.Caller,
		boolToInt(event.Allowed),
		string(event.Action),
		event.Target,
		event.Label,
		event.Confidence,
		boolToInt(event.CacheHit),
		event.Latency.Milliseconds(),
		occurred.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// Recent returns the newest audit events, most recent first. A caller
// filter narrows the result when non-empty.
func (s *Store) Recent(ctx context.Context, caller string, limit int) ([]core.AuditEvent, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT request_id, route, caller, allowed, action, target, label, confidence, cache_hit, latency_ms, occurred_at
		FROM audit_events
	`
	args := []any{}
	if strings.TrimSpace(caller) != "" {
		query += ` WHERE caller = ?`
		args = append(args, strings.TrimSpace(caller))
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch audit events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var events []core.AuditEvent
	for rows.Next() {
		var (
			event      core.AuditEvent
			allowed    int
			action     sql.NullString
			target     sql.NullString
			label      sql.NullString
			cacheHit   int
			latencyMS  int64
			occurredAt int64
		)
		if err := rows.Scan(
			&event.RequestID,
			&event.Route,
			&event.Caller,
			&allowed,
			&action,
			&target,
			&label,
			&event.Confidence,
			&cacheHit,
			&latencyMS,
			&occurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Allowed = allowed != 0
		event.Action = core.Action(action.String)
		event.Target = target.String
		event.Label = label.String
		event.CacheHit = cacheHit != 0
		event.Latency = time.Duration(latencyMS) * time.Millisecond
		event.OccurredAt = time.Unix(occurredAt, 0).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

// Prune deletes audit events older than the cutoff and reports how
// many rows were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM audit_events WHERE occurred_at < ?`, olderThan.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return removed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
