//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	st, err := Open(ctx, config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestAuditRecordAndRecent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := []core.AuditEvent{
		{
			RequestID:  "req-1",
			Route:      "/v1/messages",
			Caller:     "alice",
			Allowed:    true,
			Action:     core.ActionDirect,
			Target:     "billing",
			Label:      "billing",
			Confidence: 0.91,
			CacheHit:   false,
			Latency:    12 * time.Millisecond,
			OccurredAt: base,
		},
		{
			RequestID:  "req-2",
			Route:      "/v1/messages",
			Caller:     "bob",
			Allowed:    false,
			Confidence: 0,
			OccurredAt: base.Add(time.Minute),
		},
		{
			RequestID:  "req-3",
			Route:      "/v1/messages",
			Caller:     "alice",
			Allowed:    true,
			Action:     core.ActionEscalate,
			Target:     "generalist",
			Confidence: 0.2,
			OccurredAt: base.Add(2 * time.Minute),
		},
	}
	for _, e := range events {
		require.NoError(t, st.Record(ctx, e))
	}

	recent, err := st.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "req-3", recent[0].RequestID)
	require.Equal(t, "req-1", recent[2].RequestID)
	require.Equal(t, core.ActionDirect, recent[2].Action)
	require.Equal(t, "billing", recent[2].Target)
	require.InDelta(t, 0.91, recent[2].Confidence, 1e-9)
	require.Equal(t, 12*time.Millisecond, recent[2].Latency)
	require.True(t, recent[2].OccurredAt.Equal(base))

	byCaller, err := st.Recent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, byCaller, 2)

	limited, err := st.Recent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "req-3", limited[0].RequestID)
}

func TestAuditPrune(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Record(ctx, core.AuditEvent{
			RequestID:  "req",
			Route:      "/v1/messages",
			Caller:     "alice",
			Allowed:    true,
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	removed, err := st.Prune(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	remaining, err := st.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
}
