package capacity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	f.calls++
	return Decision{}, f.err
}

func TestFailoverFailsOpenOnPrimaryFault(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	primary := &failingStore{err: errors.New("connection refused")}
	fallback := NewMemoryStore()
	fallback.Clock = func() time.Time { return now }

	outages := 0
	fo := NewFailover(primary, fallback)
	fo.Clock = func() time.Time { return now }
	fo.OnOutage = func(err error) { outages++ }

	// The check that hits the fault is admitted without error.
	decision, err := fo.CheckAndIncrement(context.Background(), "k", time.Minute, 5)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.True(t, decision.FailedOpen)
	require.Equal(t, 1, outages)

	// Subsequent checks run against the fallback and still decide.
	for i := 0; i < 5; i++ {
		decision, err = fo.CheckAndIncrement(context.Background(), "k", time.Minute, 5)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.False(t, decision.FailedOpen)
	}

	decision, err = fo.CheckAndIncrement(context.Background(), "k", time.Minute, 5)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Only one primary call during the outage window, one outage log.
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, outages)
}

func TestFailoverProbesPrimaryAfterInterval(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	primary := &failingStore{err: errors.New("timeout")}
	fallback := NewMemoryStore()
	fallback.Clock = func() time.Time { return now }

	recovered := false
	fo := NewFailover(primary, fallback)
	fo.ProbeInterval = 30 * time.Second
	fo.Clock = func() time.Time { return now }
	fo.OnRecover = func() { recovered = true }

	_, err := fo.CheckAndIncrement(context.Background(), "k", time.Minute, 5)
	require.NoError(t, err)
	require.Equal(t, 1, primary.calls)

	// Inside the probe interval the primary is left alone.
	now = now.Add(10 * time.Second)
	_, err = fo.CheckAndIncrement(context.Background(), "k", time.Minute, 5)
	require.NoError(t, err)
	require.Equal(t, 1, primary.calls)

	// After the interval the primary is probed again; once it answers,
	// the outage clears.
	now = now.Add(31 * time.Second)
	healthy := NewMemoryStore()
	healthy.Clock = func() time.Time { return now }
	fo.Primary = healthy

	decision, err := fo.CheckAndIncrement(context.Background(), "k", time.Minute, 5)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.True(t, recovered)
}
