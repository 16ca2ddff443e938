package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/core/capacity"
)

func testTable(t *testing.T, policies []core.QuotaPolicy) *PolicyTable {
	t.Helper()
	table, err := NewPolicyTable(policies)
	require.NoError(t, err)
	return table
}

func TestPolicyResolutionOrder(t *testing.T) {
	table := testTable(t, []core.QuotaPolicy{
		{Pattern: "/v1/messages", Limit: 5, Window: time.Minute},
		{Pattern: "/v1/*", Limit: 20, Window: time.Minute},
		{Pattern: "/v1/messages/*", Limit: 10, Window: time.Minute},
		{Pattern: "*", Limit: 100, Window: time.Hour},
	})

	cases := []struct {
		route string
		limit int
	}{
		{"/v1/messages", 5},           // exact beats prefix
		{"/v1/messages/priority", 10}, // longest prefix wins
		{"/v1/status", 20},
		{"/v2/anything", 100}, // default
	}
	for _, tc := range cases {
		require.Equal(t, tc.limit, table.Resolve(tc.route).Limit, "route %s", tc.route)
	}
}

func TestPolicyTableRejectsInvalid(t *testing.T) {
	_, err := NewPolicyTable([]core.QuotaPolicy{{Pattern: "", Limit: 1, Window: time.Minute}})
	require.Error(t, err)

	_, err = NewPolicyTable([]core.QuotaPolicy{{Pattern: "/a", Limit: 0, Window: time.Minute}})
	require.Error(t, err)

	_, err = NewPolicyTable([]core.QuotaPolicy{{Pattern: "/a", Limit: 1, Window: 0}})
	require.Error(t, err)

	_, err = NewPolicyTable([]core.QuotaPolicy{
		{Pattern: "/a", Limit: 1, Window: time.Minute},
		{Pattern: "/a", Limit: 2, Window: time.Minute},
	})
	require.Error(t, err)
}

func TestControllerScenarioFiveThenDeny(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := capacity.NewMemoryStore()
	store.Clock = func() time.Time { return now }

	ctrl := NewController(store, testTable(t, []core.QuotaPolicy{
		{Pattern: "/v1/messages", Limit: 5, Window: time.Minute},
	}))
	ctrl.Clock = func() time.Time { return now }

	req := core.Request{Route: "/v1/messages", Caller: "alice", Message: "hi"}

	for i := 0; i < 5; i++ {
		result, err := ctrl.Check(context.Background(), req)
		require.NoError(t, err)
		require.True(t, result.Allowed)
		now = now.Add(2 * time.Second)
	}

	result, err := ctrl.Check(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Equal(t, 50*time.Second, result.RetryAfter)
	require.Equal(t, 0, result.Remaining)
	require.False(t, result.ResetAt.IsZero())
}

func TestControllerKeysAreIndependent(t *testing.T) {
	store := capacity.NewMemoryStore()
	ctrl := NewController(store, testTable(t, []core.QuotaPolicy{
		{Pattern: "/v1/messages", Limit: 1, Window: time.Minute},
	}))

	first, err := ctrl.Check(context.Background(), core.Request{Route: "/v1/messages", Caller: "alice"})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	second, err := ctrl.Check(context.Background(), core.Request{Route: "/v1/messages", Caller: "bob"})
	require.NoError(t, err)
	require.True(t, second.Allowed)

	again, err := ctrl.Check(context.Background(), core.Request{Route: "/v1/messages", Caller: "alice"})
	require.NoError(t, err)
	require.False(t, again.Allowed)
}

func TestControllerFailOpenViaFailover(t *testing.T) {
	broken := brokenStore{err: errors.New("store unavailable")}
	fo := capacity.NewFailover(broken, capacity.NewMemoryStore())

	ctrl := NewController(fo, nil)

	result, err := ctrl.Check(context.Background(), core.Request{Route: "/v1/messages", Caller: "alice"})
	require.NoError(t, err)
	require.True(t, result.Allowed)
	require.True(t, result.FailedOpen)
}

func TestControllerSwapTable(t *testing.T) {
	ctrl := NewController(capacity.NewMemoryStore(), nil)
	require.Equal(t, DefaultPolicy.Limit, ctrl.Table().Resolve("/anything").Limit)

	ctrl.Swap(testTable(t, []core.QuotaPolicy{{Pattern: "*", Limit: 3, Window: time.Minute}}))
	require.Equal(t, 3, ctrl.Table().Resolve("/anything").Limit)
}

type brokenStore struct{ err error }

func (b brokenStore) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (capacity.Decision, error) {
	return capacity.Decision{}, b.err
}
