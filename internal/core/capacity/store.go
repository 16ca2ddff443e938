// Package capacity provides the atomic sliding-window counter used by
// admission control. Two implementations satisfy the same contract: a
// Redis-backed store shared across processes and an in-process fallback.
package capacity

import (
	"context"
	"time"
)

// Decision is the outcome of a counter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time

	// FailedOpen marks a decision produced by the failover wrapper after
	// a primary store fault, where the event was never actually counted.
	FailedOpen bool
}

// Store checks and records events against a sliding window, atomically
// per key regardless of the number of concurrent callers.
type Store interface {
	// CheckAndIncrement purges events older than now-window, counts the
	// survivors and, if the count is under limit, records the current
	// event. ResetAt is the instant the oldest surviving event leaves
	// the window.
	CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (Decision, error)
}
