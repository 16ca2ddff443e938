package capacity

import (
	"context"
	"sync"
	"time"
)

const defaultProbeInterval = 30 * time.Second

// Failover routes checks to a primary Store and degrades to a fallback
// when the primary is unreachable. The check that observes the fault is
// failed open: infrastructure failure never blocks traffic on its own.
type Failover struct {
	Primary       Store
	Fallback      Store
	ProbeInterval time.Duration
	Clock         func() time.Time

	// OnOutage fires once per outage, OnRecover once when the primary
	// answers again. Both are optional.
	OnOutage  func(err error)
	OnRecover func()

	mu        sync.Mutex
	inOutage  bool
	downUntil time.Time
}

// NewFailover wires a primary and fallback store together.
func NewFailover(primary, fallback Store) *Failover {
	return &Failover{Primary: primary, Fallback: fallback}
}

// CheckAndIncrement implements Store.
func (f *Failover) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := f.now()

	if f.useFallback(now) {
		return f.Fallback.CheckAndIncrement(ctx, key, window, limit)
	}

	decision, err := f.Primary.CheckAndIncrement(ctx, key, window, limit)
	if err == nil {
		f.markHealthy()
		return decision, nil
	}

	f.markOutage(now, err)

	// The event that hit the fault is admitted without being counted.
	return Decision{
		Allowed:    true,
		Remaining:  limit - 1,
		ResetAt:    now.Add(window),
		FailedOpen: true,
	}, nil
}

func (f *Failover) useFallback(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inOutage && now.Before(f.downUntil)
}

func (f *Failover) markOutage(now time.Time, err error) {
	interval := f.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	f.mu.Lock()
	first := !f.inOutage
	f.inOutage = true
	f.downUntil = now.Add(interval)
	f.mu.Unlock()

	if first && f.OnOutage != nil {
		f.OnOutage(err)
	}
}

func (f *Failover) markHealthy() {
	f.mu.Lock()
	recovered := f.inOutage
	f.inOutage = false
	f.mu.Unlock()

	if recovered && f.OnRecover != nil {
		f.OnRecover()
	}
}

func (f *Failover) now() time.Time {
	if f != nil && f.Clock != nil {
		return f.Clock()
	}
	return time.Now().UTC()
}
