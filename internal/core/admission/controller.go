// Package admission gates every inbound turn against per-route quota
// policies before any expensive work happens.
package admission

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/core/capacity"
)

// Controller is the sliding-window rate limiter in front of the pipeline.
type Controller struct {
	Store capacity.Store
	Clock func() time.Time

	table atomic.Pointer[PolicyTable]
}

// NewController builds a controller over the given capacity store.
func NewController(store capacity.Store, table *PolicyTable) *Controller {
	c := &Controller{Store: store}
	if table == nil {
		table, _ = NewPolicyTable(nil)
	}
	c.table.Store(table)
	return c
}

// Check admits or rejects the request under the policy resolved for its
// route. Remaining-quota metadata is populated on both outcomes.
func (c *Controller) Check(ctx context.Context, req core.Request) (core.AdmissionResult, error) {
	policy := c.Table().Resolve(req.Route)

	decision, err := c.Store.CheckAndIncrement(ctx, req.Key(), policy.Window, policy.Limit)
	if err != nil {
		return core.AdmissionResult{}, err
	}

	result := core.AdmissionResult{
		Allowed:    decision.Allowed,
		Remaining:  decision.Remaining,
		ResetAt:    decision.ResetAt,
		Policy:     policy,
		FailedOpen: decision.FailedOpen,
	}

	if !decision.Allowed {
		if wait := decision.ResetAt.Sub(c.now()); wait > 0 {
			result.RetryAfter = wait
		}
	}

	return result, nil
}

// Table returns the active policy table snapshot.
func (c *Controller) Table() *PolicyTable {
	return c.table.Load()
}

// Swap atomically replaces the policy table. Concurrent checks keep the
// snapshot they already resolved against.
func (c *Controller) Swap(table *PolicyTable) {
	if table != nil {
		c.table.Store(table)
	}
}

func (c *Controller) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
