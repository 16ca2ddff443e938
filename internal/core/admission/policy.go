package admission

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/core"
)

// DefaultPolicy applies when no configured pattern matches a route.
var DefaultPolicy = core.QuotaPolicy{
	Pattern: "*",
	Limit:   60,
	Window:  time.Minute,
}

// PolicyTable resolves the quota policy for a route. Tables are immutable
// after construction; reloads build a new table and swap it wholesale.
type PolicyTable struct {
	exact    map[string]core.QuotaPolicy
	prefixes []core.QuotaPolicy
	fallback core.QuotaPolicy
}

// NewPolicyTable validates and indexes the supplied policies. A pattern
// ending in "*" matches by prefix; "*" alone overrides the default
// policy; anything else matches exactly.
func NewPolicyTable(policies []core.QuotaPolicy) (*PolicyTable, error) {
	table := &PolicyTable{
		exact:    make(map[string]core.QuotaPolicy),
		fallback: DefaultPolicy,
	}

	for _, p := range policies {
		pattern := strings.TrimSpace(p.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("quota policy with empty pattern")
		}
		if p.Limit <= 0 {
			return nil, fmt.Errorf("quota policy %q: limit must be positive", pattern)
		}
		if p.Window <= 0 {
			return nil, fmt.Errorf("quota policy %q: window must be positive", pattern)
		}

		p.Pattern = pattern
		switch {
		case pattern == "*":
			table.fallback = p
		case strings.HasSuffix(pattern, "*"):
			table.prefixes = append(table.prefixes, p)
		default:
			if _, dup := table.exact[pattern]; dup {
				return nil, fmt.Errorf("duplicate quota policy pattern %q", pattern)
			}
			table.exact[pattern] = p
		}
	}

	// Longest prefix wins.
	sort.SliceStable(table.prefixes, func(i, j int) bool {
		return len(table.prefixes[i].Pattern) > len(table.prefixes[j].Pattern)
	})

	return table, nil
}

// Resolve returns the policy governing the route: exact match first, then
// longest matching prefix pattern, then the default.
func (t *PolicyTable) Resolve(route string) core.QuotaPolicy {
	if t == nil {
		return DefaultPolicy
	}

	route = strings.TrimSpace(route)
	if p, ok := t.exact[route]; ok {
		return p
	}

	for _, p := range t.prefixes {
		if strings.HasPrefix(route, strings.TrimSuffix(p.Pattern, "*")) {
			return p
		}
	}

	return t.fallback
}

// Policies lists the table contents for inspection, exact patterns first.
func (t *PolicyTable) Policies() []core.QuotaPolicy {
	if t == nil {
		return nil
	}

	out := make([]core.QuotaPolicy, 0, len(t.exact)+len(t.prefixes)+1)
	for _, p := range t.exact {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	out = append(out, t.prefixes...)
	out = append(out, t.fallback)
	return out
}
