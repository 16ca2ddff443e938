package config

import (
	"time"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/core/admission"
	"github.com/parleyhq/parley/internal/core/classify"
	"github.com/parleyhq/parley/internal/core/dispatch"
)

// PolicyTable converts the admission section into a resolved quota
// table. Validation of individual rules happens inside the table
// constructor so config and runtime callers share one code path.
func (c *Config) PolicyTable() (*admission.PolicyTable, error) {
	policies := make([]core.QuotaPolicy, 0, len(c.Admission.Rules)+1)
	if c.Admission.DefaultLimit > 0 && c.Admission.DefaultWindow > 0 {
		policies = append(policies, core.QuotaPolicy{
			Pattern: "*",
			Limit:   c.Admission.DefaultLimit,
			Window:  c.Admission.DefaultWindow,
		})
	}
	for _, r := range c.Admission.Rules {
		policies = append(policies, core.QuotaPolicy{
			Pattern: r.Pattern,
			Limit:   r.Limit,
			Window:  r.Window,
		})
	}
	return admission.NewPolicyTable(policies)
}

// RuleTable converts the classifier keyword rules.
func (c *Config) RuleTable() (*classify.RuleTable, error) {
	rules := make([]classify.Rule, 0, len(c.Classifier.Rules))
	for _, r := range c.Classifier.Rules {
		rules = append(rules, classify.Rule{
			Label:    r.Label,
			Keywords: r.Keywords,
			Weight:   r.Weight,
		})
	}
	return classify.NewRuleTable(rules)
}

// Graph converts the routing section into a validated capability graph.
func (c *Config) Graph() (*dispatch.Graph, error) {
	nodes := make([]core.CapabilityNode, 0, len(c.Routing.Nodes))
	for _, n := range c.Routing.Nodes {
		nodes = append(nodes, core.CapabilityNode{
			ID:             n.ID,
			Description:    n.Description,
			Domains:        n.Domains,
			Accepts:        n.Accepts,
			Priority:       n.Priority,
			EscalationPath: n.EscalationPath,
		})
	}
	return dispatch.NewGraph(nodes, c.Routing.Root)
}

// Thresholds converts the confidence band boundaries.
func (c *Config) Thresholds() (dispatch.Thresholds, error) {
	t := dispatch.Thresholds{
		Direct:  c.Routing.Thresholds.Direct,
		Clarify: c.Routing.Thresholds.Clarify,
		Confirm: c.Routing.Thresholds.Confirm,
	}
	if err := t.Validate(); err != nil {
		return dispatch.Thresholds{}, err
	}
	return t, nil
}

// ClarifyTTL returns the pending-turn lifetime with the default applied.
func (c *Config) ClarifyTTL() time.Duration {
	if c.Routing.ClarifyTTL > 0 {
		return c.Routing.ClarifyTTL
	}
	return 5 * time.Minute
}
