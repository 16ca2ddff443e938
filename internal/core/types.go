package core

import "time"

// Action identifies the dispatch decision for a turn.
type Action string

const (
	ActionDirect   Action = "direct"
	ActionClarify  Action = "clarify"
	ActionConfirm  Action = "confirm"
	ActionEscalate Action = "escalate"
)

// LabelUnclassified is assigned when no capability scores above the floor.
const LabelUnclassified = "unclassified"

// Request is the canonical inbound message for one conversation turn.
type Request struct {
	Route   string `json:"route"`
	Caller  string `json:"caller"`
	Message string `json:"message"`
}

// Key returns the quota key for the request (caller + route).
func (r Request) Key() string {
	return r.Caller + ":" + r.Route
}

// QuotaPolicy defines a capacity limit for routes matching Pattern.
// Policies are immutable after load; the active table is swapped wholesale.
type QuotaPolicy struct {
	Pattern string        `json:"pattern"`
	Limit   int           `json:"limit"`
	Window  time.Duration `json:"window"`
}

// AdmissionResult reports the outcome of a quota check with remaining-quota
// metadata, populated on both allow and deny.
type AdmissionResult struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Policy     QuotaPolicy   `json:"-"`
	FailedOpen bool          `json:"-"`
}

// Evidence records the per-phase and combined scores behind a
// classification.
type Evidence struct {
	Lexical    map[string]float64 `json:"lexical,omitempty"`
	Similarity map[string]float64 `json:"similarity,omitempty"`
	Combined   map[string]float64 `json:"combined,omitempty"`
	Degraded   bool               `json:"degraded,omitempty"`
}

// ClassificationResult is the classifier output for one message. Instances
// are treated as immutable once created; a re-classification replaces the
// whole value rather than mutating confidence in place.
type ClassificationResult struct {
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	Evidence   Evidence      `json:"evidence"`
	ComputedAt time.Time     `json:"computed_at"`
	TTL        time.Duration `json:"ttl"`

	// NeedsRevalidation marks a cache hit whose confidence sits below the
	// lowest dispatch threshold. The entry is still honored for this turn.
	NeedsRevalidation bool `json:"-"`
}

// CapabilityNode is one vertex of the capability graph.
type CapabilityNode struct {
	ID             string   `json:"id" yaml:"id"`
	Description    string   `json:"description,omitempty" yaml:"description"`
	Domains        []string `json:"domains,omitempty" yaml:"domains"`
	Accepts        []string `json:"accepts,omitempty" yaml:"accepts"`
	Priority       int      `json:"priority" yaml:"priority"`
	EscalationPath []string `json:"escalation_path,omitempty" yaml:"escalation_path"`
}

// AcceptsLabel reports whether the node handles the given classification
// label. An empty Accepts list means the node only handles its own id;
// a single "*" entry accepts anything.
func (n CapabilityNode) AcceptsLabel(label string) bool {
	if len(n.Accepts) == 0 {
		return n.ID == label
	}
	for _, a := range n.Accepts {
		if a == "*" || a == label {
			return true
		}
	}
	return false
}

// DispatchDecision is the terminal routing outcome for one turn. Created
// once per turn and never retried silently.
type DispatchDecision struct {
	Action       Action   `json:"action"`
	Target       string   `json:"target"`
	Rationale    string   `json:"rationale"`
	Confidence   float64  `json:"confidence"`
	Question     string   `json:"question,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// AuditEvent is a write-only record emitted after every decision.
type AuditEvent struct {
	RequestID  string        `json:"request_id"`
	Route      string        `json:"route"`
	Caller     string        `json:"caller"`
	Allowed    bool          `json:"allowed"`
	Action     Action        `json:"action,omitempty"`
	Target     string        `json:"target,omitempty"`
	Label      string        `json:"label,omitempty"`
	Confidence float64       `json:"confidence"`
	CacheHit   bool          `json:"cache_hit"`
	Latency    time.Duration `json:"latency"`
	OccurredAt time.Time     `json:"occurred_at"`
}
