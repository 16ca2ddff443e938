package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/parleyhq/parley/internal/core"
)

// Default confidence thresholds. Lower bounds are inclusive: a score of
// exactly 0.85 dispatches directly.
const (
	DefaultDirectThreshold  = 0.85
	DefaultClarifyThreshold = 0.65
	DefaultConfirmThreshold = 0.45
)

// maxAlternatives bounds how many alternates a confirm round offers.
const maxAlternatives = 2

// Thresholds are the confidence band boundaries for the decision state
// machine.
type Thresholds struct {
	Direct  float64 `mapstructure:"direct" json:"direct"`
	Clarify float64 `mapstructure:"clarify" json:"clarify"`
	Confirm float64 `mapstructure:"confirm" json:"confirm"`
}

func (t Thresholds) normalized() Thresholds {
	if t.Direct <= 0 {
		t.Direct = DefaultDirectThreshold
	}
	if t.Clarify <= 0 {
		t.Clarify = DefaultClarifyThreshold
	}
	if t.Confirm <= 0 {
		t.Confirm = DefaultConfirmThreshold
	}
	return t
}

// Validate rejects threshold sets that are not strictly descending
// within (0,1].
func (t Thresholds) Validate() error {
	n := t.normalized()
	if n.Direct > 1 || n.Confirm <= 0 || n.Direct <= n.Clarify || n.Clarify <= n.Confirm {
		return fmt.Errorf("thresholds must satisfy 0 < confirm < clarify < direct <= 1, got %.2f/%.2f/%.2f",
			n.Direct, n.Clarify, n.Confirm)
	}
	return nil
}

// Policy is the confidence-gated decision state machine over the
// capability graph.
type Policy struct {
	Thresholds Thresholds
	Turns      *PendingTurns

	graph atomic.Pointer[Graph]
}

// NewPolicy builds a policy over the given graph snapshot.
func NewPolicy(g *Graph, thresholds Thresholds, turns *PendingTurns) *Policy {
	p := &Policy{Thresholds: thresholds, Turns: turns}
	if turns == nil {
		p.Turns = NewPendingTurns(0)
	}
	p.graph.Store(g)
	return p
}

// Graph returns the active graph snapshot.
func (p *Policy) Graph() *Graph {
	return p.graph.Load()
}

// SwapGraph atomically replaces the graph. In-flight decisions keep the
// snapshot they started with.
func (p *Policy) SwapGraph(g *Graph) {
	if g != nil {
		p.graph.Store(g)
	}
}

// TakeTurn consumes an open clarify or confirm round for the request
// key, if any. The orchestrator calls this before classification so the
// follow-up text can be combined with the original message.
func (p *Policy) TakeTurn(key string) (PendingTurn, bool) {
	return p.Turns.Take(key)
}

// Decide maps a classification onto a dispatch decision. When pending is
// non-nil this turn is the single follow-up of an open clarify or
// confirm round and resolves to direct or escalate, never another round.
func (p *Policy) Decide(req core.Request, result *core.ClassificationResult, pending *PendingTurn) core.DispatchDecision {
	g := p.Graph()
	th := p.Thresholds.normalized()
	c := result.Confidence

	if pending != nil {
		return p.resolveFollowUp(g, th, req, result, *pending)
	}

	switch {
	case c >= th.Direct:
		return p.direct(g, result, "high-confidence classification")

	case c >= th.Clarify:
		p.Turns.Put(req.Key(), PendingTurn{
			Action:    core.ActionClarify,
			Message:   req.Message,
			Candidate: result.Label,
		})
		return core.DispatchDecision{
			Action:     core.ActionClarify,
			Target:     result.Label,
			Rationale:  "mid-band confidence, asking one clarifying question",
			Confidence: c,
			Question:   clarifyQuestion(result.Label),
		}

	case c >= th.Confirm:
		alternatives := p.alternatives(g, result)
		p.Turns.Put(req.Key(), PendingTurn{
			Action:       core.ActionConfirm,
			Message:      req.Message,
			Candidate:    result.Label,
			Alternatives: alternatives,
		})
		return core.DispatchDecision{
			Action:       core.ActionConfirm,
			Target:       result.Label,
			Rationale:    "low-band confidence, confirming the top candidate",
			Confidence:   c,
			Question:     confirmQuestion(result.Label, alternatives),
			Alternatives: alternatives,
		}

	default:
		return p.escalate(g, result, "confidence below the dispatch floor")
	}
}

func (p *Policy) resolveFollowUp(g *Graph, th Thresholds, req core.Request, result *core.ClassificationResult, pending PendingTurn) core.DispatchDecision {
	if pending.Action == core.ActionConfirm {
		if choice := matchChoice(req.Message, pending.Candidate, pending.Alternatives); choice != "" {
			chosen := *result
			chosen.Label = choice
			return p.direct(g, &chosen, "caller picked a capability explicitly")
		}
	}

	if result.Confidence >= th.Direct {
		return p.direct(g, result, "follow-up raised confidence past the direct threshold")
	}

	// One round only: a still-uncertain follow-up escalates.
	return p.escalate(g, result, "follow-up did not resolve the classification")
}

func (p *Policy) direct(g *Graph, result *core.ClassificationResult, rationale string) core.DispatchDecision {
	node, ok := g.Node(result.Label)
	if !ok {
		return p.escalate(g, result, "no capability matches label "+result.Label)
	}
	return core.DispatchDecision{
		Action:     core.ActionDirect,
		Target:     node.ID,
		Rationale:  rationale,
		Confidence: result.Confidence,
	}
}

func (p *Policy) escalate(g *Graph, result *core.ClassificationResult, rationale string) core.DispatchDecision {
	from, ok := g.Node(result.Label)
	if !ok {
		from = g.Root()
	}
	target := g.Escalate(from, result.Label)
	return core.DispatchDecision{
		Action:     core.ActionEscalate,
		Target:     target.ID,
		Rationale:  rationale,
		Confidence: result.Confidence,
	}
}

// alternatives ranks the runner-up capabilities from the combined scores,
// keeping only labels that exist in the graph.
func (p *Policy) alternatives(g *Graph, result *core.ClassificationResult) []string {
	type scored struct {
		label string
		score float64
	}

	candidates := make([]scored, 0, len(result.Evidence.Combined))
	for label, score := range result.Evidence.Combined {
		if label == result.Label {
			continue
		}
		if _, ok := g.Node(label); !ok {
			continue
		}
		candidates = append(candidates, scored{label, score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].label < candidates[j].label
	})

	out := make([]string, 0, maxAlternatives)
	for _, c := range candidates {
		if len(out) == maxAlternatives {
			break
		}
		out = append(out, c.label)
	}
	return out
}

func clarifyQuestion(candidate string) string {
	if candidate == "" || candidate == core.LabelUnclassified {
		return "Could you add a bit more detail about what you need?"
	}
	return fmt.Sprintf("It sounds like this is about %s. Could you add a bit more detail so I can route it correctly?", candidate)
}

func confirmQuestion(candidate string, alternatives []string) string {
	if len(alternatives) == 0 {
		return fmt.Sprintf("Did you mean %s? A short reply with more detail also works.", candidate)
	}
	return fmt.Sprintf("Did you mean %s? You can also pick one of: %s.", candidate, strings.Join(alternatives, ", "))
}

// matchChoice checks the follow-up message for an explicit capability
// choice among the offered options.
func matchChoice(message, candidate string, alternatives []string) string {
	folded := strings.ToLower(message)
	options := append([]string{candidate}, alternatives...)
	for _, opt := range options {
		if opt == "" {
			continue
		}
		if strings.Contains(folded, strings.ToLower(opt)) {
			return opt
		}
	}
	return ""
}
