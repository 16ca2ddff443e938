package classify

import (
	"context"
	"sort"
	"time"

	"github.com/parleyhq/parley/internal/core"
)

// Default scoring parameters. Similarity is weighted above lexical; a
// best combined score under the floor yields the unclassified label.
const (
	DefaultLexicalWeight    = 0.4
	DefaultSimilarityWeight = 0.6
	DefaultFloor            = 0.30
	DefaultEpsilon          = 0.02
	DefaultResultTTL        = 10 * time.Minute
)

// Classifier scores a message against the capability set in two phases:
// deterministic lexical rules, then embedding similarity.
type Classifier struct {
	Rules      *RuleTable
	Similarity *SimilarityScorer

	LexicalWeight    float64
	SimilarityWeight float64
	Floor            float64
	Epsilon          float64

	// Priorities breaks near-ties in favor of the capability with the
	// higher declared priority.
	Priorities map[string]int

	ResultTTL time.Duration
	Clock     func() time.Time
}

// Classify scores the message and returns a fresh ClassificationResult.
// An embedder fault degrades to lexical-only scoring; it never fails the
// request.
func (c *Classifier) Classify(ctx context.Context, message string) *core.ClassificationResult {
	lexical := c.Rules.Score(message)

	similarity, simErr := c.Similarity.Score(ctx, message)
	degraded := simErr != nil

	lexWeight, simWeight := c.weights()
	if degraded || similarity == nil {
		// Lexical-only: the deterministic phase carries full weight.
		lexWeight, simWeight = 1, 0
	}

	combined := make(map[string]float64)
	for label, score := range lexical {
		combined[label] += lexWeight * score
	}
	for label, score := range similarity {
		combined[label] += simWeight * score
	}

	label, confidence := c.pick(combined, lexical)

	floor := c.floor()
	if confidence < floor {
		label = core.LabelUnclassified
		confidence = floor
	}

	return &core.ClassificationResult{
		Label:      label,
		Confidence: confidence,
		Evidence: core.Evidence{
			Lexical:    lexical,
			Similarity: similarity,
			Combined:   combined,
			Degraded:   degraded,
		},
		ComputedAt: c.now(),
		TTL:        c.ttl(),
	}
}

// pick selects the winning label: highest combined score, near-ties
// broken by declared priority and then by the lexical winner.
func (c *Classifier) pick(combined, lexical map[string]float64) (string, float64) {
	if len(combined) == 0 {
		return core.LabelUnclassified, 0
	}

	labels := make([]string, 0, len(combined))
	for label := range combined {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := labels[0]
	for _, label := range labels[1:] {
		if combined[label] > combined[best] {
			best = label
		}
	}

	epsilon := c.epsilon()
	contenders := make([]string, 0, 2)
	for _, label := range labels {
		if combined[best]-combined[label] <= epsilon {
			contenders = append(contenders, label)
		}
	}

	if len(contenders) > 1 {
		winner := contenders[0]
		for _, label := range contenders[1:] {
			switch {
			case c.priority(label) > c.priority(winner):
				winner = label
			case c.priority(label) == c.priority(winner) && lexical[label] > lexical[winner]:
				winner = label
			}
		}
		best = winner
	}

	confidence := combined[best]
	if confidence > 1 {
		confidence = 1
	}
	return best, confidence
}

func (c *Classifier) priority(label string) int {
	if c == nil || c.Priorities == nil {
		return 0
	}
	return c.Priorities[label]
}

func (c *Classifier) weights() (float64, float64) {
	lex, sim := c.LexicalWeight, c.SimilarityWeight
	if lex <= 0 && sim <= 0 {
		return DefaultLexicalWeight, DefaultSimilarityWeight
	}
	return lex, sim
}

func (c *Classifier) floor() float64 {
	if c == nil || c.Floor <= 0 {
		return DefaultFloor
	}
	return c.Floor
}

func (c *Classifier) epsilon() float64 {
	if c == nil || c.Epsilon <= 0 {
		return DefaultEpsilon
	}
	return c.Epsilon
}

func (c *Classifier) ttl() time.Duration {
	if c == nil || c.ResultTTL <= 0 {
		return DefaultResultTTL
	}
	return c.ResultTTL
}

func (c *Classifier) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
