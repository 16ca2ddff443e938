package classify

import (
	"fmt"
	"strings"
)

// Rule maps a keyword set to a capability label. Rules are declarative
// and consumed uniformly here; handlers never carry their own matching.
type Rule struct {
	Label    string   `json:"label" yaml:"label"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Weight   float64  `json:"weight,omitempty" yaml:"weight"`
}

// RuleTable is an immutable set of lexical rules.
type RuleTable struct {
	rules []Rule
}

// NewRuleTable validates and normalizes the supplied rules.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	normalized := make([]Rule, 0, len(rules))
	for i, r := range rules {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			return nil, fmt.Errorf("lexical rule %d: label is required", i)
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("lexical rule %q: at least one keyword is required", label)
		}

		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("lexical rule %q: at least one keyword is required", label)
		}

		weight := r.Weight
		if weight <= 0 || weight > 1 {
			weight = 1
		}

		normalized = append(normalized, Rule{Label: label, Keywords: keywords, Weight: weight})
	}

	return &RuleTable{rules: normalized}, nil
}

// Score produces a base score in [0,1] per label: the matched fraction of
// the rule's keyword set, scaled by the rule weight. Multiple rules for
// one label keep the highest score.
func (t *RuleTable) Score(message string) map[string]float64 {
	if t == nil || len(t.rules) == 0 {
		return nil
	}

	tokens := tokenize(message)
	scores := make(map[string]float64)

	for _, rule := range t.rules {
		hits := 0
		for _, kw := range rule.Keywords {
			if matchKeyword(tokens, message, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		score := rule.Weight * float64(hits) / float64(len(rule.Keywords))
		if score > scores[rule.Label] {
			scores[rule.Label] = score
		}
	}

	return scores
}

// Rules returns a copy of the normalized rule set for inspection.
func (t *RuleTable) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

func tokenize(message string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}

// matchKeyword checks single tokens against the token set and multi-word
// keywords as a substring of the folded message.
func matchKeyword(tokens map[string]bool, message, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(strings.ToLower(message), keyword)
	}
	return tokens[keyword]
}
