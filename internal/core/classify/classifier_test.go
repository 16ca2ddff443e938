package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
)

func testRules(t *testing.T) *RuleTable {
	t.Helper()
	rules, err := NewRuleTable([]Rule{
		{Label: "billing", Keywords: []string{"invoice", "payment", "refund", "charge"}},
		{Label: "scheduling", Keywords: []string{"meeting", "calendar", "schedule", "reschedule"}},
		{Label: "support", Keywords: []string{"broken", "error", "help", "crash"}},
	})
	require.NoError(t, err)
	return rules
}

func testScorer(t *testing.T) *SimilarityScorer {
	t.Helper()
	embedder := HashingEmbedder{Dim: 128}
	table, err := BuildEmbeddingTable(context.Background(), embedder, map[string]string{
		"billing":    "invoice payment refund charge billing money",
		"scheduling": "meeting calendar schedule reschedule appointment time",
		"support":    "broken error help crash bug failure",
	})
	require.NoError(t, err)
	return NewSimilarityScorer(embedder, table, time.Second)
}

func TestClassifierMatchesDominantLabel(t *testing.T) {
	c := &Classifier{Rules: testRules(t), Similarity: testScorer(t)}

	result := c.Classify(context.Background(), "I need a refund for this invoice payment charge")
	require.Equal(t, "billing", result.Label)
	require.Greater(t, result.Confidence, 0.5)
	require.LessOrEqual(t, result.Confidence, 1.0)
	require.False(t, result.Evidence.Degraded)
	require.NotEmpty(t, result.Evidence.Lexical)
	require.NotEmpty(t, result.Evidence.Similarity)
}

func TestClassifierFloorYieldsUnclassified(t *testing.T) {
	c := &Classifier{Rules: testRules(t), Similarity: testScorer(t), Floor: 0.30}

	result := c.Classify(context.Background(), "completely unrelated gibberish xylophone")
	require.Equal(t, core.LabelUnclassified, result.Label)
	require.Equal(t, 0.30, result.Confidence)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding backend unavailable")
}

func TestClassifierDegradesToLexicalOnly(t *testing.T) {
	scorer := NewSimilarityScorer(failingEmbedder{}, map[string][]float32{"billing": {1}}, time.Second)
	c := &Classifier{Rules: testRules(t), Similarity: scorer}

	result := c.Classify(context.Background(), "refund my invoice payment charge")
	require.Equal(t, "billing", result.Label)
	require.True(t, result.Evidence.Degraded)
	// Lexical carries full weight when similarity is unavailable.
	require.Equal(t, 1.0, result.Confidence)
}

func TestClassifierTieBreakByPriority(t *testing.T) {
	rules, err := NewRuleTable([]Rule{
		{Label: "billing", Keywords: []string{"account"}},
		{Label: "support", Keywords: []string{"account"}},
	})
	require.NoError(t, err)

	c := &Classifier{
		Rules:      rules,
		Priorities: map[string]int{"support": 10, "billing": 5},
	}

	result := c.Classify(context.Background(), "my account")
	require.Equal(t, "support", result.Label)

	c.Priorities = map[string]int{"billing": 10, "support": 5}
	result = c.Classify(context.Background(), "my account")
	require.Equal(t, "billing", result.Label)
}

func TestClassifierTieBreakFallsBackToLexicalWinner(t *testing.T) {
	rules, err := NewRuleTable([]Rule{
		{Label: "billing", Keywords: []string{"account", "invoice"}},
		{Label: "support", Keywords: []string{"account"}},
	})
	require.NoError(t, err)

	// Equal priorities; support matched its full keyword set while
	// billing only matched half, so support wins lexically.
	c := &Classifier{Rules: rules, Epsilon: 0.6}

	result := c.Classify(context.Background(), "my account")
	require.Equal(t, "support", result.Label)
}

func TestClassifierIsDeterministic(t *testing.T) {
	c := &Classifier{Rules: testRules(t), Similarity: testScorer(t)}

	first := c.Classify(context.Background(), "please reschedule my meeting")
	for i := 0; i < 5; i++ {
		again := c.Classify(context.Background(), "please reschedule my meeting")
		require.Equal(t, first.Label, again.Label)
		require.Equal(t, first.Confidence, again.Confidence)
	}
}

func TestFingerprintNormalization(t *testing.T) {
	require.Equal(t, Fingerprint("Hello  World"), Fingerprint("  hello world "))
	require.NotEqual(t, Fingerprint("hello world"), Fingerprint("goodbye world"))
	require.Len(t, Fingerprint("anything"), fingerprintLen)
}

func TestCosine(t *testing.T) {
	require.Equal(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}))
	require.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}))
	require.Equal(t, 0.0, Cosine(nil, []float32{1}))
	require.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{0, 0}))
}

func TestMemoryCacheHitAndTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(0.45)
	cache.Clock = func() time.Time { return now }

	result := &core.ClassificationResult{Label: "billing", Confidence: 0.9, ComputedAt: now}
	cache.Set(context.Background(), "fp1", result, time.Minute)

	hit, ok := cache.Get(context.Background(), "fp1")
	require.True(t, ok)
	require.Equal(t, *result, *hit)
	require.False(t, hit.NeedsRevalidation)

	// Identical lookups return identical results.
	again, ok := cache.Get(context.Background(), "fp1")
	require.True(t, ok)
	require.Equal(t, *hit, *again)

	now = now.Add(61 * time.Second)
	_, ok = cache.Get(context.Background(), "fp1")
	require.False(t, ok)
}

func TestMemoryCacheFlagsLowConfidenceForRevalidation(t *testing.T) {
	cache := NewMemoryCache(0.45)

	cache.Set(context.Background(), "fp", &core.ClassificationResult{Label: "billing", Confidence: 0.2}, time.Minute)

	hit, ok := cache.Get(context.Background(), "fp")
	require.True(t, ok)
	require.True(t, hit.NeedsRevalidation)

	// The stored entry itself is untouched; only the returned copy is
	// flagged, and confidence is never mutated.
	require.Equal(t, 0.2, hit.Confidence)
	second, ok := cache.Get(context.Background(), "fp")
	require.True(t, ok)
	require.Equal(t, 0.2, second.Confidence)
}
