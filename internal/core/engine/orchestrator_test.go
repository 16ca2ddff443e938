package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/core/admission"
	"github.com/parleyhq/parley/internal/core/capacity"
	"github.com/parleyhq/parley/internal/core/classify"
	"github.com/parleyhq/parley/internal/core/dispatch"
)

// countingEmbedder tracks how often the expensive phase actually runs.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	inner classify.Embedder
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.inner.Embed(ctx, text)
}

func (e *countingEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []core.AuditEvent
}

func (s *recordingSink) Record(ctx context.Context, event core.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) all() []core.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

type brokenCapacityStore struct{}

func (brokenCapacityStore) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (capacity.Decision, error) {
	return capacity.Decision{}, errors.New("store down")
}

func testGraph(t *testing.T) *dispatch.Graph {
	t.Helper()
	g, err := dispatch.NewGraph([]core.CapabilityNode{
		{ID: "generalist", Description: "general assistant", Accepts: []string{"*"}},
		{ID: "billing", Description: "billing and payments", Accepts: []string{"billing"}, Priority: 5, EscalationPath: []string{"generalist"}},
		{ID: "support", Description: "product troubleshooting", Accepts: []string{"support"}, EscalationPath: []string{"generalist"}},
	}, "generalist")
	require.NoError(t, err)
	return g
}

func testRules(t *testing.T) *classify.RuleTable {
	t.Helper()
	rules, err := classify.NewRuleTable([]classify.Rule{
		{Label: "billing", Keywords: []string{"invoice", "refund", "charge"}, Weight: 1},
		{Label: "support", Keywords: []string{"broken", "bug", "crash"}, Weight: 1},
	})
	require.NoError(t, err)
	return rules
}

type orchestratorOptions struct {
	limit    int
	store    capacity.Store
	embedder *countingEmbedder
	sink     *recordingSink
	cache    classify.Cache
}

func newOrchestrator(t *testing.T, opts orchestratorOptions) *Orchestrator {
	t.Helper()

	if opts.limit == 0 {
		opts.limit = 100
	}
	if opts.store == nil {
		opts.store = capacity.NewMemoryStore()
	}
	if opts.cache == nil {
		opts.cache = classify.NewMemoryCache(0)
	}

	table, err := admission.NewPolicyTable([]core.QuotaPolicy{
		{Pattern: "*", Limit: opts.limit, Window: time.Minute},
	})
	require.NoError(t, err)

	classifier := &classify.Classifier{Rules: testRules(t)}
	if opts.embedder != nil {
		descriptions := map[string]string{
			"billing": "billing and payments",
			"support": "product troubleshooting",
		}
		embTable, err := classify.BuildEmbeddingTable(context.Background(), opts.embedder.inner, descriptions)
		require.NoError(t, err)
		classifier.Similarity = classify.NewSimilarityScorer(opts.embedder, embTable, time.Second)
	}

	o := &Orchestrator{
		Admission: admission.NewController(opts.store, table),
		Cache:     opts.cache,
		Policy:    dispatch.NewPolicy(testGraph(t), dispatch.Thresholds{}, dispatch.NewPendingTurns(time.Minute)),
		Registry:  dispatch.NewRegistry(),
	}
	if opts.sink != nil {
		o.Audit = opts.sink
	}
	o.SetClassifier(classifier)
	return o
}

func req(caller, message string) core.Request {
	return core.Request{Route: "/v1/messages", Caller: caller, Message: message}
}

func TestHandleDirectDispatch(t *testing.T) {
	o := newOrchestrator(t, orchestratorOptions{})

	resp := o.Handle(context.Background(), "req-1", req("alice", "please refund this invoice charge"))

	assert.True(t, resp.Allowed)
	assert.Equal(t, core.ActionDirect, resp.Decision)
	assert.Equal(t, "billing", resp.Target)
	assert.GreaterOrEqual(t, resp.Confidence, 0.85)
}

func TestHandleQuotaDenial(t *testing.T) {
	sink := &recordingSink{}
	o := newOrchestrator(t, orchestratorOptions{limit: 1, sink: sink})

	first := o.Handle(context.Background(), "req-1", req("alice", "refund invoice charge"))
	require.True(t, first.Allowed)

	second := o.Handle(context.Background(), "req-2", req("alice", "refund invoice charge"))
	assert.False(t, second.Allowed)
	assert.Empty(t, second.Decision)
	assert.Positive(t, second.RetryAfter)
	assert.Zero(t, second.RemainingQuota)
	assert.False(t, second.ResetAt.IsZero())

	o.Drain()
	events := sink.all()
	require.Len(t, events, 2)
	assert.True(t, events[0].Allowed)
	assert.False(t, events[1].Allowed)
	assert.Equal(t, "req-2", events[1].RequestID)
}

func TestHandleCachesClassification(t *testing.T) {
	embedder := &countingEmbedder{inner: classify.NewHashingEmbedder(classify.DefaultEmbeddingDim)}
	o := newOrchestrator(t, orchestratorOptions{embedder: embedder})

	message := "how do I get a refund for a duplicate charge"
	first := o.Handle(context.Background(), "req-1", req("alice", message))
	second := o.Handle(context.Background(), "req-2", req("bob", message))

	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.Target, second.Target)
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	// One embed per capability at table build time, then one for the
	// first message. The identical second message is served from cache.
	assert.Equal(t, 1, embedder.count())
}

func TestHandleClarifyThenDirect(t *testing.T) {
	o := newOrchestrator(t, orchestratorOptions{})

	// Two of three billing keywords: inside the clarify band.
	first := o.Handle(context.Background(), "req-1", req("alice", "a refund for this charge"))
	require.True(t, first.Allowed)
	require.Equal(t, core.ActionClarify, first.Decision)
	require.NotEmpty(t, first.Question)
	require.Empty(t, first.Target)

	// The follow-up is classified together with the original message.
	second := o.Handle(context.Background(), "req-2", req("alice", "yes, about the invoice"))
	assert.Equal(t, core.ActionDirect, second.Decision)
	assert.Equal(t, "billing", second.Target)

	// The clarification round was consumed; a third vague turn starts over.
	third := o.Handle(context.Background(), "req-3", req("alice", "a refund for this charge"))
	assert.Equal(t, core.ActionClarify, third.Decision)
}

func TestHandleUnclassifiedEscalatesToRoot(t *testing.T) {
	o := newOrchestrator(t, orchestratorOptions{})

	resp := o.Handle(context.Background(), "req-1", req("alice", "completely unrelated gibberish"))

	assert.Equal(t, core.ActionEscalate, resp.Decision)
	assert.Equal(t, "generalist", resp.Target)
}

func TestHandleFailsOpenWhenAdmissionUnavailable(t *testing.T) {
	var stage string
	o := newOrchestrator(t, orchestratorOptions{store: brokenCapacityStore{}})
	o.OnError = func(s string, err error) { stage = s }

	resp := o.Handle(context.Background(), "req-1", req("alice", "refund invoice charge"))

	assert.True(t, resp.Allowed)
	assert.Equal(t, core.ActionDirect, resp.Decision)
	assert.Equal(t, -1, resp.RemainingQuota)
	assert.Equal(t, "admission", stage)
}

func TestHandleRevalidatesLowConfidenceHit(t *testing.T) {
	cache := classify.NewMemoryCache(0.99)
	o := newOrchestrator(t, orchestratorOptions{cache: cache})

	message := "please refund this invoice charge"
	fingerprint := classify.Fingerprint(message)

	stale := &core.ClassificationResult{
		Label:      "support",
		Confidence: 0.5,
		ComputedAt: time.Now(),
		TTL:        time.Hour,
	}
	cache.Set(context.Background(), fingerprint, stale, time.Hour)

	// The hit is served as-is even though it is stale.
	resp := o.Handle(context.Background(), "req-1", req("alice", message))
	assert.True(t, resp.CacheHit)
	assert.Equal(t, "support", resp.Target)

	o.Drain()

	fresh, ok := cache.Get(context.Background(), fingerprint)
	require.True(t, ok)
	assert.Equal(t, "billing", fresh.Label)
}

func TestHandleAuditRecordsLabelAndCacheHit(t *testing.T) {
	sink := &recordingSink{}
	o := newOrchestrator(t, orchestratorOptions{sink: sink})

	message := "please refund this invoice charge"
	o.Handle(context.Background(), "req-1", req("alice", message))
	o.Handle(context.Background(), "req-2", req("bob", message))
	o.Drain()

	events := sink.all()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "billing", e.Label)
		assert.Equal(t, core.ActionDirect, e.Action)
	}
	hits := 0
	for _, e := range events {
		if e.CacheHit {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
}

func TestClassifierHotSwap(t *testing.T) {
	o := newOrchestrator(t, orchestratorOptions{})

	replacement, err := classify.NewRuleTable([]classify.Rule{
		{Label: "support", Keywords: []string{"refund"}, Weight: 1},
	})
	require.NoError(t, err)
	o.SetClassifier(&classify.Classifier{Rules: replacement})

	resp := o.Handle(context.Background(), "req-1", req("alice", "refund"))
	assert.Equal(t, "support", resp.Target)
}
