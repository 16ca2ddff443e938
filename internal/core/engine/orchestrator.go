// Package engine composes admission, classification and dispatch into
// the per-request pipeline.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/core/admission"
	"github.com/parleyhq/parley/internal/core/classify"
	"github.com/parleyhq/parley/internal/core/dispatch"
	"github.com/parleyhq/parley/internal/metrics"
)

// auditTimeout bounds the asynchronous audit write.
const auditTimeout = 5 * time.Second

// AuditSink receives write-only decision records. It is never read on
// the hot path.
type AuditSink interface {
	Record(ctx context.Context, event core.AuditEvent) error
}

// Response is the outward result of one pipeline run.
type Response struct {
	RequestID      string        `json:"request_id"`
	Allowed        bool          `json:"allowed"`
	Decision       core.Action   `json:"decision,omitempty"`
	Target         string        `json:"target,omitempty"`
	Question       string        `json:"question,omitempty"`
	Alternatives   []string      `json:"alternatives,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	RetryAfter     time.Duration `json:"retry_after,omitempty"`
	RemainingQuota int           `json:"remaining_quota"`
	ResetAt        time.Time     `json:"reset_at"`
	CacheHit       bool          `json:"-"`
}

// Orchestrator runs the admission → classification → dispatch pipeline.
type Orchestrator struct {
	Admission *admission.Controller
	Cache     classify.Cache
	Policy    *dispatch.Policy
	Registry  *dispatch.Registry
	Audit     AuditSink
	Clock     func() time.Time

	// OnError observes downstream faults that were absorbed rather than
	// propagated. Optional.
	OnError func(stage string, err error)

	classifier atomic.Pointer[classify.Classifier]

	revalMu sync.Mutex
	reval   map[string]bool

	wg sync.WaitGroup
}

// SetClassifier installs or atomically replaces the classifier, e.g.
// after a configuration reload rebuilt the rules and embedding table.
func (o *Orchestrator) SetClassifier(c *classify.Classifier) {
	if c != nil {
		o.classifier.Store(c)
	}
}

// Classifier returns the active classifier snapshot.
func (o *Orchestrator) Classifier() *classify.Classifier {
	return o.classifier.Load()
}

// Handle runs the pipeline for one turn. Downstream faults never escape:
// every run resolves to a rejection, a clarification, a confirmation or
// an escalation.
func (o *Orchestrator) Handle(ctx context.Context, requestID string, req core.Request) *Response {
	start := o.now()

	adm, err := o.Admission.Check(ctx, req)
	if err != nil {
		// Both stores down. Infrastructure failure never blocks traffic.
		o.observe("admission", err)
		adm = core.AdmissionResult{
			Allowed:    true,
			Remaining:  -1,
			ResetAt:    start,
			FailedOpen: true,
		}
	}
	metrics.RecordAdmission(req.Route, adm.Allowed, adm.FailedOpen)

	if !adm.Allowed {
		resp := &Response{
			RequestID:      requestID,
			Allowed:        false,
			RetryAfter:     adm.RetryAfter,
			RemainingQuota: adm.Remaining,
			ResetAt:        adm.ResetAt,
		}
		o.finish(requestID, req, resp, nil, start)
		return resp
	}

	pending, hasPending := o.Policy.TakeTurn(req.Key())

	text := req.Message
	if hasPending {
		// The single follow-up round is classified together with the
		// original message.
		text = pending.Message + "\n" + req.Message
	}

	fingerprint := classify.Fingerprint(text)
	result, hit := o.Cache.Get(ctx, fingerprint)
	metrics.RecordCacheLookup(hit)

	if !hit {
		result = o.Classifier().Classify(ctx, text)
		if ctx.Err() == nil {
			o.Cache.Set(ctx, fingerprint, result, result.TTL)
		}
	} else if result.NeedsRevalidation {
		o.revalidate(fingerprint, text)
	}

	var pendingPtr *dispatch.PendingTurn
	if hasPending {
		pendingPtr = &pending
	}
	decision := o.Policy.Decide(req, result, pendingPtr)

	if ctx.Err() == nil {
		o.invoke(ctx, req, decision)
	}

	resp := &Response{
		RequestID:      requestID,
		Allowed:        true,
		Decision:       decision.Action,
		Target:         decision.Target,
		Question:       decision.Question,
		Alternatives:   decision.Alternatives,
		Confidence:     decision.Confidence,
		RemainingQuota: adm.Remaining,
		ResetAt:        adm.ResetAt,
		CacheHit:       hit,
	}
	o.finish(requestID, req, resp, result, start)
	return resp
}

// invoke hands the decision to the registered handler, best effort. A
// handler fault is absorbed; the decision stands and is never silently
// retried.
func (o *Orchestrator) invoke(ctx context.Context, req core.Request, decision core.DispatchDecision) {
	if o.Registry == nil || decision.Target == "" {
		return
	}
	if decision.Action != core.ActionDirect && decision.Action != core.ActionEscalate {
		return
	}

	handler, ok := o.Registry.Resolve(decision.Target)
	if !ok {
		return
	}
	if err := handler.Handle(ctx, req, decision); err != nil {
		o.observe("handler", err)
	}
}

// revalidate re-classifies a low-confidence cached entry once in the
// background, replacing it wholesale. Concurrent hits on the same
// fingerprint trigger a single re-computation.
func (o *Orchestrator) revalidate(fingerprint, text string) {
	o.revalMu.Lock()
	if o.reval == nil {
		o.reval = make(map[string]bool)
	}
	if o.reval[fingerprint] {
		o.revalMu.Unlock()
		return
	}
	o.reval[fingerprint] = true
	o.revalMu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.revalMu.Lock()
			delete(o.reval, fingerprint)
			o.revalMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()

		fresh := o.Classifier().Classify(ctx, text)
		o.Cache.Set(ctx, fingerprint, fresh, fresh.TTL)
	}()
}

// finish emits telemetry and the audit record unconditionally. The audit
// write is asynchronous and detached from the caller's context, so a
// disconnect cannot abort or duplicate it.
func (o *Orchestrator) finish(requestID string, req core.Request, resp *Response, result *core.ClassificationResult, start time.Time) {
	latency := o.now().Sub(start)
	metrics.RecordPipeline(string(resp.Decision), resp.Confidence, latency)

	event := core.AuditEvent{
		RequestID:  requestID,
		Route:      req.Route,
		Caller:     req.Caller,
		Allowed:    resp.Allowed,
		Action:     resp.Decision,
		Target:     resp.Target,
		Confidence: resp.Confidence,
		CacheHit:   resp.CacheHit,
		Latency:    latency,
		OccurredAt: start,
	}
	if result != nil {
		event.Label = result.Label
	}

	if o.Audit == nil {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := o.Audit.Record(ctx, event); err != nil {
			o.observe("audit", err)
		}
	}()
}

// Drain waits for background audit and revalidation work, used during
// shutdown and in tests.
func (o *Orchestrator) Drain() {
	o.wg.Wait()
}

func (o *Orchestrator) observe(stage string, err error) {
	if o.OnError != nil && err != nil {
		o.OnError(stage, err)
	}
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
