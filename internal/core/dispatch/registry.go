package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/parleyhq/parley/internal/core"
)

// Handler receives requests dispatched to one capability. Response
// generation lives behind this interface, outside the admission and
// dispatch layer.
type Handler interface {
	Capability() string
	Handle(ctx context.Context, req core.Request, decision core.DispatchDecision) error
}

// Registry maps stable capability ids to handlers. Escalation paths are
// validated against it at load time so a dangling id fails fast instead
// of at request time.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler; duplicate capability ids are rejected.
func (r *Registry) Register(h Handler) error {
	if h == nil || h.Capability() == "" {
		return fmt.Errorf("handler with empty capability id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[h.Capability()]; dup {
		return fmt.Errorf("handler for capability %q already registered", h.Capability())
	}
	r.handlers[h.Capability()] = h
	return nil
}

// Resolve returns the handler for a capability id.
func (r *Registry) Resolve(id string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// Validate checks that every node in the graph, and therefore every id
// reachable through any escalation path, has a registered handler.
func (r *Registry) Validate(g *Graph) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, node := range g.Nodes() {
		if _, ok := r.handlers[node.ID]; !ok {
			missing = append(missing, node.ID)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no handler registered for capabilities: %v", missing)
	}
	return nil
}
