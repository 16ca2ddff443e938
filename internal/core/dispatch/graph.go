// Package dispatch decides what happens to a classified turn: immediate
// dispatch, a clarification round, a confirmation with alternatives, or
// escalation through the capability graph.
package dispatch

import (
	"fmt"

	"github.com/parleyhq/parley/internal/core"
)

// Graph is an immutable snapshot of the capability graph. A reload builds
// a new Graph and swaps the whole structure; readers never observe a
// partial update.
type Graph struct {
	nodes map[string]core.CapabilityNode
	order []string
	root  string
}

// NewGraph validates the node set and builds a snapshot. Every id
// referenced by any escalation path must exist, the root fallback must
// have no escalation path of its own, and chained escalation from any
// node must reach the root without looping.
func NewGraph(nodes []core.CapabilityNode, root string) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("capability graph has no nodes")
	}

	g := &Graph{
		nodes: make(map[string]core.CapabilityNode, len(nodes)),
		order: make([]string, 0, len(nodes)),
		root:  root,
	}

	for _, node := range nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("capability node with empty id")
		}
		if _, dup := g.nodes[node.ID]; dup {
			return nil, fmt.Errorf("duplicate capability node %q", node.ID)
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}

	rootNode, ok := g.nodes[root]
	if !ok {
		return nil, fmt.Errorf("root fallback node %q not defined", root)
	}
	if len(rootNode.EscalationPath) != 0 {
		return nil, fmt.Errorf("root fallback node %q must not escalate further", root)
	}

	for _, id := range g.order {
		node := g.nodes[id]
		seen := make(map[string]bool, len(node.EscalationPath))
		for _, target := range node.EscalationPath {
			if target == id {
				return nil, fmt.Errorf("capability node %q escalates to itself", id)
			}
			if seen[target] {
				return nil, fmt.Errorf("capability node %q lists %q twice in its escalation path", id, target)
			}
			seen[target] = true
			if _, ok := g.nodes[target]; !ok {
				return nil, fmt.Errorf("capability node %q escalates to undefined node %q", id, target)
			}
		}
	}

	for _, id := range g.order {
		if err := g.checkReachesRoot(id); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// checkReachesRoot follows chained escalation (a node hands off to the
// last entry of its path) and verifies the chain ends at the root within
// the node count, which also rules out loops.
func (g *Graph) checkReachesRoot(start string) error {
	current := start
	for hops := 0; hops <= len(g.order); hops++ {
		if current == g.root {
			return nil
		}
		node := g.nodes[current]
		if len(node.EscalationPath) == 0 {
			return fmt.Errorf("capability node %q dead-ends at %q without reaching root %q", start, current, g.root)
		}
		current = node.EscalationPath[len(node.EscalationPath)-1]
	}
	return fmt.Errorf("capability node %q loops without reaching root %q", start, g.root)
}

// Node returns the node for the id, if present.
func (g *Graph) Node(id string) (core.CapabilityNode, bool) {
	if g == nil {
		return core.CapabilityNode{}, false
	}
	node, ok := g.nodes[id]
	return node, ok
}

// Root returns the designated root fallback node.
func (g *Graph) Root() core.CapabilityNode {
	return g.nodes[g.root]
}

// Nodes lists the nodes in declaration order.
func (g *Graph) Nodes() []core.CapabilityNode {
	if g == nil {
		return nil
	}
	out := make([]core.CapabilityNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Priorities maps node ids to their declared priority, consumed by the
// classifier for tie-breaking.
func (g *Graph) Priorities() map[string]int {
	if g == nil {
		return nil
	}
	out := make(map[string]int, len(g.order))
	for _, id := range g.order {
		out[id] = g.nodes[id].Priority
	}
	return out
}

// Descriptions maps node ids to their description text, consumed when
// building the embedding table at startup.
func (g *Graph) Descriptions() map[string]string {
	if g == nil {
		return nil
	}
	out := make(map[string]string, len(g.order))
	for _, id := range g.order {
		out[id] = g.nodes[id].Description
	}
	return out
}

// Escalate walks the node's escalation path in order and returns the
// first node accepting the label; an exhausted path delivers to the root
// fallback.
func (g *Graph) Escalate(from core.CapabilityNode, label string) core.CapabilityNode {
	for _, id := range from.EscalationPath {
		node, ok := g.nodes[id]
		if !ok {
			continue
		}
		if node.AcceptsLabel(label) {
			return node
		}
	}
	return g.Root()
}
