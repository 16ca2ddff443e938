package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/core"
)

func testNodes() []core.CapabilityNode {
	return []core.CapabilityNode{
		{ID: "billing", Accepts: []string{"billing"}, Priority: 5, EscalationPath: []string{"support", "concierge"}},
		{ID: "scheduling", Accepts: []string{"scheduling"}, Priority: 3, EscalationPath: []string{"concierge"}},
		{ID: "support", Accepts: []string{"support", "billing"}, Priority: 8, EscalationPath: []string{"concierge"}},
		{ID: "concierge", Accepts: []string{"*"}, Priority: 1},
	}
}

func TestNewGraphValidates(t *testing.T) {
	g, err := NewGraph(testNodes(), "concierge")
	require.NoError(t, err)
	require.Len(t, g.Nodes(), 4)
	require.Equal(t, "concierge", g.Root().ID)
}

func TestNewGraphRejectsUndefinedEscalationTarget(t *testing.T) {
	nodes := testNodes()
	nodes[0].EscalationPath = []string{"missing"}
	_, err := NewGraph(nodes, "concierge")
	require.ErrorContains(t, err, "undefined node")
}

func TestNewGraphRejectsSelfEscalation(t *testing.T) {
	nodes := testNodes()
	nodes[0].EscalationPath = []string{"billing"}
	_, err := NewGraph(nodes, "concierge")
	require.ErrorContains(t, err, "escalates to itself")
}

func TestNewGraphRejectsMissingRoot(t *testing.T) {
	_, err := NewGraph(testNodes(), "nope")
	require.ErrorContains(t, err, "not defined")
}

func TestNewGraphRejectsEscalationLoop(t *testing.T) {
	nodes := []core.CapabilityNode{
		{ID: "a", EscalationPath: []string{"b"}},
		{ID: "b", EscalationPath: []string{"a"}},
		{ID: "root"},
	}
	_, err := NewGraph(nodes, "root")
	require.Error(t, err)
}

func TestNewGraphRejectsDeadEnd(t *testing.T) {
	nodes := []core.CapabilityNode{
		{ID: "a", EscalationPath: []string{"b"}},
		{ID: "b"},
		{ID: "root"},
	}
	_, err := NewGraph(nodes, "root")
	require.ErrorContains(t, err, "dead-ends")
}

func TestEscalationTerminatesWithinNodeCount(t *testing.T) {
	g, err := NewGraph(testNodes(), "concierge")
	require.NoError(t, err)

	// From any node, walking the path delivers within the node count.
	for _, node := range g.Nodes() {
		target := g.Escalate(node, "nonexistent-label")
		require.Equal(t, "concierge", target.ID)
	}
}

func TestEscalateFirstAcceptingNodeWins(t *testing.T) {
	g, err := NewGraph(testNodes(), "concierge")
	require.NoError(t, err)

	billing, _ := g.Node("billing")
	target := g.Escalate(billing, "billing")
	require.Equal(t, "support", target.ID)
}

func TestAcceptsLabel(t *testing.T) {
	node := core.CapabilityNode{ID: "billing"}
	require.True(t, node.AcceptsLabel("billing"))
	require.False(t, node.AcceptsLabel("support"))

	node.Accepts = []string{"billing", "payments"}
	require.True(t, node.AcceptsLabel("payments"))
	require.False(t, node.AcceptsLabel("other"))

	node.Accepts = []string{"*"}
	require.True(t, node.AcceptsLabel("anything"))
}

func TestGraphSnapshotsAreIndependent(t *testing.T) {
	g1, err := NewGraph(testNodes(), "concierge")
	require.NoError(t, err)

	p := NewPolicy(g1, Thresholds{}, nil)

	nodes := testNodes()
	nodes[0].Priority = 99
	g2, err := NewGraph(nodes, "concierge")
	require.NoError(t, err)

	p.SwapGraph(g2)
	node, _ := p.Graph().Node("billing")
	require.Equal(t, 99, node.Priority)

	// The old snapshot is untouched.
	old, _ := g1.Node("billing")
	require.Equal(t, 5, old.Priority)
}
