package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/parleyhq/parley/internal/core"
)

// FormatPolicies renders the resolved quota policies as a table.
func FormatPolicies(policies []core.QuotaPolicy) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Pattern", "Limit", "Window"})

	for _, p := range policies {
		t.AppendRow(table.Row{p.Pattern, p.Limit, p.Window.String()})
	}

	return t.Render()
}

// FormatGraph renders the capability graph as a table, root first.
func FormatGraph(nodes []core.CapabilityNode, root string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Accepts", "Priority", "Escalation Path", "Description"})

	for _, n := range nodes {
		id := n.ID
		if n.ID == root {
			id = n.ID + " (root)"
		}
		t.AppendRow(table.Row{
			id,
			joinOrDash(n.Accepts),
			n.Priority,
			joinOrDash(n.EscalationPath),
			n.Description,
		})
	}

	return t.Render()
}

// FormatAuditEvents renders recent audit events, most recent first.
func FormatAuditEvents(events []core.AuditEvent) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Request", "Caller", "Allowed", "Action", "Target", "Label", "Conf", "Cache", "Latency"})

	for _, e := range events {
		t.AppendRow(table.Row{
			e.OccurredAt.Format("2006-01-02 15:04:05"),
			e.RequestID,
			e.Caller,
			yesNo(e.Allowed),
			string(e.Action),
			e.Target,
			e.Label,
			fmt.Sprintf("%.2f", e.Confidence),
			yesNo(e.CacheHit),
			e.Latency.String(),
		})
	}

	return t.Render()
}

// FormatClassification renders a one-shot classification result with its
// per-label evidence.
func FormatClassification(result *core.ClassificationResult) string {
	if result == nil {
		return ""
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Label", "Lexical", "Similarity", "Combined"})

	for _, label := range sortedLabels(result.Evidence.Combined) {
		t.AppendRow(table.Row{
			label,
			fmt.Sprintf("%.3f", result.Evidence.Lexical[label]),
			fmt.Sprintf("%.3f", result.Evidence.Similarity[label]),
			fmt.Sprintf("%.3f", result.Evidence.Combined[label]),
		})
	}

	footer := fmt.Sprintf("%s (%.2f)", result.Label, result.Confidence)
	if result.Evidence.Degraded {
		footer += " [degraded: lexical only]"
	}
	t.AppendFooter(table.Row{"Decision", "", "", footer})

	return t.Render()
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
