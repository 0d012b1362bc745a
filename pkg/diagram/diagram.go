// Package diagram renders goal trees as text: an indented ASCII dump of
// names, assumptions and guarantees, a per-context goal listing and a
// Mermaid flowchart.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/cgt/pkg/kernel/cgt"
	"github.com/ormasoftchile/cgt/pkg/kernel/contexts"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// DefaultWidth bounds formula columns in the ASCII dump.
const DefaultWidth = 100

// Generate produces a diagram of the subtree rooted at root.
func Generate(tr *cgt.Tree, root cgt.NodeID, format Format) (string, error) {
	if tr == nil {
		return "", fmt.Errorf("nil tree")
	}
	if _, ok := tr.Node(root); !ok {
		return "", fmt.Errorf("%w: id %d", cgt.ErrUnknownGoal, root)
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(tr, root), nil
	case FormatASCII:
		return ASCII(tr, root, DefaultWidth), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

func generateMermaid(tr *cgt.Tree, root cgt.NodeID) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	_ = tr.Walk(root, func(n *cgt.Node, _ int) error {
		b.WriteString("    " + nodeDefinition(n) + "\n")
		for _, c := range n.Children {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", safeID(n.Name), edgeLabel(n.Operation), safeID(tr.Name(c)))
		}
		return nil
	})
	return b.String()
}

func nodeDefinition(n *cgt.Node) string {
	id := safeID(n.Name)
	label := escMermaid(n.Name)
	if !n.Context.IsTrue() {
		label += "<br/>ctx: " + escMermaid(truncate(n.Context.Text(), 40))
	}
	switch n.Operation {
	case cgt.Leaf:
		return fmt.Sprintf(`%s(["%s"])`, id, label)
	case cgt.Conjunction:
		return fmt.Sprintf(`%s{{"%s"}}`, id, label)
	case cgt.Refinement, cgt.Mapping:
		return fmt.Sprintf(`%s[/"%s"/]`, id, label)
	default:
		return fmt.Sprintf(`%s["%s"]`, id, label)
	}
}

func edgeLabel(op cgt.Operation) string {
	switch op {
	case cgt.Composition:
		return "composes"
	case cgt.Conjunction:
		return "conjoins"
	case cgt.Refinement:
		return "refines"
	case cgt.Mapping:
		return "maps"
	}
	return op.String()
}

// --- ASCII dump ---

// ASCII dumps the subtree rooted at root: one line per node with its
// operation and context, followed by the node's assumption and guarantee.
// Formulas are cut to width display columns.
func ASCII(tr *cgt.Tree, root cgt.NodeID, width int) string {
	var b strings.Builder
	n, ok := tr.Node(root)
	if !ok {
		return ""
	}
	writeNode(&b, tr, n, "", "", width)
	return b.String()
}

func writeNode(b *strings.Builder, tr *cgt.Tree, n *cgt.Node, lead, childLead string, width int) {
	head := fmt.Sprintf("%s (%s)", n.Name, n.Operation)
	if !n.Context.IsTrue() {
		head += "  ctx: " + n.Context.Text()
	}
	b.WriteString(lead + runewidth.Truncate(head, width, "...") + "\n")

	body := childLead + "│  "
	if len(n.Children) == 0 {
		body = childLead + "   "
	}
	if len(n.Contracts) > 1 {
		fmt.Fprintf(b, "%s%d alternative contracts\n", body, len(n.Contracts))
	}
	b.WriteString(body + "A: " + runewidth.Truncate(tr.Assumption(n.ID).Text(), width, "...") + "\n")
	b.WriteString(body + "G: " + runewidth.Truncate(tr.Checker().TextOf(tr.Guarantee(n.ID)), width, "...") + "\n")

	for i, c := range n.Children {
		child, ok := tr.Node(c)
		if !ok {
			continue
		}
		if i == len(n.Children)-1 {
			writeNode(b, tr, child, childLead+"└── ", childLead+"    ", width)
		} else {
			writeNode(b, tr, child, childLead+"├── ", childLead+"│   ", width)
		}
	}
}

// --- context listing ---

// Contexts lists each bucket of a partition with its goals, followed by
// the uncovered goals and overlapping buckets if any.
func Contexts(p *contexts.Partition) string {
	var b strings.Builder
	if p == nil {
		return ""
	}
	labelWidth := 0
	for _, c := range p.Clusters {
		if w := runewidth.StringWidth(c.Context.Text()); w > labelWidth {
			labelWidth = w
		}
	}
	for _, c := range p.Clusters {
		goals := append([]string(nil), c.Goals...)
		sort.Strings(goals)
		fmt.Fprintf(&b, "%s  %s\n", runewidth.FillRight(c.Context.Text(), labelWidth), strings.Join(goals, ", "))
	}
	if len(p.Uncovered) > 0 {
		fmt.Fprintf(&b, "uncovered: %s\n", strings.Join(p.Uncovered, ", "))
	}
	for _, o := range p.Overlaps {
		fmt.Fprintf(&b, "overlap: %s / %s\n", p.Clusters[o[0]].Context.Text(), p.Clusters[o[1]].Context.Text())
	}
	return b.String()
}

// --- string helpers ---

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_", "|", "_", "&", "_", "!", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	s = strings.ReplaceAll(s, "|", "#124;")
	s = strings.ReplaceAll(s, "&", "#38;")
	s = strings.ReplaceAll(s, "<", "#lt;")
	s = strings.ReplaceAll(s, ">", "#gt;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
