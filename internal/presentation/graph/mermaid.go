package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/mobility/pkg/domain"
)

// Overlay marks the progress of one proc on its script's graph.
type Overlay struct {
	Visited []int
	Current int // entry index; -1 or >= Len when none
}

// GenerateMermaid renders a compiled script as a Mermaid flowchart.
// Labels are drawn as circles, moves as rectangles and gotos as dotted
// edges to the resolved target. Execution falls through to the next
// entry, and past the last one into the end node.
func GenerateMermaid(script *domain.Script, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	n := script.Len()
	for i := 0; i < n; i++ {
		e := script.Entry(i)
		id := nodeID(i)
		switch e.Kind {
		case domain.EntryLabel:
			fmt.Fprintf(&sb, "    %s((\"%s\"))\n", id, escape(e.Label))
		case domain.EntryGoto:
			fmt.Fprintf(&sb, "    %s{{\"goto %s\"}}\n", id, escape(e.Label))
			fmt.Fprintf(&sb, "    %s -.-> %s\n", id, nodeID(e.Target))
			continue
		default:
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", id, escape(moveLabel(e.Move)))
		}
		fmt.Fprintf(&sb, "    %s --> %s\n", id, nodeID(i+1))
	}
	fmt.Fprintf(&sb, "    %s((\"end\"))\n", nodeID(n))

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		seen := make(map[int]bool)
		for _, i := range overlay.Visited {
			if i < 0 || i > n || seen[i] {
				continue
			}
			seen[i] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", nodeID(i))
		}
		if overlay.Current >= 0 && overlay.Current <= n {
			fmt.Fprintf(&sb, "    class %s current;\n", nodeID(overlay.Current))
		}
	}
	return sb.String()
}

func nodeID(i int) string {
	return fmt.Sprintf("e%d", i)
}

func moveLabel(m domain.StepTemplate) string {
	actor := string(m.Actor)
	if actor == "" {
		actor = "self"
	}
	s := fmt.Sprintf("%s moves %s<br/>%s → %s", actor, orAny(string(m.MobileAgent)), orAny(string(m.Origin)), orAny(string(m.Destination)))
	if m.Timeout >= 0 {
		s += fmt.Sprintf("<br/>⏱️ %s%dms", m.TimeoutAnchor.Prefix(), m.Timeout)
	}
	return s
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
