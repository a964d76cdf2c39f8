package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// ScriptMarkdown describes a compiled script as a markdown table.
func ScriptMarkdown(script *domain.Script) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Script %s\n\n", script.ID)
	fmt.Fprintf(&sb, "%d entries, %d moves.\n\n", script.Len(), script.Steps())
	sb.WriteString("| # | Line | Kind | Actor | Pause | Timeout | Mobile | Origin | Destination | Restart |\n")
	sb.WriteString("|---|------|------|-------|-------|---------|--------|--------|-------------|---------|\n")
	for i, e := range script.Entries() {
		switch e.Kind {
		case domain.EntryLabel:
			fmt.Fprintf(&sb, "| %d | %d | label `%s` | | | | | | | |\n", i, e.Line, e.Label)
		case domain.EntryGoto:
			fmt.Fprintf(&sb, "| %d | %d | goto `%s` → #%d | | | | | | | |\n", i, e.Line, e.Label, e.Target)
		default:
			m := e.Move
			fmt.Fprintf(&sb, "| %d | %d | move | %s | %s | %s | %s | %s | %s | %t |\n",
				i, e.Line, cell(string(m.Actor)), offset(m.PauseAnchor, m.Pause), offset(m.TimeoutAnchor, m.Timeout),
				cell(string(m.MobileAgent)), cell(string(m.Origin)), cell(string(m.Destination)), m.ForceRestart)
		}
	}
	return sb.String()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func offset(a domain.Anchor, ms int64) string {
	if ms < 0 {
		return "-"
	}
	return fmt.Sprintf("%s%dms", a.Prefix(), ms)
}
