package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the CLI banner to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"              _    _ _ _ _         ", "#38bdf8"},
		{"  _ __  ___  | |__(_) (_) |_ _  _  ", "#22d3ee"},
		{" | '  \\/ _ \\ | '_ \\ | | |  _| || | ", "#2dd4bf"},
		{" |_|_|_\\___/ |_.__/_|_|_|\\__|\\_, | ", "#34d399"},
		{"                             |__/  ", "#4ade80"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  "+version).Faint())
	fmt.Fprintln(w)
}
