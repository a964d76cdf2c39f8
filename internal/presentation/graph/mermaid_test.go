package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/mobility/internal/compiler"
	"github.com/aretw0/mobility/internal/presentation/graph"
	"github.com/aretw0/mobility/pkg/domain"
)

func compile(t *testing.T, text string) *domain.Script {
	t.Helper()
	s, err := compiler.NewParser().Compile(domain.UID{Owner: "home", Seq: 1}, text)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return s
}

func TestGenerateMermaid(t *testing.T) {
	script := compile(t, "label top\nmove base, , +5, rover, a, b, false\ngoto top\n")

	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Shapes And Edges",
			contains: []string{
				"graph TD",
				"e0((\"top\"))",
				"e0 --> e1",
				"e1[\"base moves rover<br/>a → b<br/>⏱️ +5000ms\"]",
				"e1 --> e2",
				"e2{{\"goto top\"}}",
				"e2 -.-> e0",
				"e3((\"end\"))",
			},
			excludes: []string{"e2 --> e3", "classDef"},
		},
		{
			name:    "Overlay",
			overlay: &graph.Overlay{Visited: []int{0, 1, 1}, Current: 2},
			contains: []string{
				"class e0 visited;",
				"class e1 visited;",
				"class e2 current;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(script, tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q\n%s", want, out)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(out, bad) {
					t.Errorf("expected output not to contain %q\n%s", bad, out)
				}
			}
			if strings.Count(out, "class e1 visited;") > 1 {
				t.Errorf("visited entries must be deduplicated")
			}
		})
	}
}
