package main

import (
	"fmt"
	"os"

	"github.com/aretw0/mobility/internal/compiler"
	"github.com/aretw0/mobility/internal/presentation/graph"
	"github.com/aretw0/mobility/internal/presentation/tui"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse <script-file>",
	Short: "Validate a script and print its compiled entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		script, err := compiler.NewParser().Compile(domain.UID{Owner: "local", Seq: 1}, string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		if mermaid, _ := cmd.Flags().GetBool("mermaid"); mermaid {
			fmt.Fprint(out, graph.GenerateMermaid(script, nil))
			return nil
		}
		md := tui.ScriptMarkdown(script)
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Fprint(out, md)
			return nil
		}
		rendered, err := tui.NewRenderer()(md)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().Bool("mermaid", false, "Print a Mermaid flowchart instead of a table")
	parseCmd.Flags().Bool("raw", false, "Print markdown without terminal styling")
}
