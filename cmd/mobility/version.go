package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/mobility"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mobility",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mobility version %s\n", strings.TrimSpace(mobility.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
