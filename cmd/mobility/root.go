package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mobility",
	Short: "Mobility runs scripted agent relocations",
	Long: `Mobility hosts agents that run scripts of moves. Each move becomes a step
executed by the agent it names; steps addressed to other agents are
replicated to them and their status flows back.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Node configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Force JSON logs")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		overrides["log_level"] = lvl
	}
	if len(overrides) == 0 {
		return cfg, nil
	}
	return cfg.Merge(overrides)
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if forced, _ := cmd.Flags().GetBool("json"); forced {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.NewAuto(level)
}
