package main

import (
	"os"
	"os/signal"
	"syscall"

	mcpAdapter "github.com/aretw0/mobility/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent's admin tools over the Model Context Protocol",
	Long: `Runs the configured agent and exposes its admin operations as MCP tools,
over stdio by default or over SSE with --sse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, map[string]any{})
		if err != nil {
			return err
		}
		logger := newLogger(cmd, cfg)

		n, err := buildNode(cfg, logger)
		if err != nil {
			return err
		}
		defer n.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go n.agent.Run(ctx)

		srv := mcpAdapter.NewServer(n.agent, logger)
		if addr, _ := cmd.Flags().GetString("sse"); addr != "" {
			baseURL, _ := cmd.Flags().GetString("base-url")
			return srv.ServeSSE(ctx, addr, baseURL)
		}
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("sse", "", "Serve over SSE on this address instead of stdio")
	mcpCmd.Flags().String("base-url", "http://localhost:8081", "Public base URL of the SSE server")
}
