package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/mobility"
	"github.com/aretw0/mobility/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an agent and its HTTP admin API",
	Long: `Starts the agent described by the configuration file, recovers its stored
facts, and serves the admin API until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if cmd.Flags().Changed("agent") {
			overrides["agent"], _ = cmd.Flags().GetString("agent")
		}
		if cmd.Flags().Changed("addr") {
			addr, _ := cmd.Flags().GetString("addr")
			overrides["http"] = map[string]any{"addr": addr}
		}
		cfg, err := loadConfig(cmd, overrides)
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

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           n.handler(logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		agentErr := make(chan error, 1)
		go func() { agentErr <- n.agent.Run(ctx) }()

		serverErr := make(chan error, 1)
		go func() {
			logger.Info("Admin API listening", "addr", srv.Addr)
			serverErr <- srv.ListenAndServe()
		}()

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(cmd.ErrOrStderr(), mobility.Version)
		}

		select {
		case err := <-serverErr:
			stop()
			<-agentErr
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case err := <-agentErr:
			srv.Close()
			return err
		case <-ctx.Done():
			logger.Info("Shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "err", err)
			srv.Close()
		}
		return <-agentErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("agent", "", "Override the configured agent id")
	serveCmd.Flags().String("addr", "", "Override the admin API address")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
