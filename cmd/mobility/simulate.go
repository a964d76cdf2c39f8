package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/mobility"
	"github.com/aretw0/mobility/internal/presentation/tui"
	"github.com/aretw0/mobility/pkg/adapters/memory"
	"github.com/aretw0/mobility/pkg/adapters/simulate"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

// progress prints step transitions as they are published.
type progress struct {
	mu      *sync.Mutex
	out     io.Writer
	profile termenv.Profile
	agent   domain.AgentID
}

func (p progress) HandleSteps(ctx context.Context, events []domain.StepEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range events {
		// Each agent reports the steps it executes.
		if ev.Op == domain.OpRemove || ev.Step.Side == domain.SideSource {
			continue
		}
		fmt.Fprintln(p.out, tui.StepLine(p.profile, p.agent, ev.Step))
	}
	return nil
}

func (p progress) HandleRequests(ctx context.Context, events []domain.RequestEvent) error {
	return nil
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <script-file>",
	Short: "Run a script across in-process agents",
	Long: `Starts one in-process agent per --agents entry, connected by an in-memory
bus, runs the script on the --host agent and prints every step transition.
Moves are simulated; nothing is relocated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		names, _ := cmd.Flags().GetStringSlice("agents")
		host, _ := cmd.Flags().GetString("host")
		moveDuration, _ := cmd.Flags().GetDuration("move-duration")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		failing, _ := cmd.Flags().GetStringSlice("fail")
		duplicate, _ := cmd.Flags().GetBool("duplicate")

		if host == "" && len(names) > 0 {
			host = names[0]
		}
		if !contains(names, host) {
			names = append(names, host)
		}

		cfg, err := loadConfig(cmd, map[string]any{})
		if err != nil {
			return err
		}
		logger := newLogger(cmd, cfg)

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		out := cmd.OutOrStdout()
		profile := termenv.NewOutput(out).Profile
		var mu sync.Mutex

		failures := make([]domain.AgentID, 0, len(failing))
		for _, f := range failing {
			failures = append(failures, domain.AgentID(f))
		}

		type result struct {
			proc  *domain.Proc
			state domain.StepState
		}
		finished := make(chan result, 1)

		bus := memory.NewBus(memory.WithDuplication(duplicate))
		agents := make(map[string]*mobility.Agent, len(names))
		var wg sync.WaitGroup
		for _, name := range names {
			id := domain.AgentID(name)
			board := memory.NewBlackboard(memory.WithLogger(logger))
			opts := []mobility.Option{
				mobility.WithBoard(board),
				mobility.WithMessenger(bus),
				mobility.WithLogger(logger),
				mobility.WithTickInterval(10 * time.Millisecond),
				mobility.WithObserver(simulate.NewExecutor(id, board,
					simulate.WithMoveDuration(moveDuration),
					simulate.WithFailures(failures...),
					simulate.WithLogger(logger),
				)),
				mobility.WithObserver(progress{mu: &mu, out: out, profile: profile, agent: id}),
			}
			if name == host {
				opts = append(opts, mobility.WithLifecycleHooks(domain.LifecycleHooks{
					OnProcFinished: func(_ context.Context, p *domain.Proc, s domain.StepState) {
						select {
						case finished <- result{proc: p.Clone(), state: s}:
						default:
						}
					},
				}))
			}
			agent := mobility.New(id, opts...)
			agents[name] = agent
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := agent.Run(ctx); err != nil {
					logger.Error("Agent failed", "agent", string(id), "err", err)
				}
			}()
		}
		defer wg.Wait()
		defer cancel()

		script, err := agents[host].CreateScript(ctx, string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if _, err := agents[host].CreateProc(ctx, script.ID); err != nil {
			return err
		}

		select {
		case res := <-finished:
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(out, tui.ProcLine(profile, res.proc, script))
			if res.state != domain.StateSuccess {
				return fmt.Errorf("proc %s ended with %s", res.proc.ID, res.state)
			}
			fmt.Fprintf(out, "%d envelopes exchanged between %s\n", bus.Sent(), strings.Join(names, ", "))
			return nil
		case <-ctx.Done():
			return fmt.Errorf("simulation did not finish within %s", timeout)
		}
	},
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringSlice("agents", []string{"base"}, "Agents to start")
	simulateCmd.Flags().String("host", "", "Agent running the script (default: first agent)")
	simulateCmd.Flags().Duration("move-duration", 200*time.Millisecond, "Simulated duration of every move")
	simulateCmd.Flags().Duration("timeout", time.Minute, "Give up after this long")
	simulateCmd.Flags().StringSlice("fail", nil, "Mobile agents whose moves fail")
	simulateCmd.Flags().Bool("duplicate", false, "Deliver every envelope twice")
}
