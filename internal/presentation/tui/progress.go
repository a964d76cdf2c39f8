package tui

import (
	"fmt"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/muesli/termenv"
)

var stateColors = map[domain.StepState]string{
	domain.StateUnseen:  "#94a3b8",
	domain.StatePaused:  "#facc15",
	domain.StateRunning: "#38bdf8",
	domain.StateSuccess: "#4ade80",
	domain.StateFailure: "#f87171",
	domain.StateTimeout: "#fb923c",
}

// StepLine formats one step's progress for the terminal.
func StepLine(p termenv.Profile, agent domain.AgentID, step *domain.Step) string {
	st := step.Status()
	state := p.String(fmt.Sprintf("%-8s", st.State)).Foreground(p.Color(stateColors[st.State]))
	if st.State.IsTerminal() {
		state = state.Bold()
	}
	line := fmt.Sprintf("[%s] %s %s %s -> %s (%s)", agent, state, step.ID, step.Options.Source, step.Options.Target, step.Options.Ticket)
	if st.Result != "" {
		line += ": " + st.Result
	}
	return line
}

// ProcLine formats a proc summary.
func ProcLine(p termenv.Profile, proc *domain.Proc, script *domain.Script) string {
	status := p.String("running").Foreground(p.Color(stateColors[domain.StateRunning]))
	if !proc.Running() {
		status = p.String("finished").Foreground(p.Color(stateColors[domain.StateSuccess])).Bold()
	}
	total := 0
	if script != nil {
		total = script.Steps()
	}
	return fmt.Sprintf("proc %s on %s: %s, %d/%d moves", proc.ID, proc.Agent, status, proc.MoveCount, total)
}
