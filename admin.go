package mobility

import (
	"context"
	"fmt"

	"github.com/aretw0/mobility/pkg/domain"
)

// Admin is the administrative surface of an agent, served over HTTP and MCP.
type Admin interface {
	Scripts(ctx context.Context) ([]*domain.Script, error)
	Procs(ctx context.Context) ([]*domain.Proc, error)
	Steps(ctx context.Context) ([]*domain.Step, error)
	Step(ctx context.Context, id domain.UID) (*domain.Step, error)
	Requests(ctx context.Context) ([]*domain.Request, error)
	CreateScript(ctx context.Context, text string) (*domain.Script, error)
	CreateProc(ctx context.Context, scriptID domain.UID) (*domain.Proc, error)
	CreateRequest(ctx context.Context, kind domain.RequestKind, target domain.AgentID, ticket domain.Ticket) (*domain.Request, error)
	RemoveScript(ctx context.Context, id domain.UID) error
	RemoveProc(ctx context.Context, id domain.UID) error
	RemoveRequest(ctx context.Context, id domain.UID) error
}

var _ Admin = (*Agent)(nil)

// Scripts returns every script, ordered by id.
func (a *Agent) Scripts(ctx context.Context) ([]*domain.Script, error) {
	out := []*domain.Script{}
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		scripts, err := a.board.Scripts(ctx)
		out = append(out, scripts...)
		return err
	})
	return out, err
}

// Procs returns a snapshot of every proc, ordered by id.
func (a *Agent) Procs(ctx context.Context) ([]*domain.Proc, error) {
	out := []*domain.Proc{}
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		procs, err := a.board.Procs(ctx)
		for _, p := range procs {
			out = append(out, p.Clone())
		}
		return err
	})
	return out, err
}

// Steps returns a snapshot of every step, ordered by id.
func (a *Agent) Steps(ctx context.Context) ([]*domain.Step, error) {
	out := []*domain.Step{}
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		steps, err := a.board.Steps(ctx)
		for _, s := range steps {
			out = append(out, s.Clone())
		}
		return err
	})
	return out, err
}

// Step returns a snapshot of one step.
func (a *Agent) Step(ctx context.Context, id domain.UID) (*domain.Step, error) {
	var out *domain.Step
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		step, err := a.getStep(ctx, id)
		if err == nil {
			out = step.Clone()
		}
		return err
	})
	return out, err
}

// Requests returns a snapshot of every request, ordered by id.
func (a *Agent) Requests(ctx context.Context) ([]*domain.Request, error) {
	out := []*domain.Request{}
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		reqs, err := a.board.Requests(ctx)
		for _, r := range reqs {
			out = append(out, r.Clone())
		}
		return err
	})
	return out, err
}

// CreateScript compiles text and publishes the script. Parse errors are
// returned as *compiler.ParseError and nothing is published.
func (a *Agent) CreateScript(ctx context.Context, text string) (*domain.Script, error) {
	var out *domain.Script
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		script, err := a.parser.Compile(a.ids.Next(), text)
		if err != nil {
			return err
		}
		if err := a.board.PublishAdd(ctx, script); err != nil {
			return err
		}
		a.logger.Info("Script created", "script", script.ID, "entries", script.Len())
		out = script
		return nil
	})
	return out, err
}

// CreateProc starts running a script on this agent.
func (a *Agent) CreateProc(ctx context.Context, scriptID domain.UID) (*domain.Proc, error) {
	var out *domain.Proc
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		f, err := a.board.Get(ctx, scriptID)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrScriptNotFound, scriptID)
		}
		if _, ok := f.(*domain.Script); !ok {
			return fmt.Errorf("%w: %s is not a script", domain.ErrScriptNotFound, scriptID)
		}
		proc := domain.NewProc(a.ids.Next(), a.id, scriptID, a.clock.NowMillis())
		if err := a.board.PublishAdd(ctx, proc); err != nil {
			return err
		}
		a.logger.Info("Proc created", "proc", proc.ID, "script", scriptID)
		out = proc.Clone()
		return nil
	})
	return out, err
}

// CreateRequest publishes a one-shot request. An empty target defaults to
// the ticket's mobile agent.
func (a *Agent) CreateRequest(ctx context.Context, kind domain.RequestKind, target domain.AgentID, ticket domain.Ticket) (*domain.Request, error) {
	var out *domain.Request
	err := a.WithTurn(ctx, func(ctx context.Context) error {
		req, err := domain.NewRequest(a.ids.Next(), domain.UID{}, kind, a.id, target, ticket)
		if err != nil {
			return err
		}
		if err := a.board.PublishAdd(ctx, req); err != nil {
			return err
		}
		out = req.Clone()
		return nil
	})
	return out, err
}

// RemoveScript removes a script. Its procs and their steps follow.
func (a *Agent) RemoveScript(ctx context.Context, id domain.UID) error {
	return a.remove(ctx, id, domain.FactScript)
}

// RemoveProc removes a proc and its outstanding step.
func (a *Agent) RemoveProc(ctx context.Context, id domain.UID) error {
	return a.remove(ctx, id, domain.FactProc)
}

// RemoveRequest withdraws a request; its remote twin is removed as well.
func (a *Agent) RemoveRequest(ctx context.Context, id domain.UID) error {
	return a.remove(ctx, id, domain.FactRequest)
}

func (a *Agent) remove(ctx context.Context, id domain.UID, kind domain.FactKind) error {
	return a.WithTurn(ctx, func(ctx context.Context) error {
		f, err := a.board.Get(ctx, id)
		if err != nil {
			return err
		}
		if k, _ := domain.KindOf(f); k != kind {
			return fmt.Errorf("%w: %s is not a %s", domain.ErrNotFound, id, kind)
		}
		return a.board.PublishRemove(ctx, f)
	})
}

func (a *Agent) getStep(ctx context.Context, id domain.UID) (*domain.Step, error) {
	f, err := a.board.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	step, ok := f.(*domain.Step)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a step", domain.ErrNotFound, id)
	}
	return step, nil
}
