package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

// tracker is the in-memory cursor cache of one live proc.
// It can always be rebuilt from the fact store.
type tracker struct {
	step domain.UID
}

// Engine advances the procs hosted by one agent.
// It is driven from the agent's turn goroutine and is not safe for
// concurrent use.
type Engine struct {
	self    domain.AgentID
	board   ports.Blackboard
	ids     ports.IDIssuer
	clock   ports.Clock
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	tracked map[domain.UID]*tracker
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(clock ports.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// NewEngine creates the engine of agent self.
func NewEngine(self domain.AgentID, board ports.Blackboard, ids ports.IDIssuer, opts ...Option) *Engine {
	e := &Engine{
		self:    self,
		board:   board,
		ids:     ids,
		clock:   ports.SystemClock{},
		logger:  logging.NewNop(),
		tracked: make(map[domain.UID]*tracker),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("agent", string(self))
	return e
}

// Tracking reports whether the engine currently follows proc id.
func (e *Engine) Tracking(id domain.UID) bool {
	_, ok := e.tracked[id]
	return ok
}

// HandleScripts reacts to script notifications.
func (e *Engine) HandleScripts(ctx context.Context, events []domain.ScriptEvent) error {
	var errs []error
	for _, ev := range events {
		switch ev.Op {
		case domain.OpAdd:
			errs = append(errs, e.scriptAdded(ctx, ev.Script))
		case domain.OpRemove:
			errs = append(errs, e.scriptRemoved(ctx, ev.Script))
		}
	}
	return errors.Join(errs...)
}

// HandleProcs reacts to proc notifications.
func (e *Engine) HandleProcs(ctx context.Context, events []domain.ProcEvent) error {
	var errs []error
	for _, ev := range events {
		if ev.Proc.Agent != e.self {
			continue
		}
		switch ev.Op {
		case domain.OpAdd:
			errs = append(errs, e.procAdded(ctx, ev.Proc))
		case domain.OpRemove:
			errs = append(errs, e.procRemoved(ctx, ev.Proc))
		}
	}
	return errors.Join(errs...)
}

// HandleSteps reacts to step notifications. Target-side twins belong to
// other agents' procs and are ignored.
func (e *Engine) HandleSteps(ctx context.Context, events []domain.StepEvent) error {
	var errs []error
	for _, ev := range events {
		step := ev.Step
		if step.Side == domain.SideTarget {
			continue
		}
		tr, ok := e.tracked[step.Options.Owner]
		if !ok || tr.step != step.ID {
			continue
		}
		switch ev.Op {
		case domain.OpChange:
			errs = append(errs, e.stepChanged(ctx, step))
		case domain.OpRemove:
			e.logger.Warn("outstanding step removed externally", "proc", step.Options.Owner, "step", step.ID)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) procAdded(ctx context.Context, proc *domain.Proc) error {
	if !proc.Running() {
		return nil
	}
	e.tracked[proc.ID] = &tracker{}
	return e.advance(ctx, proc)
}

func (e *Engine) procRemoved(ctx context.Context, proc *domain.Proc) error {
	delete(e.tracked, proc.ID)
	return e.removeSteps(ctx, proc)
}

func (e *Engine) scriptAdded(ctx context.Context, script *domain.Script) error {
	procs, err := e.board.Procs(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range procs {
		if p.ScriptID == script.ID && e.Tracking(p.ID) && p.Running() {
			errs = append(errs, e.Advance(ctx, p, script))
		}
	}
	return errors.Join(errs...)
}

// scriptRemoved cascades: every proc running the script loses its
// outstanding step, then the proc itself is removed.
func (e *Engine) scriptRemoved(ctx context.Context, script *domain.Script) error {
	procs, err := e.board.Procs(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range procs {
		if p.ScriptID != script.ID || p.Agent != e.self {
			continue
		}
		delete(e.tracked, p.ID)
		if err := e.removeSteps(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.board.PublishRemove(ctx, p); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, err)
		}
		e.logger.Info("proc removed with its script", "proc", p.ID, "script", script.ID)
	}
	return errors.Join(errs...)
}

func (e *Engine) removeSteps(ctx context.Context, proc *domain.Proc) error {
	steps, err := e.board.StepsByOwner(ctx, proc.ID)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if s.Side == domain.SideTarget {
			continue
		}
		if err := e.board.PublishRemove(ctx, s); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("remove step %s of proc %s: %w", s.ID, proc.ID, err)
		}
	}
	return nil
}

func (e *Engine) stepChanged(ctx context.Context, step *domain.Step) error {
	f, err := e.board.Get(ctx, step.Options.Owner)
	if errors.Is(err, domain.ErrNotFound) {
		delete(e.tracked, step.Options.Owner)
		return nil
	}
	if err != nil {
		return err
	}
	proc, ok := f.(*domain.Proc)
	if !ok {
		return fmt.Errorf("step %s: owner %s is not a proc", step.ID, step.Options.Owner)
	}
	return e.advance(ctx, proc)
}

// advance loads the proc's script and calls Advance. A missing script is
// not an error: the proc waits for the script's add notification.
func (e *Engine) advance(ctx context.Context, proc *domain.Proc) error {
	f, err := e.board.Get(ctx, proc.ScriptID)
	script, ok := f.(*domain.Script)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !ok) {
		e.logger.Error("proc references unknown script; waiting for it", "proc", proc.ID, "script", proc.ScriptID)
		return nil
	}
	if err != nil {
		return err
	}
	return e.Advance(ctx, proc, script)
}

// Advance moves proc forward through script as far as the outstanding step
// allows. It creates at most one new step.
//
// proc is the board's own instance. When a publish fails the proc is
// restored to what it was on entry, so memory never runs ahead of storage.
func (e *Engine) Advance(ctx context.Context, proc *domain.Proc, script *domain.Script) (err error) {
	tr, ok := e.tracked[proc.ID]
	if !ok {
		tr = &tracker{}
		e.tracked[proc.ID] = tr
	}
	saved := *proc
	defer func() {
		if err != nil {
			*proc = saved
			e.tracked[proc.ID] = tr
		}
	}()
	now := e.clock.NowMillis()

	step, adopted, err := e.outstanding(ctx, proc, tr)
	if err != nil {
		return err
	}
	if step != nil {
		st := step.Status()
		if !st.Done() {
			if adopted {
				e.logger.Info("proc cursor restored from step", "proc", proc.ID, "step", step.ID, "index", proc.ScriptIndex)
				return e.board.PublishChange(ctx, proc)
			}
			return nil
		}
		e.emitStepFinished(ctx, step)

		if st.State != domain.StateSuccess {
			// Fail fast: the step stays for diagnostics, the proc ends.
			proc.EndTime = now
			delete(e.tracked, proc.ID)
			e.logger.Info("proc halted", "proc", proc.ID, "step", step.ID, "state", st.State.String(), "result", st.Result)
			if err := e.board.PublishChange(ctx, proc); err != nil {
				return err
			}
			e.emitProcFinished(ctx, proc, st.State)
			return nil
		}

		proc.PrevStepStart = st.StartTime
		proc.StepID = domain.UID{}
		tr.step = domain.UID{}
		if err := e.board.PublishRemove(ctx, step); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("retire step %s: %w", step.ID, err)
		}
	}

	index, jumps, err := Next(script, proc.ScriptIndex)
	if errors.Is(err, ErrJumpLimit) {
		e.logger.Warn("loop guard tripped; proc stalled", "proc", proc.ID, "index", proc.ScriptIndex, "jumps", jumps)
		if e.hooks.OnLoopGuard != nil {
			e.hooks.OnLoopGuard(ctx, proc)
		}
		if step != nil {
			return e.board.PublishChange(ctx, proc)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if index >= script.Len() {
		proc.EndTime = now
		proc.ScriptIndex = script.Len()
		proc.StepID = domain.UID{}
		delete(e.tracked, proc.ID)
		e.logger.Info("proc completed", "proc", proc.ID, "moves", proc.MoveCount)
		if err := e.board.PublishChange(ctx, proc); err != nil {
			return err
		}
		e.emitProcFinished(ctx, proc, domain.StateSuccess)
		return nil
	}

	opts := ResolveOptions(script.Entry(index).Move, proc, now)
	id := e.ids.Next()
	opts.Ticket.ID = id.String()
	opts.Index = index
	opts.Move = proc.MoveCount + 1
	next := domain.NewStep(id, opts)
	if err := e.board.PublishAdd(ctx, next); err != nil {
		return fmt.Errorf("create step for proc %s: %w", proc.ID, err)
	}

	proc.StepID = id
	proc.MoveCount++
	proc.ScriptIndex = index
	tr.step = id
	e.logger.Debug("step created", "proc", proc.ID, "step", id, "index", index, "target", string(opts.Target), "side", next.Side.String())
	if err := e.board.PublishChange(ctx, proc); err != nil {
		return err
	}
	if e.hooks.OnStepCreated != nil {
		e.hooks.OnStepCreated(ctx, next)
	}
	return nil
}

// outstanding finds the proc's current step: first by the cached or
// recorded id, then by owner correlation, which is how a restarted agent
// finds steps created before it went down.
//
// A step other than the one the proc records was created by a turn whose
// proc save never landed. The proc adopts it and takes its cursor from the
// step; adopted reports that proc changed and must be published.
func (e *Engine) outstanding(ctx context.Context, proc *domain.Proc, tr *tracker) (step *domain.Step, adopted bool, err error) {
	id := tr.step
	if id.IsZero() {
		id = proc.StepID
	}
	if !id.IsZero() {
		f, err := e.board.Get(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
		if s, ok := f.(*domain.Step); ok && err == nil {
			step = s
		}
	}

	if step == nil {
		steps, err := e.board.StepsByOwner(ctx, proc.ID)
		if err != nil {
			return nil, false, err
		}
		for _, s := range steps {
			if s.Side != domain.SideTarget {
				step = s
			}
		}
	}
	if step == nil {
		return nil, false, nil
	}

	tr.step = step.ID
	if step.ID == proc.StepID {
		return step, false, nil
	}
	proc.StepID = step.ID
	if step.Options.Move > 0 {
		proc.ScriptIndex = step.Options.Index
		proc.MoveCount = step.Options.Move
	}
	return step, true, nil
}

func (e *Engine) emitStepFinished(ctx context.Context, step *domain.Step) {
	if e.hooks.OnStepFinished != nil {
		e.hooks.OnStepFinished(ctx, step)
	}
}

func (e *Engine) emitProcFinished(ctx context.Context, proc *domain.Proc, state domain.StepState) {
	if e.hooks.OnProcFinished != nil {
		e.hooks.OnProcFinished(ctx, proc, state)
	}
}
