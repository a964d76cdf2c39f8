// Package simulate stands in for the components that actually relocate
// agents. Its Executor drives the steps and requests addressed to one
// agent through their lifecycle on a clock, without moving anything.
package simulate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
	"github.com/aretw0/mobility/pkg/registry"
)

// Executor executes the steps and requests targeted at its agent.
// Steps go PAUSED until their pause time, RUNNING for the move duration,
// then SUCCESS, or FAILURE for mobile agents configured to fail. A step
// still unfinished at its timeout time ends in TIMEOUT.
type Executor struct {
	self     domain.AgentID
	board    ports.Blackboard
	clock    ports.Clock
	duration int64
	failing  map[domain.AgentID]bool
	handlers *registry.Registry
	logger   *slog.Logger

	active map[domain.UID]*domain.Step
}

// Option configures an Executor.
type Option func(*Executor)

// WithMoveDuration sets how long a step stays RUNNING.
func WithMoveDuration(d time.Duration) Option {
	return func(e *Executor) {
		e.duration = d.Milliseconds()
	}
}

// WithFailures makes every move of the given mobile agents fail.
func WithFailures(mobile ...domain.AgentID) Option {
	return func(e *Executor) {
		for _, m := range mobile {
			e.failing[m] = true
		}
	}
}

// WithHandlers sets the request handlers. Defaults to registry.Defaults.
func WithHandlers(r *registry.Registry) Option {
	return func(e *Executor) {
		e.handlers = r
	}
}

// WithClock sets the time source.
func WithClock(clock ports.Clock) Option {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates the executor of agent self.
func NewExecutor(self domain.AgentID, board ports.Blackboard, opts ...Option) *Executor {
	e := &Executor{
		self:     self,
		board:    board,
		clock:    ports.SystemClock{},
		duration: 1000,
		failing:  make(map[domain.AgentID]bool),
		handlers: registry.Defaults(),
		logger:   logging.NewNop(),
		active:   make(map[domain.UID]*domain.Step),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("agent", string(self), "component", "executor")
	return e
}

// Active returns the number of steps being executed.
func (e *Executor) Active() int { return len(e.active) }

func (e *Executor) executes(s *domain.Step) bool {
	return s.Side != domain.SideSource && s.Options.Target == e.self
}

// HandleSteps picks up steps addressed to this agent.
func (e *Executor) HandleSteps(ctx context.Context, events []domain.StepEvent) error {
	for _, ev := range events {
		if !e.executes(ev.Step) {
			continue
		}
		switch ev.Op {
		case domain.OpAdd:
			if !ev.Step.Status().Done() {
				e.active[ev.Step.ID] = ev.Step
			}
		case domain.OpRemove:
			delete(e.active, ev.Step.ID)
		}
	}
	return nil
}

// HandleRequests completes requests addressed to this agent as soon as they appear.
func (e *Executor) HandleRequests(ctx context.Context, events []domain.RequestEvent) error {
	var errs []error
	for _, ev := range events {
		req := ev.Request
		if ev.Op != domain.OpAdd || req.Side == domain.SideSource || req.Target != e.self || req.Status().IsSet() {
			continue
		}
		code, detail, err := e.handlers.Handle(ctx, req)
		if err != nil {
			code, detail = domain.StatusFailure, err.Error()
		}
		if e.failing[req.Ticket.MobileAgent] {
			code, detail = domain.StatusFailure, "simulated failure"
		}
		req.SetStatus(code, detail)
		e.logger.Debug("request handled", "request", req.ID, "kind", string(req.Kind), "status", code.String())
		errs = append(errs, e.board.PublishChange(ctx, req))
	}
	return errors.Join(errs...)
}

// Tick advances every active step by at most one state.
func (e *Executor) Tick(ctx context.Context) error {
	now := e.clock.NowMillis()
	ids := make([]domain.UID, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	domain.SortUIDs(ids)

	var errs []error
	for _, id := range ids {
		step := e.active[id]
		next, ok := e.progress(step, now)
		if !ok {
			continue
		}
		step.SetStatus(next)
		if next.Done() {
			delete(e.active, id)
		}
		e.logger.Debug("step progressed", "step", step.ID, "state", next.State.String())
		if err := e.board.PublishChange(ctx, step); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Removed by its source since it was picked up.
				delete(e.active, id)
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) progress(step *domain.Step, now int64) (domain.StepStatus, bool) {
	st := step.Status()
	opts := step.Options
	timedOut := opts.TimeoutTime >= 0 && now >= opts.TimeoutTime

	switch st.State {
	case domain.StateUnseen:
		if opts.PauseTime > now && !timedOut {
			return domain.StepStatus{State: domain.StatePaused, StartTime: -1, EndTime: -1}, true
		}
		fallthrough
	case domain.StatePaused:
		if timedOut {
			return domain.StepStatus{State: domain.StateTimeout, StartTime: st.StartTime, EndTime: now, Result: "timed out before start"}, true
		}
		if opts.PauseTime > now {
			return st, false
		}
		return domain.StepStatus{State: domain.StateRunning, StartTime: now, EndTime: -1}, true
	case domain.StateRunning:
		if now-st.StartTime >= e.duration {
			if e.failing[opts.Ticket.MobileAgent] {
				return domain.StepStatus{State: domain.StateFailure, StartTime: st.StartTime, EndTime: now, Result: "simulated failure"}, true
			}
			return domain.StepStatus{State: domain.StateSuccess, StartTime: st.StartTime, EndTime: now, Result: "moved"}, true
		}
		if timedOut {
			return domain.StepStatus{State: domain.StateTimeout, StartTime: st.StartTime, EndTime: now, Result: "timed out"}, true
		}
	}
	return st, false
}
