package mobility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/mobility/internal/compiler"
	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/internal/replication"
	"github.com/aretw0/mobility/internal/runtime"
	"github.com/aretw0/mobility/pkg/adapters/memory"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ident"
	"github.com/aretw0/mobility/pkg/ports"
	"github.com/aretw0/mobility/pkg/turn"
)

// Observer receives the step and request notifications of every turn after
// the engine and the replicator. Executors plug in here.
type Observer interface {
	HandleSteps(ctx context.Context, events []domain.StepEvent) error
	HandleRequests(ctx context.Context, events []domain.RequestEvent) error
}

// Ticker is implemented by observers that make progress with time.
// Run calls Tick inside a turn on every tick interval.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Agent hosts the procs of one agent and relays its steps and requests to
// other agents. All mutations happen inside a turn, one at a time.
type Agent struct {
	id         domain.AgentID
	board      ports.Blackboard
	repo       ports.FactRepository
	messenger  ports.Messenger
	inbox      ports.Inbox
	ids        *ident.Issuer
	engine     *runtime.Engine
	replicator *replication.Replicator
	turns      *turn.Manager
	locker     ports.DistributedLocker
	clock      ports.Clock
	hooks      domain.LifecycleHooks
	observers  []Observer
	interval   time.Duration
	logger     *slog.Logger
	parser     *compiler.Parser
}

// Option defines a functional option for configuring the Agent.
type Option func(*Agent)

// WithBoard sets the fact store. Defaults to an in-memory blackboard.
func WithBoard(board ports.Blackboard) Option {
	return func(a *Agent) {
		a.board = board
	}
}

// WithRepository backs the default in-memory blackboard with repo, so the
// agent recovers its facts on Start.
func WithRepository(repo ports.FactRepository) Option {
	return func(a *Agent) {
		a.repo = repo
	}
}

// WithMessenger sets the transport to other agents. Without one the agent
// can only run local steps.
func WithMessenger(m ports.Messenger) Option {
	return func(a *Agent) {
		a.messenger = m
	}
}

// WithLocker makes every turn also hold a distributed lock on the agent,
// so two processes never host the same agent at once.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *Agent) {
		a.locker = locker
	}
}

// WithTurnManager shares a turn manager between agents of one process.
func WithTurnManager(m *turn.Manager) Option {
	return func(a *Agent) {
		a.turns = m
	}
}

// WithClock sets the time source used to resolve step times.
func WithClock(clock ports.Clock) Option {
	return func(a *Agent) {
		a.clock = clock
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Agent) {
		a.hooks = a.hooks.Merge(hooks)
	}
}

// WithObserver adds an observer of step and request notifications.
func WithObserver(o Observer) Option {
	return func(a *Agent) {
		a.observers = append(a.observers, o)
	}
}

// WithTickInterval sets how often Run ticks Ticker observers. Default 100ms.
func WithTickInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.interval = d
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// New creates the agent id.
func New(id domain.AgentID, opts ...Option) *Agent {
	a := &Agent{
		id:       id,
		clock:    ports.SystemClock{},
		interval: 100 * time.Millisecond,
		logger:   logging.NewNop(),
		parser:   compiler.NewParser(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("agent", string(id))

	if a.board == nil {
		boardOpts := []memory.Option{memory.WithLogger(a.logger)}
		if a.repo != nil {
			boardOpts = append(boardOpts, memory.WithRepository(a.repo))
		}
		a.board = memory.NewBlackboard(boardOpts...)
	}
	if a.messenger == nil {
		a.messenger = memory.NewBus()
	}
	if a.turns == nil {
		a.turns = turn.NewManager(turn.WithLocker(a.locker), turn.WithLogger(a.logger))
	}
	a.ids = ident.NewIssuer(id)
	a.engine = runtime.NewEngine(id, a.board, a.ids,
		runtime.WithLogger(a.logger),
		runtime.WithClock(a.clock),
		runtime.WithLifecycleHooks(a.hooks),
	)
	a.replicator = replication.NewReplicator(id, a.board, a.messenger, replication.DefaultRegistry(),
		replication.WithLogger(a.logger),
		replication.WithHooks(a.hooks),
	)
	return a
}

// ID returns the agent identifier.
func (a *Agent) ID() domain.AgentID { return a.id }

// Board returns the agent's fact store.
func (a *Agent) Board() ports.Blackboard { return a.board }

func (a *Agent) turnKey() string {
	return "agent:" + string(a.id)
}

// WithTurn runs fn while holding the agent's turn.
func (a *Agent) WithTurn(ctx context.Context, fn func(context.Context) error) error {
	return a.turns.WithTurn(ctx, a.turnKey(), fn)
}

// Start subscribes to the agent's inbox, reloads stored facts and re-sends
// the state of every replicated object so peers converge after a restart.
func (a *Agent) Start(ctx context.Context) error {
	inbox, err := a.messenger.Subscribe(ctx, a.id)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	a.inbox = inbox

	return a.WithTurn(ctx, func(ctx context.Context) error {
		if r, ok := a.board.(ports.Rehydrator); ok {
			ids, err := r.Rehydrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to rehydrate: %w", err)
			}
			for _, id := range ids {
				a.ids.Observe(id)
			}
			a.logger.Info("Rehydrated facts", "count", len(ids))
		}
		// The rehydrated facts must reach the engine before peers answer.
		if err := a.pump(ctx); err != nil {
			a.logger.Error("Rehydration turn failed", "err", err)
		}
		if err := a.replicator.Resync(ctx); err != nil {
			return fmt.Errorf("failed to resync: %w", err)
		}
		return a.pump(ctx)
	})
}

// Stop closes the inbox.
func (a *Agent) Stop() error {
	if a.inbox == nil {
		return nil
	}
	err := a.inbox.Close()
	a.inbox = nil
	return err
}

// Turn handles every pending envelope and notification.
func (a *Agent) Turn(ctx context.Context) error {
	return a.WithTurn(ctx, a.pump)
}

// Tick advances the Ticker observers and handles what they published.
func (a *Agent) Tick(ctx context.Context) error {
	return a.WithTurn(ctx, func(ctx context.Context) error {
		var errs []error
		for _, o := range a.observers {
			if t, ok := o.(Ticker); ok {
				errs = append(errs, t.Tick(ctx))
			}
		}
		errs = append(errs, a.pump(ctx))
		return errors.Join(errs...)
	})
}

// Run starts the agent and serves turns until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("Agent running")
	for {
		var err error
		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopped")
			return nil
		case <-a.board.Ready():
			err = a.Turn(ctx)
		case <-a.inbox.Ready():
			err = a.Turn(ctx)
		case <-ticker.C:
			err = a.Tick(ctx)
		}
		if err != nil && ctx.Err() == nil {
			a.logger.Error("Turn failed", "err", err)
		}
	}
}

func (a *Agent) pump(ctx context.Context) error {
	var errs []error
	if a.inbox != nil {
		for _, env := range a.inbox.Drain() {
			if err := a.replicator.Receive(ctx, env); err != nil {
				errs = append(errs, fmt.Errorf("envelope %s %s from %s: %w", env.Type, env.RequestID, env.From, err))
			}
		}
	}
	for batch := a.board.Drain(); !batch.Empty(); batch = a.board.Drain() {
		errs = append(errs, a.dispatch(ctx, batch))
	}
	return errors.Join(errs...)
}

func (a *Agent) dispatch(ctx context.Context, batch domain.Batch) error {
	var errs []error
	if len(batch.Scripts) > 0 {
		errs = append(errs, a.engine.HandleScripts(ctx, batch.Scripts))
	}
	if len(batch.Procs) > 0 {
		errs = append(errs, a.engine.HandleProcs(ctx, batch.Procs))
	}
	if len(batch.Steps) > 0 {
		errs = append(errs, a.engine.HandleSteps(ctx, batch.Steps))
		a.replicator.HandleSteps(ctx, batch.Steps)
		for _, o := range a.observers {
			errs = append(errs, o.HandleSteps(ctx, batch.Steps))
		}
	}
	if len(batch.Requests) > 0 {
		a.replicator.HandleRequests(ctx, batch.Requests)
		for _, o := range a.observers {
			errs = append(errs, o.HandleRequests(ctx, batch.Requests))
		}
	}
	return errors.Join(errs...)
}
