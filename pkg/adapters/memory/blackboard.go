package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

// Blackboard implements ports.Blackboard in memory, optionally writing
// through to a ports.FactRepository.
//
// Facts are held by pointer. Notifications accumulate in an unbounded
// batch so publishing from inside a turn never blocks on the consumer.
type Blackboard struct {
	mu      sync.Mutex
	facts   map[domain.UID]domain.Fact
	pending domain.Batch
	ready   chan struct{}

	repo   ports.FactRepository
	logger *slog.Logger
}

// Option configures a Blackboard.
type Option func(*Blackboard)

// WithRepository persists every published fact to repo.
func WithRepository(repo ports.FactRepository) Option {
	return func(b *Blackboard) {
		b.repo = repo
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Blackboard) {
		b.logger = logger
	}
}

// NewBlackboard creates an empty fact store.
func NewBlackboard(opts ...Option) *Blackboard {
	b := &Blackboard{
		facts:  make(map[domain.UID]domain.Fact),
		ready:  make(chan struct{}, 1),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PublishAdd stores a new fact.
func (b *Blackboard) PublishAdd(ctx context.Context, f domain.Fact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.facts[f.FactID()]; ok {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, f.FactID())
	}
	if err := b.persist(ctx, f); err != nil {
		return err
	}
	b.facts[f.FactID()] = f
	b.queue(domain.OpAdd, f)
	return nil
}

// PublishChange records that a stored fact was mutated.
func (b *Blackboard) PublishChange(ctx context.Context, f domain.Fact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.facts[f.FactID()]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, f.FactID())
	}
	if err := b.persist(ctx, f); err != nil {
		return err
	}
	b.facts[f.FactID()] = f
	b.queue(domain.OpChange, f)
	return nil
}

// PublishRemove deletes a fact.
func (b *Blackboard) PublishRemove(ctx context.Context, f domain.Fact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.facts[f.FactID()]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, f.FactID())
	}
	if b.repo != nil {
		kind, err := domain.KindOf(stored)
		if err != nil {
			return err
		}
		if err := b.repo.Delete(ctx, kind, stored.FactID()); err != nil {
			return fmt.Errorf("delete %s: %w", stored.FactID(), err)
		}
	}
	delete(b.facts, f.FactID())
	b.queue(domain.OpRemove, stored)
	return nil
}

func (b *Blackboard) persist(ctx context.Context, f domain.Fact) error {
	if b.repo == nil {
		return nil
	}
	rec, err := EncodeFact(f)
	if err != nil {
		return err
	}
	if err := b.repo.Save(ctx, rec); err != nil {
		return fmt.Errorf("save %s: %w", f.FactID(), err)
	}
	return nil
}

// queue must be called with mu held.
func (b *Blackboard) queue(op domain.Op, f domain.Fact) {
	switch v := f.(type) {
	case *domain.Script:
		b.pending.Scripts = append(b.pending.Scripts, domain.ScriptEvent{Op: op, Script: v})
	case *domain.Proc:
		b.pending.Procs = append(b.pending.Procs, domain.ProcEvent{Op: op, Proc: v})
	case *domain.Step:
		b.pending.Steps = append(b.pending.Steps, domain.StepEvent{Op: op, Step: v})
	case *domain.Request:
		b.pending.Requests = append(b.pending.Requests, domain.RequestEvent{Op: op, Request: v})
	}
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Get returns a stored fact.
func (b *Blackboard) Get(ctx context.Context, id domain.UID) (domain.Fact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.facts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return f, nil
}

func collect[T domain.Fact](b *Blackboard, keep func(T) bool) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]domain.UID, 0, len(b.facts))
	for id, f := range b.facts {
		if v, ok := f.(T); ok && (keep == nil || keep(v)) {
			ids = append(ids, id)
		}
	}
	domain.SortUIDs(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.facts[id].(T))
	}
	return out
}

func (b *Blackboard) Scripts(ctx context.Context) ([]*domain.Script, error) {
	return collect[*domain.Script](b, nil), nil
}

func (b *Blackboard) Procs(ctx context.Context) ([]*domain.Proc, error) {
	return collect[*domain.Proc](b, nil), nil
}

func (b *Blackboard) Steps(ctx context.Context) ([]*domain.Step, error) {
	return collect[*domain.Step](b, nil), nil
}

func (b *Blackboard) Requests(ctx context.Context) ([]*domain.Request, error) {
	return collect[*domain.Request](b, nil), nil
}

// StepsByOwner returns the steps correlated to owner.
func (b *Blackboard) StepsByOwner(ctx context.Context, owner domain.UID) ([]*domain.Step, error) {
	return collect(b, func(s *domain.Step) bool { return s.Options.Owner == owner }), nil
}

// Ready is signaled whenever a notification is queued.
func (b *Blackboard) Ready() <-chan struct{} {
	return b.ready
}

// Drain returns and clears the pending notifications.
func (b *Blackboard) Drain() domain.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.pending
	b.pending = domain.Batch{}
	return batch
}

// Rehydrate loads every fact from the repository and queues an add
// notification for each, as if it had just been published. Facts already
// on the board are skipped. Records that fail to decode are logged and
// skipped so one corrupt entry cannot block the agent.
func (b *Blackboard) Rehydrate(ctx context.Context) ([]domain.UID, error) {
	if b.repo == nil {
		return nil, nil
	}

	var loaded []domain.UID
	for _, kind := range domain.FactKinds {
		recs, err := b.repo.List(ctx, kind)
		if err != nil {
			return loaded, fmt.Errorf("list %s: %w", kind, err)
		}
		for _, rec := range recs {
			f, err := DecodeFact(rec)
			if err != nil {
				b.logger.Error("skipping unreadable fact", "kind", string(rec.Kind), "id", rec.ID, "err", err)
				continue
			}
			b.mu.Lock()
			if _, ok := b.facts[f.FactID()]; !ok {
				b.facts[f.FactID()] = f
				b.queue(domain.OpAdd, f)
				loaded = append(loaded, f.FactID())
			}
			b.mu.Unlock()
		}
	}
	b.logger.Debug("rehydrated fact store", "facts", len(loaded))
	return loaded, nil
}
