package ports

import (
	"context"

	"github.com/aretw0/mobility/pkg/domain"
)

// Blackboard is the per-agent fact store.
//
// Publishing a fact queues a typed notification; consumers drain the queue
// once per turn. Facts are shared by pointer: the single turn goroutine is
// the only mutator, and it must publish a change after mutating one.
type Blackboard interface {
	PublishAdd(ctx context.Context, fact domain.Fact) error
	PublishChange(ctx context.Context, fact domain.Fact) error
	PublishRemove(ctx context.Context, fact domain.Fact) error

	// Get returns the fact with the given id or domain.ErrNotFound.
	Get(ctx context.Context, id domain.UID) (domain.Fact, error)

	Scripts(ctx context.Context) ([]*domain.Script, error)
	Procs(ctx context.Context) ([]*domain.Proc, error)
	Steps(ctx context.Context) ([]*domain.Step, error)
	Requests(ctx context.Context) ([]*domain.Request, error)

	// StepsByOwner returns the steps whose owner-correlation id is owner.
	StepsByOwner(ctx context.Context, owner domain.UID) ([]*domain.Step, error)

	// Ready is signaled when notifications may be pending.
	Ready() <-chan struct{}

	// Drain returns and clears the pending notifications.
	Drain() domain.Batch
}

// Rehydrator is implemented by blackboards backed by a FactRepository.
type Rehydrator interface {
	// Rehydrate loads every stored fact, queues an add notification for each
	// and returns their identifiers.
	Rehydrate(ctx context.Context) ([]domain.UID, error)
}

// IDIssuer issues unique identifiers for one agent.
type IDIssuer interface {
	Next() domain.UID
}
