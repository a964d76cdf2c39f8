package ports

import (
	"context"

	"github.com/aretw0/mobility/pkg/domain"
)

// Messenger delivers envelopes between agents: at-least-once, with no
// ordering guarantee between distinct requests.
type Messenger interface {
	// Send queues env for env.To.
	Send(ctx context.Context, env domain.Envelope) error

	// Subscribe opens the inbox of agent.
	Subscribe(ctx context.Context, agent domain.AgentID) (Inbox, error)
}

// Inbox buffers envelopes addressed to one agent until its next turn.
type Inbox interface {
	// Ready is signaled when envelopes may be pending.
	Ready() <-chan struct{}

	// Drain returns and clears the pending envelopes.
	Drain() []domain.Envelope

	Close() error
}
