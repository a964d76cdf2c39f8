package memory

import (
	"context"
	"sync"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

// Bus implements ports.Messenger between agents of the same process.
// Envelopes sent to an agent before it subscribes are kept for it.
type Bus struct {
	mu        sync.Mutex
	boxes     map[domain.AgentID]*Mailbox
	duplicate bool
	sent      int
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithDuplication delivers every envelope twice. At-least-once consumers
// must converge regardless.
func WithDuplication(enabled bool) BusOption {
	return func(b *Bus) {
		b.duplicate = enabled
	}
}

// NewBus creates an in-process message bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{boxes: make(map[domain.AgentID]*Mailbox)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) box(agent domain.AgentID) *Mailbox {
	box, ok := b.boxes[agent]
	if !ok {
		box = NewMailbox()
		b.boxes[agent] = box
	}
	return box
}

// Send delivers a private copy of env to env.To.
func (b *Bus) Send(ctx context.Context, env domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env.Payload = append([]byte(nil), env.Payload...)

	b.mu.Lock()
	box := b.box(env.To)
	b.sent++
	b.mu.Unlock()

	box.Put(env)
	if b.duplicate {
		box.Put(env)
	}
	return nil
}

// Subscribe returns the inbox of agent. Subscribing twice returns the
// same inbox.
func (b *Bus) Subscribe(ctx context.Context, agent domain.AgentID) (ports.Inbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.box(agent), nil
}

// Sent returns the number of envelopes accepted so far, duplicates excluded.
func (b *Bus) Sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}
