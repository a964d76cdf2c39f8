package memory

import (
	"sync"

	"github.com/aretw0/mobility/pkg/domain"
)

// Mailbox is an unbounded envelope queue implementing ports.Inbox.
// Transports that receive on their own goroutine feed one with Put.
type Mailbox struct {
	mu     sync.Mutex
	queue  []domain.Envelope
	ready  chan struct{}
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Put enqueues env. It is a no-op on a closed mailbox.
func (m *Mailbox) Put(env domain.Envelope) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, env)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

func (m *Mailbox) Drain() []domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
	return nil
}
