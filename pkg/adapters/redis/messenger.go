package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/pkg/adapters/memory"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Messenger implements ports.Messenger on Redis lists: one list per agent,
// RPUSH to send and BLPOP to receive. Envelopes survive until popped, so an
// agent that restarts picks up what was sent while it was down.
type Messenger struct {
	client *backend.Client
	prefix string
	block  time.Duration
	logger *slog.Logger
}

type MessengerOption func(*Messenger)

// WithMessengerLogger sets the logger of the receive loop.
func WithMessengerLogger(logger *slog.Logger) MessengerOption {
	return func(m *Messenger) {
		m.logger = logger
	}
}

// WithBlockTimeout bounds each BLPOP so Close is noticed promptly.
func WithBlockTimeout(d time.Duration) MessengerOption {
	return func(m *Messenger) {
		m.block = d
	}
}

// NewMessenger creates a Redis-backed messenger.
func NewMessenger(client *backend.Client, prefix string, opts ...MessengerOption) *Messenger {
	m := &Messenger{
		client: client,
		prefix: prefix,
		block:  time.Second,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Messenger) inboxKey(agent domain.AgentID) string {
	return m.prefix + "inbox:" + string(agent)
}

// Send appends env to the recipient's list.
func (m *Messenger) Send(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := m.client.RPush(ctx, m.inboxKey(env.To), data).Err(); err != nil {
		return fmt.Errorf("failed to push envelope: %w", err)
	}
	return nil
}

// Subscribe starts a receive loop feeding a mailbox until the inbox is
// closed or ctx ends.
func (m *Messenger) Subscribe(ctx context.Context, agent domain.AgentID) (ports.Inbox, error) {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	in := &inbox{
		Mailbox: memory.NewMailbox(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go m.receive(loopCtx, agent, in)
	return in, nil
}

func (m *Messenger) receive(ctx context.Context, agent domain.AgentID, in *inbox) {
	defer close(in.done)
	key := m.inboxKey(agent)
	for ctx.Err() == nil {
		res, err := m.client.BLPop(ctx, m.block, key).Result()
		if errors.Is(err, backend.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("inbox receive failed", "agent", string(agent), "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.block):
			}
			continue
		}
		// res is [key, value].
		var env domain.Envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			m.logger.Error("dropping malformed envelope", "agent", string(agent), "err", err)
			continue
		}
		in.Put(env)
	}
}

type inbox struct {
	*memory.Mailbox
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (i *inbox) Close() error {
	i.once.Do(func() {
		i.cancel()
		<-i.done
		_ = i.Mailbox.Close()
	})
	return nil
}
