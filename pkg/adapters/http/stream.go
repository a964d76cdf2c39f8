package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/pkg/domain"
)

// Event is one fact notification pushed to SSE clients.
type Event struct {
	Kind    domain.FactKind `json:"kind"`
	Op      string          `json:"op"`
	Step    *domain.Step    `json:"step,omitempty"`
	Request *domain.Request `json:"request,omitempty"`
}

// StreamManager fans step and request notifications out to SSE clients.
// It is registered as an agent observer; slow clients lose messages
// rather than stall the agent.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a client. The returned func unsubscribes it.
func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 32)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Broadcast sends msg to every client.
func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message")
		}
	}
}

// Subscribers returns the number of connected clients.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

func (sm *StreamManager) HandleSteps(ctx context.Context, events []domain.StepEvent) error {
	for _, ev := range events {
		sm.publish(Event{Kind: domain.FactStep, Op: ev.Op.String(), Step: ev.Step})
	}
	return nil
}

func (sm *StreamManager) HandleRequests(ctx context.Context, events []domain.RequestEvent) error {
	for _, ev := range events {
		sm.publish(Event{Kind: domain.FactRequest, Op: ev.Op.String(), Request: ev.Request})
	}
	return nil
}

func (sm *StreamManager) publish(ev Event) {
	if sm.Subscribers() == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("SSE: encode event", "err", err)
		return
	}
	sm.Broadcast(string(data))
}
