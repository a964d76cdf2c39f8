package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultTombstones is how many withdrawn request ids a replicator
// remembers.
const DefaultTombstones = 4096

// Replicator runs the protocol for one agent. It reacts to fact store
// notifications for outgoing traffic and to Receive for incoming traffic.
// It is driven from the agent's turn goroutine and is not safe for
// concurrent use.
type Replicator struct {
	self      domain.AgentID
	board     ports.Blackboard
	messenger ports.Messenger
	registry  *Registry
	logger    *slog.Logger
	hooks     domain.LifecycleHooks

	// removed remembers recently withdrawn requests so a late content
	// re-delivery does not resurrect the twin. Older or pre-restart ids are
	// caught by the source, which withdraws twins it no longer knows.
	removed    *lru.Cache
	tombstones int
}

// Option configures a Replicator.
type Option func(*Replicator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Replicator) {
		r.logger = logger
	}
}

// WithHooks sets lifecycle hooks; only OnRelay is used.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Replicator) {
		r.hooks = hooks
	}
}

// WithTombstones bounds the withdrawn request ids kept in memory.
func WithTombstones(n int) Option {
	return func(r *Replicator) {
		r.tombstones = n
	}
}

// NewReplicator creates the replicator of agent self.
func NewReplicator(self domain.AgentID, board ports.Blackboard, messenger ports.Messenger, registry *Registry, opts ...Option) *Replicator {
	r := &Replicator{
		self:      self,
		board:     board,
		messenger: messenger,
		registry:  registry,
		logger:     logging.NewNop(),
		tombstones: DefaultTombstones,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tombstones <= 0 {
		r.tombstones = DefaultTombstones
	}
	// lru.New only fails on a non-positive size.
	r.removed, _ = lru.New(r.tombstones)
	r.logger = r.logger.With("agent", string(self))
	return r
}

// HandleSteps reacts to step notifications.
func (r *Replicator) HandleSteps(ctx context.Context, events []domain.StepEvent) {
	for _, ev := range events {
		r.handle(ctx, ev.Op, ev.Step)
	}
}

// HandleRequests reacts to request notifications.
func (r *Replicator) HandleRequests(ctx context.Context, events []domain.RequestEvent) {
	for _, ev := range events {
		r.handle(ctx, ev.Op, ev.Request)
	}
}

func (r *Replicator) handle(ctx context.Context, op domain.Op, fact domain.Fact) {
	if src, ok := AsSource(fact); ok {
		switch op {
		case domain.OpAdd:
			r.sendContent(ctx, src)
		case domain.OpRemove:
			r.sendRemove(ctx, src)
		}
		return
	}
	if tgt, ok := AsTarget(fact); ok && op != domain.OpRemove {
		r.sendResponse(ctx, tgt)
	}
}

// Resync re-sends the content of every live Source and the response of
// every answered Target. Used after a restart; re-delivery is harmless.
func (r *Replicator) Resync(ctx context.Context) error {
	steps, err := r.board.Steps(ctx)
	if err != nil {
		return fmt.Errorf("resync steps: %w", err)
	}
	requests, err := r.board.Requests(ctx)
	if err != nil {
		return fmt.Errorf("resync requests: %w", err)
	}
	facts := make([]domain.Fact, 0, len(steps)+len(requests))
	for _, s := range steps {
		facts = append(facts, s)
	}
	for _, q := range requests {
		facts = append(facts, q)
	}
	for _, f := range facts {
		if src, ok := AsSource(f); ok {
			r.sendContent(ctx, src)
		} else if tgt, ok := AsTarget(f); ok {
			r.sendResponse(ctx, tgt)
		}
	}
	return nil
}

// Receive applies one inbound envelope.
func (r *Replicator) Receive(ctx context.Context, env domain.Envelope) error {
	r.emit(ctx, "in", env)
	switch env.Type {
	case domain.EnvelopeContent:
		return r.receiveContent(ctx, env)
	case domain.EnvelopeResponse:
		return r.receiveResponse(ctx, env)
	case domain.EnvelopeRemove:
		return r.receiveRemove(ctx, env)
	default:
		return fmt.Errorf("unknown envelope type %q", env.Type)
	}
}

func (r *Replicator) receiveContent(ctx context.Context, env domain.Envelope) error {
	if r.removed.Contains(env.RequestID) {
		r.logger.Debug("dropping content for withdrawn request", "request", env.RequestID)
		return nil
	}

	var tgt Target
	existing, err := r.board.Get(ctx, env.RequestID)
	switch {
	case err == nil:
		var ok bool
		tgt, ok = AsTarget(existing)
		if !ok {
			return fmt.Errorf("content for %s: id already used by a non-twin fact", env.RequestID)
		}
		change, err := tgt.ApplyContent(env.Payload)
		if err != nil {
			return err
		}
		if change == Changed {
			if err := r.board.PublishChange(ctx, tgt.Fact()); err != nil {
				return err
			}
		}
	case errors.Is(err, domain.ErrNotFound):
		factory, err := r.registry.Lookup(env.RelayKind)
		if err != nil {
			return err
		}
		tgt, err = factory(env.RequestID, env.From, env.Payload)
		if err != nil {
			return err
		}
		if err := r.board.PublishAdd(ctx, tgt.Fact()); err != nil {
			return fmt.Errorf("materialize %s: %w", env.RequestID, err)
		}
		r.logger.Debug("materialized twin", "request", env.RequestID, "kind", env.RelayKind, "from", string(env.From))
	default:
		return err
	}

	// Answer every delivery so a source that lost our response converges.
	r.sendResponse(ctx, tgt)
	return nil
}

func (r *Replicator) receiveResponse(ctx context.Context, env domain.Envelope) error {
	fact, err := r.board.Get(ctx, env.RequestID)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Debug("response for unknown request", "request", env.RequestID)
		if env.RequestID.Owner == r.self && env.From != r.self {
			// Ours and gone: the sender holds a twin that outlived its source.
			r.send(ctx, domain.Envelope{
				Type:      domain.EnvelopeRemove,
				RelayKind: env.RelayKind,
				RequestID: env.RequestID,
				From:      r.self,
				To:        env.From,
			})
		}
		return nil
	}
	if err != nil {
		return err
	}
	src, ok := AsSource(fact)
	if !ok {
		return fmt.Errorf("response for %s: not a source", env.RequestID)
	}
	change, err := src.ApplyResponse(env.From, env.Payload)
	if err != nil {
		return err
	}
	if change == Changed {
		return r.board.PublishChange(ctx, fact)
	}
	return nil
}

// receiveRemove withdraws a twin. Only the agent that issued the request
// may withdraw it; ids are owner-scoped, so that holds whether or not the
// twin has been materialized yet.
func (r *Replicator) receiveRemove(ctx context.Context, env domain.Envelope) error {
	if env.RequestID.Owner != env.From {
		return fmt.Errorf("remove for %s from %s: not its source", env.RequestID, env.From)
	}
	fact, err := r.board.Get(ctx, env.RequestID)
	if errors.Is(err, domain.ErrNotFound) {
		r.removed.Add(env.RequestID, struct{}{})
		return nil
	}
	if err != nil {
		return err
	}
	tgt, ok := AsTarget(fact)
	if !ok || tgt.SourceAgent() != env.From {
		return fmt.Errorf("remove for %s from %s: not its twin", env.RequestID, env.From)
	}
	if err := r.board.PublishRemove(ctx, fact); err != nil {
		return err
	}
	r.removed.Add(env.RequestID, struct{}{})
	return nil
}

func (r *Replicator) sendContent(ctx context.Context, src Source) {
	content, err := src.Content()
	if err != nil {
		r.logger.Error("encode content", "request", src.RequestID(), "err", err)
		return
	}
	for _, target := range src.Targets() {
		if target == r.self {
			continue
		}
		r.send(ctx, domain.Envelope{
			Type:      domain.EnvelopeContent,
			RelayKind: src.RelayKind(),
			RequestID: src.RequestID(),
			From:      r.self,
			To:        target,
			Payload:   content,
		})
	}
}

func (r *Replicator) sendRemove(ctx context.Context, src Source) {
	for _, target := range src.Targets() {
		if target == r.self {
			continue
		}
		r.send(ctx, domain.Envelope{
			Type:      domain.EnvelopeRemove,
			RelayKind: src.RelayKind(),
			RequestID: src.RequestID(),
			From:      r.self,
			To:        target,
		})
	}
}

func (r *Replicator) sendResponse(ctx context.Context, tgt Target) {
	resp := tgt.Response()
	if resp == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("encode response", "request", tgt.RequestID(), "err", err)
		return
	}
	r.send(ctx, domain.Envelope{
		Type:      domain.EnvelopeResponse,
		RelayKind: tgt.RelayKind(),
		RequestID: tgt.RequestID(),
		From:      r.self,
		To:        tgt.SourceAgent(),
		Payload:   payload,
	})
}

// send logs transport failures instead of returning them: delivery is
// at-least-once and the next Resync re-sends.
func (r *Replicator) send(ctx context.Context, env domain.Envelope) {
	if err := r.messenger.Send(ctx, env); err != nil {
		r.logger.Warn("send failed", "type", string(env.Type), "request", env.RequestID, "to", string(env.To), "err", err)
		return
	}
	r.emit(ctx, "out", env)
}

func (r *Replicator) emit(ctx context.Context, dir string, env domain.Envelope) {
	if r.hooks.OnRelay != nil {
		r.hooks.OnRelay(ctx, domain.RelayEvent{Direction: dir, Envelope: env})
	}
}
