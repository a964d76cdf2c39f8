package replication_test

import (
	"context"
	"testing"

	"github.com/aretw0/mobility/internal/replication"
	"github.com/aretw0/mobility/pkg/adapters/memory"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type peer struct {
	id    domain.AgentID
	board *memory.Blackboard
	inbox ports.Inbox
	rep   *replication.Replicator
	log   []domain.RelayEvent
}

func newPeer(t *testing.T, id domain.AgentID, bus *memory.Bus, opts ...replication.Option) *peer {
	t.Helper()
	inbox, err := bus.Subscribe(context.Background(), id)
	require.NoError(t, err)
	p := &peer{id: id, board: memory.NewBlackboard(), inbox: inbox}
	opts = append([]replication.Option{
		replication.WithHooks(domain.LifecycleHooks{
			OnRelay: func(_ context.Context, ev domain.RelayEvent) { p.log = append(p.log, ev) },
		}),
	}, opts...)
	p.rep = replication.NewReplicator(id, p.board, bus, replication.DefaultRegistry(), opts...)
	return p
}

// flushBoard hands pending notifications to the replicator and returns them.
func (p *peer) flushBoard(ctx context.Context) domain.Batch {
	batch := p.board.Drain()
	p.rep.HandleSteps(ctx, batch.Steps)
	p.rep.HandleRequests(ctx, batch.Requests)
	return batch
}

func (p *peer) receive(t *testing.T, ctx context.Context) []domain.Envelope {
	t.Helper()
	envs := p.inbox.Drain()
	for _, env := range envs {
		require.NoError(t, p.rep.Receive(ctx, env))
	}
	return envs
}

func TestReplicator_StepRoundTrip(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	a, b := newPeer(t, "a", bus), newPeer(t, "b", bus)

	step := remoteStep()
	require.NoError(t, a.board.PublishAdd(ctx, step))
	a.flushBoard(ctx)

	envs := b.receive(t, ctx)
	require.Len(t, envs, 1)
	assert.Equal(t, domain.EnvelopeContent, envs[0].Type)

	fact, err := b.board.Get(ctx, step.ID)
	require.NoError(t, err)
	twin := fact.(*domain.Step)
	assert.Equal(t, domain.SideTarget, twin.Side)
	assert.Empty(t, a.inbox.Drain(), "nothing to answer before the executor reports")

	// The executor on b advances the twin.
	b.flushBoard(ctx)
	twin.SetStatus(domain.StepStatus{State: domain.StateRunning, StartTime: 100, EndTime: -1})
	require.NoError(t, b.board.PublishChange(ctx, twin))
	b.flushBoard(ctx)

	a.board.Drain()
	envs = a.receive(t, ctx)
	require.Len(t, envs, 1)
	assert.Equal(t, domain.StateRunning, step.Status().State)
	batch := a.board.Drain()
	require.Len(t, batch.Steps, 1)
	assert.Equal(t, domain.OpChange, batch.Steps[0].Op)

	// Re-delivering the same response publishes nothing.
	require.NoError(t, a.rep.Receive(ctx, envs[0]))
	assert.True(t, a.board.Drain().Empty())
}

func TestReplicator_DuplicateContentConverges(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus(memory.WithDuplication(true))
	a, b := newPeer(t, "a", bus), newPeer(t, "b", bus)

	step := remoteStep()
	require.NoError(t, a.board.PublishAdd(ctx, step))
	a.flushBoard(ctx)

	envs := b.receive(t, ctx)
	require.Len(t, envs, 2)
	steps, err := b.board.Steps(ctx)
	require.NoError(t, err)
	assert.Len(t, steps, 1, "one twin per request id")

	// Once answered, a re-delivered content is answered again.
	twin := steps[0]
	twin.SetStatus(domain.StepStatus{State: domain.StateSuccess, StartTime: 1, EndTime: 2})
	require.NoError(t, b.board.PublishChange(ctx, twin))
	b.flushBoard(ctx)
	a.inbox.Drain()

	require.NoError(t, b.rep.Receive(ctx, envs[0]))
	answers := a.inbox.Drain()
	require.NotEmpty(t, answers)
	assert.Equal(t, domain.EnvelopeResponse, answers[0].Type)
}

func TestReplicator_RemoveWithdrawsTwin(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	a, b := newPeer(t, "a", bus), newPeer(t, "b", bus)

	step := remoteStep()
	require.NoError(t, a.board.PublishAdd(ctx, step))
	a.flushBoard(ctx)
	content := b.receive(t, ctx)

	require.NoError(t, a.board.PublishRemove(ctx, step))
	a.flushBoard(ctx)
	b.receive(t, ctx)

	_, err := b.board.Get(ctx, step.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A late content does not resurrect the twin.
	require.NoError(t, b.rep.Receive(ctx, content[0]))
	_, err = b.board.Get(ctx, step.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReplicator_LocalBypassesTransport(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	a := newPeer(t, "a", bus)

	local := domain.NewStep(domain.UID{Owner: "a", Seq: 5}, domain.StepOptions{Source: "a", Target: "a", PauseTime: -1, TimeoutTime: -1})
	require.NoError(t, a.board.PublishAdd(ctx, local))
	a.flushBoard(ctx)

	assert.Equal(t, 0, bus.Sent())
	assert.Empty(t, a.log)
}

func TestReplicator_RequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	a, b := newPeer(t, "a", bus), newPeer(t, "b", bus)

	req, err := domain.NewRequest(domain.UID{Owner: "a", Seq: 7}, domain.UID{}, domain.KindAdd, "a", "b", domain.Ticket{MobileAgent: "m"})
	require.NoError(t, err)
	require.NoError(t, a.board.PublishAdd(ctx, req))
	a.flushBoard(ctx)
	b.receive(t, ctx)

	requests, err := b.board.Requests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	twin := requests[0]
	assert.Equal(t, domain.KindAdd, twin.Kind)
	assert.Equal(t, req.Ticket, twin.Ticket)

	b.flushBoard(ctx)
	twin.SetStatus(domain.StatusCreated, "")
	require.NoError(t, b.board.PublishChange(ctx, twin))
	b.flushBoard(ctx)

	a.receive(t, ctx)
	assert.Equal(t, domain.Completed(domain.StatusCreated, ""), req.Status())
}

func TestReplicator_Resync(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	a, b := newPeer(t, "a", bus), newPeer(t, "b", bus)

	step := remoteStep()
	require.NoError(t, a.board.PublishAdd(ctx, step))
	a.board.Drain() // lost before it was sent

	require.NoError(t, a.rep.Resync(ctx))
	envs := b.receive(t, ctx)
	require.Len(t, envs, 1)
	assert.Equal(t, step.ID, envs[0].RequestID)

	var out int
	for _, ev := range a.log {
		if ev.Direction == "out" {
			out++
		}
	}
	assert.Equal(t, 1, out)
}

func TestReplicator_UnknownKind(t *testing.T) {
	ctx := context.Background()
	b := newPeer(t, "b", memory.NewBus())
	err := b.rep.Receive(ctx, domain.Envelope{
		Type: domain.EnvelopeContent, RelayKind: "teleport",
		RequestID: domain.UID{Owner: "a", Seq: 1}, From: "a", To: "b",
	})
	assert.ErrorIs(t, err, replication.ErrUnknownRelayKind)
}

func TestReplicator_ForeignRemoveIsRejected(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	a, b := newPeer(t, "a", bus), newPeer(t, "b", bus)
	step := remoteStep()
	forged := domain.Envelope{
		Type: domain.EnvelopeRemove, RelayKind: replication.KindStep,
		RequestID: step.ID, From: "c", To: "b",
	}

	// Before the twin exists: rejected, and later content is still accepted.
	assert.Error(t, b.rep.Receive(ctx, forged))
	require.NoError(t, a.board.PublishAdd(ctx, step))
	a.flushBoard(ctx)
	b.receive(t, ctx)
	_, err := b.board.Get(ctx, step.ID)
	require.NoError(t, err)

	// After: rejected, and the twin stays.
	assert.Error(t, b.rep.Receive(ctx, forged))
	_, err = b.board.Get(ctx, step.ID)
	assert.NoError(t, err)
}

func TestReplicator_TombstonesAreBounded(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	a, b := newPeer(t, "a", bus), newPeer(t, "b", bus, replication.WithTombstones(1))

	first := remoteStep()
	second := domain.NewStep(domain.UID{Owner: "a", Seq: 2}, first.Options)
	var late []domain.Envelope
	for _, step := range []*domain.Step{first, second} {
		require.NoError(t, a.board.PublishAdd(ctx, step))
		a.flushBoard(ctx)
		late = append(late, b.receive(t, ctx)...)
		require.NoError(t, a.board.PublishRemove(ctx, step))
		a.flushBoard(ctx)
		b.receive(t, ctx)
	}
	require.Len(t, late, 2)

	// The newest withdrawal is remembered.
	require.NoError(t, b.rep.Receive(ctx, late[1]))
	_, err := b.board.Get(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The evicted one comes back, and its source withdraws it as soon as
	// the twin answers.
	require.NoError(t, b.rep.Receive(ctx, late[0]))
	fact, err := b.board.Get(ctx, first.ID)
	require.NoError(t, err)
	b.flushBoard(ctx)
	twin := fact.(*domain.Step)
	twin.SetStatus(domain.StepStatus{State: domain.StateRunning, StartTime: 1, EndTime: -1})
	require.NoError(t, b.board.PublishChange(ctx, twin))
	b.flushBoard(ctx)

	a.receive(t, ctx)
	envs := b.receive(t, ctx)
	require.Len(t, envs, 1)
	assert.Equal(t, domain.EnvelopeRemove, envs[0].Type)
	_, err = b.board.Get(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
