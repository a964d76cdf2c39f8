package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBlackboardContract verifies that a Blackboard implementation publishes
// typed notifications and indexes facts the way the engine expects.
// newBoard must return an empty board on every call.
func RunBlackboardContract(t *testing.T, newBoard func() Blackboard) {
	ctx := context.Background()
	uid := func(seq int64) domain.UID { return domain.UID{Owner: "bb", Seq: seq} }

	t.Run("Add Queues Notification", func(t *testing.T) {
		board := newBoard()
		script := domain.NewScript(uid(1), "label a", []domain.Entry{{Kind: domain.EntryLabel, Label: "a", Line: 1}})
		require.NoError(t, board.PublishAdd(ctx, script))

		select {
		case <-board.Ready():
		case <-time.After(time.Second):
			t.Fatal("Ready was not signaled after PublishAdd")
		}

		batch := board.Drain()
		require.Len(t, batch.Scripts, 1)
		assert.Equal(t, domain.OpAdd, batch.Scripts[0].Op)
		assert.Equal(t, uid(1), batch.Scripts[0].Script.ID)
		assert.True(t, board.Drain().Empty(), "Drain clears the queue")

		got, err := board.Get(ctx, uid(1))
		require.NoError(t, err)
		assert.Equal(t, uid(1), got.FactID())
	})

	t.Run("Duplicate Add", func(t *testing.T) {
		board := newBoard()
		proc := domain.NewProc(uid(2), "bb", uid(1), 0)
		require.NoError(t, board.PublishAdd(ctx, proc))
		assert.ErrorIs(t, board.PublishAdd(ctx, proc.Clone()), domain.ErrAlreadyExists)
	})

	t.Run("Change And Remove Missing", func(t *testing.T) {
		board := newBoard()
		proc := domain.NewProc(uid(3), "bb", uid(1), 0)
		assert.ErrorIs(t, board.PublishChange(ctx, proc), domain.ErrNotFound)
		assert.ErrorIs(t, board.PublishRemove(ctx, proc), domain.ErrNotFound)
	})

	t.Run("Change Then Remove", func(t *testing.T) {
		board := newBoard()
		proc := domain.NewProc(uid(4), "bb", uid(1), 0)
		require.NoError(t, board.PublishAdd(ctx, proc))
		proc.MoveCount = 1
		require.NoError(t, board.PublishChange(ctx, proc))
		require.NoError(t, board.PublishRemove(ctx, proc))

		batch := board.Drain()
		require.Len(t, batch.Procs, 3)
		assert.Equal(t, []domain.Op{domain.OpAdd, domain.OpChange, domain.OpRemove},
			[]domain.Op{batch.Procs[0].Op, batch.Procs[1].Op, batch.Procs[2].Op})

		_, err := board.Get(ctx, uid(4))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Listing Is Ordered", func(t *testing.T) {
		board := newBoard()
		for _, seq := range []int64{7, 5, 6} {
			require.NoError(t, board.PublishAdd(ctx, domain.NewProc(uid(seq), "bb", uid(1), 0)))
		}
		procs, err := board.Procs(ctx)
		require.NoError(t, err)
		require.Len(t, procs, 3)
		assert.Equal(t, []domain.UID{uid(5), uid(6), uid(7)}, []domain.UID{procs[0].ID, procs[1].ID, procs[2].ID})
	})

	t.Run("Steps By Owner", func(t *testing.T) {
		board := newBoard()
		opts := func(owner domain.UID) domain.StepOptions {
			return domain.StepOptions{Owner: owner, Source: "bb", Target: "bb", PauseTime: -1, TimeoutTime: -1}
		}
		require.NoError(t, board.PublishAdd(ctx, domain.NewStep(uid(10), opts(uid(1)))))
		require.NoError(t, board.PublishAdd(ctx, domain.NewStep(uid(11), opts(uid(2)))))

		steps, err := board.StepsByOwner(ctx, uid(2))
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, uid(11), steps[0].ID)

		none, err := board.StepsByOwner(ctx, uid(99))
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
