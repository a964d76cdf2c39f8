package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/mobility/internal/compiler"
	"github.com/aretw0/mobility/internal/runtime"
	"github.com/aretw0/mobility/pkg/adapters/memory"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ident"
	"github.com/aretw0/mobility/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const self = domain.AgentID("home")

// flakyRepository fails proc saves while broken is set.
type flakyRepository struct {
	*memory.Repository
	broken bool
}

func (r *flakyRepository) Save(ctx context.Context, rec ports.Record) error {
	if r.broken && rec.Kind == domain.FactProc {
		return errors.New("disk full")
	}
	return r.Repository.Save(ctx, rec)
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	board  *memory.Blackboard
	ids    *ident.Issuer
	engine *runtime.Engine
	now    int64

	guards   int
	created  int
	finished []domain.StepState
}

func newHarness(t *testing.T, opts ...memory.Option) *harness {
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		board: memory.NewBlackboard(opts...),
		ids:   ident.NewIssuer(self),
		now:   1_000_000,
	}
	h.engine = h.newEngine()
	return h
}

func (h *harness) newEngine() *runtime.Engine {
	return runtime.NewEngine(self, h.board, h.ids,
		runtime.WithClock(ports.ClockFunc(func() int64 { return h.now })),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnLoopGuard:    func(context.Context, *domain.Proc) { h.guards++ },
			OnStepCreated:  func(context.Context, *domain.Step) { h.created++ },
			OnProcFinished: func(_ context.Context, _ *domain.Proc, s domain.StepState) { h.finished = append(h.finished, s) },
		}),
	)
}

// pump dispatches notifications until the board is quiet.
func (h *harness) pump() {
	h.t.Helper()
	for batch := h.board.Drain(); !batch.Empty(); batch = h.board.Drain() {
		require.NoError(h.t, h.engine.HandleScripts(h.ctx, batch.Scripts))
		require.NoError(h.t, h.engine.HandleProcs(h.ctx, batch.Procs))
		require.NoError(h.t, h.engine.HandleSteps(h.ctx, batch.Steps))
	}
}

func (h *harness) addScript(text string) *domain.Script {
	h.t.Helper()
	script, err := compiler.NewParser().Compile(h.ids.Next(), text)
	require.NoError(h.t, err)
	require.NoError(h.t, h.board.PublishAdd(h.ctx, script))
	return script
}

func (h *harness) addProc(scriptID domain.UID) *domain.Proc {
	h.t.Helper()
	proc := domain.NewProc(h.ids.Next(), self, scriptID, h.now)
	require.NoError(h.t, h.board.PublishAdd(h.ctx, proc))
	return proc
}

func (h *harness) steps() []*domain.Step {
	h.t.Helper()
	steps, err := h.board.Steps(h.ctx)
	require.NoError(h.t, err)
	return steps
}

func (h *harness) outstanding(proc *domain.Proc) *domain.Step {
	h.t.Helper()
	require.False(h.t, proc.StepID.IsZero(), "proc has no outstanding step")
	f, err := h.board.Get(h.ctx, proc.StepID)
	require.NoError(h.t, err)
	return f.(*domain.Step)
}

// finish drives a local step to a terminal state the way an executor does.
func (h *harness) finish(step *domain.Step, state domain.StepState) {
	h.t.Helper()
	step.SetStatus(domain.StepStatus{State: domain.StateRunning, StartTime: h.now, EndTime: -1})
	h.now += 500
	step.SetStatus(domain.StepStatus{State: state, StartTime: step.Status().StartTime, EndTime: h.now})
	require.NoError(h.t, h.board.PublishChange(h.ctx, step))
	h.pump()
}

func TestEngine_RunsScriptToCompletion(t *testing.T) {
	h := newHarness(t)
	script := h.addScript("move , +1, , m1, n1, n2, false\nmove , +1, +5, m2, n2, n3, true")
	proc := h.addProc(script.ID)
	h.pump()

	first := h.outstanding(proc)
	assert.Equal(t, domain.SideLocal, first.Side)
	assert.Equal(t, 0, proc.ScriptIndex)
	assert.Equal(t, 1, proc.MoveCount)
	assert.Equal(t, h.now+1000, first.Options.PauseTime)
	assert.Equal(t, first.ID.String(), first.Options.Ticket.ID)

	h.finish(first, domain.StateSuccess)

	second := h.outstanding(proc)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, proc.ScriptIndex)
	assert.Equal(t, 2, proc.MoveCount)
	assert.Equal(t, first.Status().StartTime, proc.PrevStepStart)
	assert.True(t, second.Options.Ticket.ForceRestart)
	assert.Equal(t, second.Options.PauseTime+5000, second.Options.TimeoutTime)
	assert.Len(t, h.steps(), 1, "the completed step is retired")

	h.finish(second, domain.StateSuccess)

	assert.Equal(t, h.now, proc.EndTime)
	assert.Equal(t, script.Len(), proc.ScriptIndex)
	assert.True(t, proc.StepID.IsZero())
	assert.Empty(t, h.steps())
	assert.False(t, h.engine.Tracking(proc.ID))
	assert.Equal(t, []domain.StepState{domain.StateSuccess}, h.finished)
}

func TestEngine_FailFast(t *testing.T) {
	for _, state := range []domain.StepState{domain.StateFailure, domain.StateTimeout} {
		t.Run(state.String(), func(t *testing.T) {
			h := newHarness(t)
			script := h.addScript("move , , , a, , ,\nmove , , , b, , ,\nmove , , , c, , ,")
			proc := h.addProc(script.ID)
			h.pump()

			failed := h.outstanding(proc)
			h.finish(failed, state)

			assert.Equal(t, h.now, proc.EndTime)
			assert.Equal(t, 0, proc.ScriptIndex)
			assert.Equal(t, 1, proc.MoveCount)
			require.Len(t, h.steps(), 1, "the failed step is kept for diagnostics")
			assert.Equal(t, failed.ID, h.steps()[0].ID)
			assert.False(t, h.engine.Tracking(proc.ID))

			// A stray re-notification creates nothing.
			require.NoError(t, h.board.PublishChange(h.ctx, failed))
			h.pump()
			assert.Len(t, h.steps(), 1)
			assert.Equal(t, 1, h.created)
			assert.Equal(t, []domain.StepState{state}, h.finished)
		})
	}
}

func TestEngine_LoopNeverTripsGuard(t *testing.T) {
	h := newHarness(t)
	script := h.addScript("label L\nmove , , , m, x, y, false\ngoto L")
	proc := h.addProc(script.ID)
	h.pump()

	for i := 1; i <= 60; i++ {
		step := h.outstanding(proc)
		assert.Equal(t, 1, proc.ScriptIndex)
		assert.Equal(t, i, proc.MoveCount)
		h.finish(step, domain.StateSuccess)
	}
	assert.Equal(t, 0, h.guards)
	assert.Equal(t, int64(-1), proc.EndTime)
	assert.Len(t, h.steps(), 1)
}

func TestEngine_LoopGuardStallsProc(t *testing.T) {
	h := newHarness(t)
	script := h.addScript("label spin\ngoto spin\nmove , , , , , ,")
	proc := h.addProc(script.ID)
	h.pump()

	assert.Equal(t, 1, h.guards)
	assert.Equal(t, -1, proc.ScriptIndex)
	assert.Equal(t, int64(-1), proc.EndTime)
	assert.Empty(t, h.steps())
}

func TestEngine_WaitsForMissingScript(t *testing.T) {
	h := newHarness(t)
	script, err := compiler.NewParser().Compile(h.ids.Next(), "move b, , , m, , ,")
	require.NoError(t, err)

	proc := h.addProc(script.ID)
	h.pump()
	assert.Empty(t, h.steps())
	assert.True(t, h.engine.Tracking(proc.ID))

	require.NoError(t, h.board.PublishAdd(h.ctx, script))
	h.pump()

	step := h.outstanding(proc)
	assert.Equal(t, domain.SideSource, step.Side, "actor b is another agent")
	assert.Equal(t, domain.AgentID("b"), step.Options.Target)
}

func TestEngine_RemoveScriptCascades(t *testing.T) {
	h := newHarness(t)
	script := h.addScript("move b, , , m, , ,")
	other := h.addScript("move , , , m, , ,")
	p1 := h.addProc(script.ID)
	p2 := h.addProc(script.ID)
	keep := h.addProc(other.ID)
	h.pump()
	require.Len(t, h.steps(), 3)

	require.NoError(t, h.board.PublishRemove(h.ctx, script))
	h.pump()

	procs, err := h.board.Procs(h.ctx)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, keep.ID, procs[0].ID)

	for _, s := range h.steps() {
		assert.NotEqual(t, p1.ID, s.Options.Owner)
		assert.NotEqual(t, p2.ID, s.Options.Owner)
	}
	assert.Len(t, h.steps(), 1)
}

func TestEngine_RemoveProcRemovesStep(t *testing.T) {
	h := newHarness(t)
	script := h.addScript("move , , , m, , ,")
	proc := h.addProc(script.ID)
	h.pump()
	require.Len(t, h.steps(), 1)

	require.NoError(t, h.board.PublishRemove(h.ctx, proc))
	h.pump()
	assert.Empty(t, h.steps())
	assert.False(t, h.engine.Tracking(proc.ID))
}

func TestEngine_IgnoresFinishedProcs(t *testing.T) {
	h := newHarness(t)
	script := h.addScript("move , , , m, , ,")
	proc := domain.NewProc(h.ids.Next(), self, script.ID, h.now)
	proc.EndTime = h.now
	require.NoError(t, h.board.PublishAdd(h.ctx, proc))
	h.pump()

	assert.Empty(t, h.steps())
	assert.False(t, h.engine.Tracking(proc.ID))
}

func TestEngine_RehydrationFindsOutstandingStep(t *testing.T) {
	repo := memory.NewRepository()
	h := newHarness(t, memory.WithRepository(repo))
	script := h.addScript("move , , , m1, , ,\nmove , , , m2, , ,\nmove , , , m3, , ,")
	proc := h.addProc(script.ID)
	h.pump()
	h.finish(h.outstanding(proc), domain.StateSuccess)
	require.Equal(t, 1, proc.ScriptIndex)
	pending := h.outstanding(proc)

	// Restart: fresh board and engine over the same repository.
	h.board = memory.NewBlackboard(memory.WithRepository(repo))
	h.ids = ident.NewIssuer(self)
	h.engine = h.newEngine()
	h.created = 0

	ids, err := h.board.Rehydrate(h.ctx)
	require.NoError(t, err)
	for _, id := range ids {
		h.ids.Observe(id)
	}
	h.pump()

	steps := h.steps()
	require.Len(t, steps, 1, "no duplicate step")
	assert.Equal(t, pending.ID, steps[0].ID)
	assert.Equal(t, 0, h.created)
	assert.True(t, h.engine.Tracking(proc.ID))

	f, err := h.board.Get(h.ctx, proc.ID)
	require.NoError(t, err)
	restored := f.(*domain.Proc)

	h.finish(steps[0], domain.StateSuccess)
	assert.Equal(t, 2, restored.ScriptIndex)
	assert.Equal(t, 3, restored.MoveCount)
	assert.Equal(t, domain.AgentID("m3"), h.outstanding(restored).Options.Ticket.MobileAgent)
}

func TestEngine_RehydrationWithoutRecordedStepID(t *testing.T) {
	h := newHarness(t)
	script := h.addScript("move , , , m1, , ,\nmove , , , m2, , ,")
	proc := h.addProc(script.ID)
	h.pump()
	step := h.outstanding(proc)

	// The proc lost its reference; the step is found by owner correlation.
	proc.StepID = domain.UID{}
	h.engine = h.newEngine()
	require.NoError(t, h.board.PublishChange(h.ctx, proc))
	require.NoError(t, h.engine.HandleProcs(h.ctx, []domain.ProcEvent{{Op: domain.OpAdd, Proc: proc}}))
	h.board.Drain()

	assert.Equal(t, step.ID, proc.StepID)
	assert.Len(t, h.steps(), 1)
}

func TestEngine_FailedProcSaveRollsBack(t *testing.T) {
	repo := &flakyRepository{Repository: memory.NewRepository()}
	h := newHarness(t, memory.WithRepository(repo))
	script := h.addScript("move , , , m1, a, b, false\nmove , , , m2, b, c, false")
	proc := h.addProc(script.ID)
	h.pump()
	first := h.outstanding(proc)

	repo.broken = true
	first.SetStatus(domain.StepStatus{State: domain.StateRunning, StartTime: h.now, EndTime: -1})
	h.now += 500
	first.SetStatus(domain.StepStatus{State: domain.StateSuccess, StartTime: first.Status().StartTime, EndTime: h.now})
	require.NoError(t, h.board.PublishChange(h.ctx, first))
	batch := h.board.Drain()
	require.Error(t, h.engine.HandleSteps(h.ctx, batch.Steps))

	// The in-memory proc matches what storage still holds.
	assert.Equal(t, 0, proc.ScriptIndex)
	assert.Equal(t, 1, proc.MoveCount)
	assert.Equal(t, first.ID, proc.StepID)
	assert.True(t, h.engine.Tracking(proc.ID))

	steps := h.steps()
	require.Len(t, steps, 1)
	second := steps[0]
	assert.Equal(t, domain.AgentID("m2"), second.Options.Ticket.MobileAgent)
	assert.Equal(t, 1, second.Options.Index)
	assert.Equal(t, 2, second.Options.Move)

	repo.broken = false
	h.pump()
	h.finish(second, domain.StateSuccess)

	assert.Equal(t, 2, proc.MoveCount)
	assert.Equal(t, script.Len(), proc.ScriptIndex)
	assert.Equal(t, h.now, proc.EndTime)
	assert.Empty(t, h.steps())
	assert.Equal(t, []domain.StepState{domain.StateSuccess}, h.finished)
}

func TestEngine_RestartAdoptsStepOfUnsavedTurn(t *testing.T) {
	repo := &flakyRepository{Repository: memory.NewRepository()}
	h := newHarness(t, memory.WithRepository(repo))
	script := h.addScript("move , , , m1, a, b, false\nmove , , , m2, b, c, false\nmove , , , m3, c, d, false")
	proc := h.addProc(script.ID)
	h.pump()

	repo.broken = true
	first := h.outstanding(proc)
	first.SetStatus(domain.StepStatus{State: domain.StateRunning, StartTime: h.now, EndTime: -1})
	first.SetStatus(domain.StepStatus{State: domain.StateSuccess, StartTime: h.now, EndTime: h.now + 1})
	require.NoError(t, h.board.PublishChange(h.ctx, first))
	require.Error(t, h.engine.HandleSteps(h.ctx, h.board.Drain().Steps))
	repo.broken = false

	// Crash: the stored proc still points at the retired first step.
	h.board = memory.NewBlackboard(memory.WithRepository(repo))
	h.ids = ident.NewIssuer(self)
	h.engine = h.newEngine()
	ids, err := h.board.Rehydrate(h.ctx)
	require.NoError(t, err)
	for _, id := range ids {
		h.ids.Observe(id)
	}
	h.pump()

	f, err := h.board.Get(h.ctx, proc.ID)
	require.NoError(t, err)
	restored := f.(*domain.Proc)
	assert.Equal(t, 1, restored.ScriptIndex)
	assert.Equal(t, 2, restored.MoveCount)

	rec, err := repo.Load(h.ctx, domain.FactProc, proc.ID)
	require.NoError(t, err)
	assert.Contains(t, string(rec.Data), `"script_index":1`, "the restored cursor is saved")

	h.finish(h.outstanding(restored), domain.StateSuccess)
	next := h.outstanding(restored)
	assert.Equal(t, domain.AgentID("m3"), next.Options.Ticket.MobileAgent, "m2 is not moved twice")
	assert.Equal(t, 2, restored.ScriptIndex)
	assert.Equal(t, 3, restored.MoveCount)
}
