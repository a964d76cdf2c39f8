package replication_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/mobility/internal/replication"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteStep() *domain.Step {
	return domain.NewStep(domain.UID{Owner: "a", Seq: 1}, domain.StepOptions{
		Owner:       domain.UID{Owner: "a", Seq: 9},
		Source:      "a",
		Target:      "b",
		Ticket:      domain.Ticket{ID: "a/1", MobileAgent: "m"},
		PauseTime:   -1,
		TimeoutTime: -1,
	})
}

func TestStepSource_ApplyResponseIsIdempotent(t *testing.T) {
	step := remoteStep()
	src, ok := replication.AsSource(step)
	require.True(t, ok)

	payload, err := json.Marshal(domain.StepStatus{State: domain.StateRunning, StartTime: 10, EndTime: -1})
	require.NoError(t, err)

	change, err := src.ApplyResponse("b", payload)
	require.NoError(t, err)
	assert.Equal(t, replication.Changed, change)

	change, err = src.ApplyResponse("b", payload)
	require.NoError(t, err)
	assert.Equal(t, replication.Unchanged, change)

	assert.Equal(t, domain.StateRunning, step.Status().State)
}

func TestStepSource_IgnoresStaleResponse(t *testing.T) {
	step := remoteStep()
	src, _ := replication.AsSource(step)

	done, _ := json.Marshal(domain.StepStatus{State: domain.StateSuccess, StartTime: 10, EndTime: 20})
	running, _ := json.Marshal(domain.StepStatus{State: domain.StateRunning, StartTime: 10, EndTime: -1})

	change, err := src.ApplyResponse("b", done)
	require.NoError(t, err)
	assert.Equal(t, replication.Changed, change)

	change, err = src.ApplyResponse("b", running)
	require.NoError(t, err)
	assert.Equal(t, replication.Unchanged, change)
	assert.Equal(t, domain.StateSuccess, step.Status().State)
}

func TestStepSource_RejectsForeignResponder(t *testing.T) {
	src, _ := replication.AsSource(remoteStep())
	_, err := src.ApplyResponse("c", []byte(`{"state":"RUNNING","start_time":1,"end_time":-1}`))
	assert.Error(t, err)
}

func TestRequestSource_ApplyResponseIsIdempotent(t *testing.T) {
	req, err := domain.NewRequest(domain.UID{Owner: "a", Seq: 2}, domain.UID{}, domain.KindMove, "a", "", domain.Ticket{MobileAgent: "b"})
	require.NoError(t, err)
	src, ok := replication.AsSource(req)
	require.True(t, ok)

	payload, _ := json.Marshal(domain.Completed(domain.StatusMoved, ""))

	change, err := src.ApplyResponse("b", payload)
	require.NoError(t, err)
	assert.Equal(t, replication.Changed, change)

	change, err = src.ApplyResponse("b", payload)
	require.NoError(t, err)
	assert.Equal(t, replication.Unchanged, change)
}

func TestRequestSource_RejectsCodeOutsideKind(t *testing.T) {
	req, err := domain.NewRequest(domain.UID{Owner: "a", Seq: 3}, domain.UID{}, domain.KindTransfer, "a", "b", domain.Ticket{})
	require.NoError(t, err)
	src, _ := replication.AsSource(req)

	payload, _ := json.Marshal(domain.Completed(domain.StatusMoved, ""))
	_, err = src.ApplyResponse("b", payload)
	assert.ErrorIs(t, err, domain.ErrStatusNotAllowed)
	assert.False(t, req.Status().IsSet())
}

func TestSides(t *testing.T) {
	local := domain.NewStep(domain.UID{Owner: "a", Seq: 1}, domain.StepOptions{Source: "a", Target: "a"})
	_, isSource := replication.AsSource(local)
	_, isTarget := replication.AsTarget(local)
	assert.False(t, isSource, "local steps bypass the protocol")
	assert.False(t, isTarget)

	twin := domain.NewStepTwin(domain.UID{Owner: "a", Seq: 1}, domain.StepOptions{Source: "a", Target: "b"})
	tgt, ok := replication.AsTarget(twin)
	require.True(t, ok)
	assert.Nil(t, tgt.Response(), "no response before the executor reports")
	assert.Equal(t, domain.AgentID("a"), tgt.SourceAgent())
}

func TestRegistry(t *testing.T) {
	reg := replication.DefaultRegistry()

	_, err := reg.Lookup("teleport")
	assert.ErrorIs(t, err, replication.ErrUnknownRelayKind)

	factory, err := reg.Lookup(replication.KindStep)
	require.NoError(t, err)
	content, err := replication.StepSource{Step: remoteStep()}.Content()
	require.NoError(t, err)

	tgt, err := factory(domain.UID{Owner: "a", Seq: 1}, "a", content)
	require.NoError(t, err)
	step := tgt.Fact().(*domain.Step)
	assert.Equal(t, domain.SideTarget, step.Side)
	assert.Equal(t, remoteStep().Options, step.Options)

	_, err = factory(domain.UID{Owner: "a", Seq: 1}, "z", content)
	assert.Error(t, err, "content must come from the source it names")
}
