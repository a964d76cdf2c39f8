package replication

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/mobility/pkg/domain"
)

// StepSource relays a Source-side step. Its content is the step options;
// the response is the twin's status.
type StepSource struct{ Step *domain.Step }

func (s StepSource) RequestID() domain.UID { return s.Step.ID }
func (s StepSource) RelayKind() string { return KindStep }
func (s StepSource) Targets() []domain.AgentID { return []domain.AgentID{s.Step.Options.Target} }
func (s StepSource) Fact() domain.Fact { return s.Step }

func (s StepSource) Content() (json.RawMessage, error) {
	return json.Marshal(s.Step.Options)
}

func (s StepSource) ApplyResponse(target domain.AgentID, response json.RawMessage) (Change, error) {
	if target != s.Step.Options.Target {
		return Unchanged, fmt.Errorf("step %s: response from %s, expected %s", s.Step.ID, target, s.Step.Options.Target)
	}
	status := domain.StatusNone
	if err := json.Unmarshal(response, &status); err != nil {
		return Unchanged, fmt.Errorf("step %s: decode status: %w", s.Step.ID, err)
	}
	if s.Step.Mirror(status) {
		return Changed, nil
	}
	return Unchanged, nil
}

// StepTarget relays the twin of a remote step.
type StepTarget struct{ Step *domain.Step }

// NewStepTarget is the TargetFactory for steps.
func NewStepTarget(id domain.UID, source domain.AgentID, content json.RawMessage) (Target, error) {
	var opts domain.StepOptions
	if err := json.Unmarshal(content, &opts); err != nil {
		return nil, fmt.Errorf("step %s: decode options: %w", id, err)
	}
	if opts.Source != source {
		return nil, fmt.Errorf("step %s: content claims source %s, sent by %s", id, opts.Source, source)
	}
	return StepTarget{domain.NewStepTwin(id, opts)}, nil
}

func (t StepTarget) RequestID() domain.UID { return t.Step.ID }
func (t StepTarget) RelayKind() string { return KindStep }
func (t StepTarget) SourceAgent() domain.AgentID { return t.Step.Options.Source }
func (t StepTarget) Fact() domain.Fact { return t.Step }

func (t StepTarget) Response() any {
	st := t.Step.Status()
	if st.State == domain.StateUnseen {
		return nil
	}
	return st
}

// ApplyContent is a no-op: step options are immutable.
func (t StepTarget) ApplyContent(json.RawMessage) (Change, error) {
	return Unchanged, nil
}
