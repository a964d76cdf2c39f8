package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StepState is the lifecycle state of a step.
type StepState int

const (
	StateUnseen StepState = iota
	StatePaused
	StateRunning
	StateSuccess
	StateFailure
	StateTimeout
)

var stepStateNames = [...]string{"UNSEEN", "PAUSED", "RUNNING", "SUCCESS", "FAILURE", "TIMEOUT"}

func (s StepState) String() string {
	if s < 0 || int(s) >= len(stepStateNames) {
		return fmt.Sprintf("StepState(%d)", int(s))
	}
	return stepStateNames[s]
}

// IsTerminal reports whether the state is SUCCESS, FAILURE or TIMEOUT.
func (s StepState) IsTerminal() bool {
	return s >= StateSuccess
}

// MarshalText implements encoding.TextMarshaler.
func (s StepState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StepState) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, n := range stepStateNames {
		if n == name {
			*s = StepState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown step state %q", string(text))
}

// StepStatus is an immutable snapshot of a step's progress.
// Times are epoch milliseconds, -1 when unset.
type StepStatus struct {
	State     StepState `json:"state"`
	StartTime int64     `json:"start_time"`
	EndTime   int64     `json:"end_time"`
	Result    string    `json:"result,omitempty"`
}

// StatusNone is the initial status of every step.
var StatusNone = StepStatus{State: StateUnseen, StartTime: -1, EndTime: -1}

// Done reports whether the step has an end time.
func (s StepStatus) Done() bool { return s.EndTime >= 0 }

func (s StepStatus) String() string {
	if s.Result != "" {
		return fmt.Sprintf("%s [%d..%d] %s", s.State, s.StartTime, s.EndTime, s.Result)
	}
	return fmt.Sprintf("%s [%d..%d]", s.State, s.StartTime, s.EndTime)
}

// StepOptions is the immutable description of a step.
// PauseTime and TimeoutTime are absolute epoch milliseconds, -1 for "none".
type StepOptions struct {
	Owner       UID     `json:"owner"`
	Source      AgentID `json:"source"`
	Target      AgentID `json:"target"`
	Ticket      Ticket  `json:"ticket"`
	PauseTime   int64   `json:"pause_time"`
	TimeoutTime int64   `json:"timeout_time"`

	// Index is the script entry the step was created for and Move the
	// owner's move count including this step (0 when unknown). A restarted
	// agent restores its proc cursor from them.
	Index int `json:"index"`
	Move  int `json:"move,omitempty"`
}

// Side tags which representation of a replicated object a fact is.
type Side int

const (
	// SideLocal objects target their own agent; the protocol is bypassed.
	SideLocal Side = iota
	// SideSource objects live on the requesting agent and mirror the target's response.
	SideSource
	// SideTarget objects are twins materialized on the target agent.
	SideTarget
)

func (s Side) String() string {
	switch s {
	case SideLocal:
		return "local"
	case SideSource:
		return "source"
	case SideTarget:
		return "target"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Step is one concrete, time-resolved move.
//
// The Local variant mutates its status in place. The Source variant only
// mirrors the status produced by its Target twin on the other agent.
type Step struct {
	ID      UID
	Options StepOptions
	Side    Side
	status  StepStatus
}

// NewStep creates the requesting side of a step. It is Local when the
// target agent is the source agent, Source otherwise.
func NewStep(id UID, opts StepOptions) *Step {
	side := SideSource
	if opts.Target == opts.Source {
		side = SideLocal
	}
	return &Step{ID: id, Options: opts, Side: side, status: StatusNone}
}

// NewStepTwin materializes the target-side twin of a remote step.
func NewStepTwin(id UID, opts StepOptions) *Step {
	return &Step{ID: id, Options: opts, Side: SideTarget, status: StatusNone}
}

// FactID implements Fact.
func (s *Step) FactID() UID { return s.ID }

// Status returns the current status snapshot.
func (s *Step) Status() StepStatus { return s.status }

// SetStatus advances the status. It is the executor's entry point on the
// Local or Target side. States only move forward and a terminal status is
// final; violating either is a programming error and panics.
func (s *Step) SetStatus(next StepStatus) {
	if s.Side == SideSource {
		panic(fmt.Errorf("step %s: source side status is mirrored, not set", s.ID))
	}
	if s.status.Done() {
		panic(fmt.Errorf("%w: %s is %s", ErrStepFinished, s.ID, s.status.State))
	}
	if next.State < s.status.State {
		panic(fmt.Errorf("%w: %s %s -> %s", ErrStatusRegression, s.ID, s.status.State, next.State))
	}
	s.status = next
}

// Mirror copies a status received from the target twin. It returns false
// when nothing changed: the value is identical, or stale because the
// cached status is already terminal or further along.
func (s *Step) Mirror(next StepStatus) bool {
	if next == s.status {
		return false
	}
	if s.status.Done() || next.State < s.status.State {
		return false
	}
	s.status = next
	return true
}

// Clone returns a copy of the step.
func (s *Step) Clone() *Step {
	cp := *s
	return &cp
}

type stepJSON struct {
	ID      UID         `json:"id"`
	Options StepOptions `json:"options"`
	Side    Side        `json:"side"`
	Status  StepStatus  `json:"status"`
}

// MarshalJSON implements json.Marshaler.
func (s *Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{ID: s.ID, Options: s.Options, Side: s.Side, Status: s.status})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Step) UnmarshalJSON(data []byte) error {
	aux := stepJSON{Status: StatusNone}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ID, s.Options, s.Side, s.status = aux.ID, aux.Options, aux.Side, aux.Status
	return nil
}
