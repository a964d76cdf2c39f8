package domain

// Proc is the run cursor of one script on the agent that hosts it.
// It has exactly one mutator: the hosting agent's engine.
type Proc struct {
	ID       UID     `json:"id"`
	Agent    AgentID `json:"agent"`
	ScriptID UID     `json:"script_id"`

	// StartTime is epoch milliseconds.
	StartTime int64 `json:"start_time"`

	// ScriptIndex is the program counter: -1 before the first step,
	// the script length once completed.
	ScriptIndex int `json:"script_index"`

	// StepID references the outstanding step, zero when none.
	StepID UID `json:"step_id"`

	MoveCount int `json:"move_count"`

	// EndTime is -1 while the proc is running.
	EndTime int64 `json:"end_time"`

	// PrevStepStart is the start time of the last completed step (-1 if none),
	// used to resolve '^' anchors.
	PrevStepStart int64 `json:"prev_step_start"`
}

// NewProc creates a proc positioned before the first entry.
func NewProc(id UID, agent AgentID, scriptID UID, now int64) *Proc {
	return &Proc{
		ID:            id,
		Agent:         agent,
		ScriptID:      scriptID,
		StartTime:     now,
		ScriptIndex:   -1,
		EndTime:       -1,
		PrevStepStart: -1,
	}
}

// FactID implements Fact.
func (p *Proc) FactID() UID { return p.ID }

// Running reports whether the proc has not ended.
func (p *Proc) Running() bool { return p.EndTime < 0 }

// Clone returns a copy of the proc.
func (p *Proc) Clone() *Proc {
	cp := *p
	return &cp
}
