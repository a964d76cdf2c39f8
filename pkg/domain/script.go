package domain

import (
	"encoding/json"
	"fmt"
)

// Anchor selects what a time literal is measured relative to.
type Anchor int

const (
	// AnchorAbsolute means the literal is wall-clock epoch milliseconds.
	AnchorAbsolute Anchor = iota
	// AnchorProcStart ('@') anchors to the proc's start time.
	AnchorProcStart
	// AnchorNow ('+') anchors to "now" for a pause, or to the resolved pause for a timeout.
	AnchorNow
	// AnchorPrevious ('^') anchors to the previous step's start time, falling back to "now".
	AnchorPrevious
)

// Prefix returns the anchor character used in script text.
func (a Anchor) Prefix() string {
	switch a {
	case AnchorProcStart:
		return "@"
	case AnchorNow:
		return "+"
	case AnchorPrevious:
		return "^"
	default:
		return ""
	}
}

func (a Anchor) String() string {
	switch a {
	case AnchorProcStart:
		return "proc-start"
	case AnchorNow:
		return "now"
	case AnchorPrevious:
		return "previous"
	default:
		return "absolute"
	}
}

// StepTemplate is the unresolved form of a move entry.
// Pause and Timeout are offsets in milliseconds; -1 means "none".
type StepTemplate struct {
	Actor         AgentID `json:"actor,omitempty"`
	Pause         int64   `json:"pause"`
	PauseAnchor   Anchor  `json:"pause_anchor"`
	Timeout       int64   `json:"timeout"`
	TimeoutAnchor Anchor  `json:"timeout_anchor"`
	MobileAgent   AgentID `json:"mobile_agent,omitempty"`
	Origin        NodeID  `json:"origin,omitempty"`
	Destination   NodeID  `json:"destination,omitempty"`
	ForceRestart  bool    `json:"force_restart,omitempty"`
}

// EntryKind discriminates the Entry union.
type EntryKind int

const (
	EntryStep EntryKind = iota
	EntryLabel
	EntryGoto
)

func (k EntryKind) String() string {
	switch k {
	case EntryStep:
		return "move"
	case EntryLabel:
		return "label"
	case EntryGoto:
		return "goto"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// Entry is one element of a compiled script.
//
// Kind selects which fields are meaningful: Move for EntryStep, Label for
// EntryLabel, Label and Target (the resolved entry index) for EntryGoto.
type Entry struct {
	Kind   EntryKind    `json:"kind"`
	Move   StepTemplate `json:"move,omitempty"`
	Label  string       `json:"label,omitempty"`
	Target int          `json:"target,omitempty"`
	Line   int          `json:"line"`
}

func (e Entry) String() string {
	switch e.Kind {
	case EntryLabel:
		return "label " + e.Label
	case EntryGoto:
		return fmt.Sprintf("goto %s (#%d)", e.Label, e.Target)
	default:
		m := e.Move
		return fmt.Sprintf("move %s, %s, %s, %s, %s, %s, %t",
			m.Actor, formatOffset(m.PauseAnchor, m.Pause), formatOffset(m.TimeoutAnchor, m.Timeout),
			m.MobileAgent, m.Origin, m.Destination, m.ForceRestart)
	}
}

func formatOffset(a Anchor, ms int64) string {
	if ms < 0 {
		return ""
	}
	return fmt.Sprintf("%s%dms", a.Prefix(), ms)
}

// Script is an immutable, compiled sequence of entries.
// It is built exactly once and never mutated.
type Script struct {
	ID      UID
	Text    string
	entries []Entry
}

// NewScript builds a script from compiled entries. The slice is copied.
func NewScript(id UID, text string, entries []Entry) *Script {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Script{ID: id, Text: text, entries: cp}
}

// FactID implements Fact.
func (s *Script) FactID() UID { return s.ID }

// Len returns the number of entries.
func (s *Script) Len() int { return len(s.entries) }

// Entry returns the entry at index i by value.
func (s *Script) Entry(i int) Entry { return s.entries[i] }

// Entries returns a copy of all entries.
func (s *Script) Entries() []Entry {
	cp := make([]Entry, len(s.entries))
	copy(cp, s.entries)
	return cp
}

// Steps returns the number of move entries.
func (s *Script) Steps() int {
	n := 0
	for _, e := range s.entries {
		if e.Kind == EntryStep {
			n++
		}
	}
	return n
}

type scriptJSON struct {
	ID      UID     `json:"id"`
	Text    string  `json:"text"`
	Entries []Entry `json:"entries,omitempty"`
}

// MarshalJSON encodes the script with its source text and compiled entries.
func (s *Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(scriptJSON{ID: s.ID, Text: s.Text, Entries: s.entries})
}

// UnmarshalJSON decodes a script. Stores re-compile Text rather than trusting Entries.
func (s *Script) UnmarshalJSON(data []byte) error {
	var aux scriptJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ID, s.Text, s.entries = aux.ID, aux.Text, aux.Entries
	return nil
}
