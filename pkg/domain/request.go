package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RequestKind tags one of the agent request families.
type RequestKind string

const (
	KindAdd      RequestKind = "add"
	KindControl  RequestKind = "control"
	KindMove     RequestKind = "move"
	KindRemove   RequestKind = "remove"
	KindTransfer RequestKind = "transfer"
)

// StatusCode is a request completion code. Each kind accepts a closed subset.
type StatusCode int

const (
	StatusNoStatus StatusCode = iota
	StatusCreated
	StatusAlreadyExists
	StatusRemoved
	StatusDoesNotExist
	StatusMoved
	StatusAlreadyMoved
	StatusTransferred
	StatusFailure
)

var statusCodeNames = [...]string{
	"NONE", "CREATED", "ALREADY_EXISTS", "REMOVED", "DOES_NOT_EXIST",
	"MOVED", "ALREADY_MOVED", "TRANSFERRED", "FAILURE",
}

func (c StatusCode) String() string {
	if c < 0 || int(c) >= len(statusCodeNames) {
		return fmt.Sprintf("StatusCode(%d)", int(c))
	}
	return statusCodeNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c StatusCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *StatusCode) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, n := range statusCodeNames {
		if n == name {
			*c = StatusCode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status code %q", string(text))
}

var kindStatuses = map[RequestKind][]StatusCode{
	KindAdd:      {StatusCreated, StatusAlreadyExists, StatusFailure},
	KindRemove:   {StatusRemoved, StatusDoesNotExist, StatusFailure},
	KindMove:     {StatusMoved, StatusAlreadyMoved, StatusFailure},
	KindTransfer: {StatusTransferred, StatusFailure},
	KindControl: {
		StatusCreated, StatusAlreadyExists, StatusRemoved, StatusDoesNotExist,
		StatusMoved, StatusAlreadyMoved, StatusFailure,
	},
}

// Valid reports whether k is one of the known kinds.
func (k RequestKind) Valid() bool {
	_, ok := kindStatuses[k]
	return ok
}

// Statuses returns the terminal codes the kind accepts, NONE excluded.
func (k RequestKind) Statuses() []StatusCode {
	codes := kindStatuses[k]
	cp := make([]StatusCode, len(codes))
	copy(cp, codes)
	return cp
}

// Allows reports whether code belongs to the kind's enumeration.
func (k RequestKind) Allows(code StatusCode) bool {
	for _, c := range kindStatuses[k] {
		if c == code {
			return true
		}
	}
	return false
}

// SuccessCode is the code a handler reports when the work was done.
func (k RequestKind) SuccessCode() StatusCode {
	switch k {
	case KindAdd:
		return StatusCreated
	case KindRemove:
		return StatusRemoved
	case KindMove, KindControl:
		return StatusMoved
	case KindTransfer:
		return StatusTransferred
	default:
		return StatusNoStatus
	}
}

// Request is a one-shot, replicated agent request. Its status starts at
// NONE and may be set exactly once.
type Request struct {
	ID     UID
	Owner  UID
	Kind   RequestKind
	Source AgentID
	Target AgentID
	Ticket Ticket
	Side   Side

	completion Completion
}

// NewRequest builds the requesting side of a request. The target defaults to
// the ticket's mobile agent; a request with neither is rejected with ErrNoTarget.
func NewRequest(id, owner UID, kind RequestKind, source, target AgentID, ticket Ticket) (*Request, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if target == "" {
		target = ticket.MobileAgent
	}
	if target == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTarget, ticket)
	}
	side := SideSource
	if target == source {
		side = SideLocal
	}
	if ticket.ID == "" {
		ticket.ID = id.String()
	}
	return &Request{ID: id, Owner: owner, Kind: kind, Source: source, Target: target, Ticket: ticket, Side: side}, nil
}

// NewRequestTwin materializes the target side of a request.
func NewRequestTwin(id, owner UID, kind RequestKind, source, target AgentID, ticket Ticket) *Request {
	return &Request{ID: id, Owner: owner, Kind: kind, Source: source, Target: target, Ticket: ticket, Side: SideTarget}
}

// FactID implements Fact.
func (r *Request) FactID() UID { return r.ID }

// Status returns the current completion (unset while pending).
func (r *Request) Status() Completion { return r.completion }

// SetStatus completes the request. A second call, or a code outside the
// kind's enumeration, panics: both signal a protocol bug upstream.
func (r *Request) SetStatus(code StatusCode, detail string) {
	if !r.Kind.Allows(code) {
		panic(fmt.Errorf("%w: %s does not accept %s", ErrStatusNotAllowed, r.Kind, code))
	}
	next, err := r.completion.Complete(code, detail)
	if err != nil {
		panic(fmt.Errorf("request %s: %w", r.ID, err))
	}
	r.completion = next
}

// Mirror applies a completion received from the target twin. An unset or
// identical completion changes nothing; a differing second completion panics.
func (r *Request) Mirror(c Completion) bool {
	if !c.IsSet() || c == r.completion {
		return false
	}
	r.SetStatus(c.Code, c.Detail)
	return true
}

// Clone returns a copy of the request.
func (r *Request) Clone() *Request {
	cp := *r
	return &cp
}

type requestJSON struct {
	ID     UID         `json:"id"`
	Owner  UID         `json:"owner"`
	Kind   RequestKind `json:"kind"`
	Source AgentID     `json:"source"`
	Target AgentID     `json:"target"`
	Ticket Ticket      `json:"ticket"`
	Side   Side        `json:"side"`
	Status Completion  `json:"status"`
}

// MarshalJSON implements json.Marshaler.
func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestJSON{
		ID: r.ID, Owner: r.Owner, Kind: r.Kind, Source: r.Source,
		Target: r.Target, Ticket: r.Ticket, Side: r.Side, Status: r.completion,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	var aux requestJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Request{
		ID: aux.ID, Owner: aux.Owner, Kind: aux.Kind, Source: aux.Source,
		Target: aux.Target, Ticket: aux.Ticket, Side: aux.Side, completion: aux.Status,
	}
	return nil
}
