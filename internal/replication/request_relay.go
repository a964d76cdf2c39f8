package replication

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/mobility/pkg/domain"
)

type requestContent struct {
	Owner  domain.UID         `json:"owner"`
	Kind   domain.RequestKind `json:"kind"`
	Source domain.AgentID     `json:"source"`
	Target domain.AgentID     `json:"target"`
	Ticket domain.Ticket      `json:"ticket"`
}

// RequestSource relays a Source-side agent request. Its response is the
// twin's completion.
type RequestSource struct{ Request *domain.Request }

func (s RequestSource) RequestID() domain.UID { return s.Request.ID }
func (s RequestSource) RelayKind() string { return KindRequest }
func (s RequestSource) Targets() []domain.AgentID { return []domain.AgentID{s.Request.Target} }
func (s RequestSource) Fact() domain.Fact { return s.Request }

func (s RequestSource) Content() (json.RawMessage, error) {
	r := s.Request
	return json.Marshal(requestContent{Owner: r.Owner, Kind: r.Kind, Source: r.Source, Target: r.Target, Ticket: r.Ticket})
}

func (s RequestSource) ApplyResponse(target domain.AgentID, response json.RawMessage) (Change, error) {
	if target != s.Request.Target {
		return Unchanged, fmt.Errorf("request %s: response from %s, expected %s", s.Request.ID, target, s.Request.Target)
	}
	var c domain.Completion
	if err := json.Unmarshal(response, &c); err != nil {
		return Unchanged, fmt.Errorf("request %s: decode completion: %w", s.Request.ID, err)
	}
	if c.IsSet() && !s.Request.Kind.Allows(c.Code) {
		return Unchanged, fmt.Errorf("request %s: %w: %s", s.Request.ID, domain.ErrStatusNotAllowed, c.Code)
	}
	if s.Request.Mirror(c) {
		return Changed, nil
	}
	return Unchanged, nil
}

// RequestTarget relays the twin of a remote agent request.
type RequestTarget struct{ Request *domain.Request }

// NewRequestTarget is the TargetFactory for agent requests.
func NewRequestTarget(id domain.UID, source domain.AgentID, content json.RawMessage) (Target, error) {
	var c requestContent
	if err := json.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("request %s: decode content: %w", id, err)
	}
	if !c.Kind.Valid() {
		return nil, fmt.Errorf("request %s: %w: %q", id, domain.ErrUnknownKind, c.Kind)
	}
	if c.Source != source {
		return nil, fmt.Errorf("request %s: content claims source %s, sent by %s", id, c.Source, source)
	}
	return RequestTarget{domain.NewRequestTwin(id, c.Owner, c.Kind, c.Source, c.Target, c.Ticket)}, nil
}

func (t RequestTarget) RequestID() domain.UID { return t.Request.ID }
func (t RequestTarget) RelayKind() string { return KindRequest }
func (t RequestTarget) SourceAgent() domain.AgentID { return t.Request.Source }
func (t RequestTarget) Fact() domain.Fact { return t.Request }

func (t RequestTarget) Response() any {
	c := t.Request.Status()
	if !c.IsSet() {
		return nil
	}
	return c
}

func (t RequestTarget) ApplyContent(json.RawMessage) (Change, error) {
	return Unchanged, nil
}
