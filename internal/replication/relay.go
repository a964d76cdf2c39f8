package replication

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/mobility/pkg/domain"
)

// Change reports whether applying a message modified state.
// Callers re-propagate only on Changed.
type Change int

const (
	Unchanged Change = iota
	Changed
)

func (c Change) String() string {
	if c == Changed {
		return "changed"
	}
	return "unchanged"
}

// Relay kinds shipped with the package.
const (
	KindStep    = "step"
	KindRequest = "request"
)

// ErrUnknownRelayKind is returned for content whose relay kind has no registered factory.
var ErrUnknownRelayKind = errors.New("unknown relay kind")

// Source is the requesting side of a replicated request.
type Source interface {
	RequestID() domain.UID
	RelayKind() string
	// Targets lists every agent the request addresses.
	Targets() []domain.AgentID
	// Content is the immutable payload materialized on each target.
	Content() (json.RawMessage, error)
	// ApplyResponse merges a response received from target.
	ApplyResponse(target domain.AgentID, response json.RawMessage) (Change, error)
	Fact() domain.Fact
}

// Target is the twin materialized on an addressed agent.
type Target interface {
	RequestID() domain.UID
	RelayKind() string
	SourceAgent() domain.AgentID
	// Response returns the value to report back, nil until one is produced.
	Response() any
	// ApplyContent merges a re-delivered content payload.
	ApplyContent(content json.RawMessage) (Change, error)
	Fact() domain.Fact
}

// TargetFactory materializes the twin of a request received from source.
type TargetFactory func(id domain.UID, source domain.AgentID, content json.RawMessage) (Target, error)

// Registry maps relay kinds to the factories that build their twins.
type Registry struct {
	factories map[string]TargetFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]TargetFactory)}
}

// DefaultRegistry returns a registry with the step and request kinds registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindStep, NewStepTarget)
	r.Register(KindRequest, NewRequestTarget)
	return r
}

// Register binds kind to f, replacing any previous factory.
func (r *Registry) Register(kind string, f TargetFactory) {
	r.factories[kind] = f
}

// Lookup returns the factory bound to kind.
func (r *Registry) Lookup(kind string) (TargetFactory, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRelayKind, kind)
	}
	return f, nil
}

// AsSource returns the Source view of a fact, if it is the requesting
// side of a remote request.
func AsSource(f domain.Fact) (Source, bool) {
	switch v := f.(type) {
	case *domain.Step:
		if v.Side == domain.SideSource {
			return StepSource{v}, true
		}
	case *domain.Request:
		if v.Side == domain.SideSource {
			return RequestSource{v}, true
		}
	}
	return nil, false
}

// AsTarget returns the Target view of a fact, if it is a twin.
func AsTarget(f domain.Fact) (Target, bool) {
	switch v := f.(type) {
	case *domain.Step:
		if v.Side == domain.SideTarget {
			return StepTarget{v}, true
		}
	case *domain.Request:
		if v.Side == domain.SideTarget {
			return RequestTarget{v}, true
		}
	}
	return nil, false
}
