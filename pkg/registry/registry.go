// Package registry maps agent request kinds to the handlers that carry them out.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/mobility/pkg/domain"
)

// HandlerFunc performs the work a request asks for and reports its outcome.
// The returned code must belong to the request kind's enumeration.
type HandlerFunc func(ctx context.Context, req *domain.Request) (domain.StatusCode, string)

// Registry manages the available request handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.RequestKind]HandlerFunc
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.RequestKind]HandlerFunc),
	}
}

// Register adds a handler for kind, replacing any existing one.
func (r *Registry) Register(kind domain.RequestKind, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = fn
}

// Handle runs the handler registered for the request's kind. Codes outside
// the kind's enumeration are reported as FAILURE.
func (r *Registry) Handle(ctx context.Context, req *domain.Request) (domain.StatusCode, string, error) {
	r.mu.RLock()
	fn, ok := r.handlers[req.Kind]
	r.mu.RUnlock()

	if !ok {
		return domain.StatusNoStatus, "", fmt.Errorf("no handler for request kind %q", req.Kind)
	}

	code, detail := fn(ctx, req)
	if !req.Kind.Allows(code) {
		return domain.StatusFailure, fmt.Sprintf("handler returned %s", code), nil
	}
	return code, detail, nil
}

// Succeed is a handler that always reports the kind's success code.
func Succeed(ctx context.Context, req *domain.Request) (domain.StatusCode, string) {
	return req.Kind.SuccessCode(), ""
}

// Defaults returns a registry where every kind succeeds.
func Defaults() *Registry {
	r := NewRegistry()
	for _, kind := range []domain.RequestKind{domain.KindAdd, domain.KindControl, domain.KindMove, domain.KindRemove, domain.KindTransfer} {
		r.Register(kind, Succeed)
	}
	return r
}
