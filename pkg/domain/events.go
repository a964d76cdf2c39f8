package domain

import (
	"context"
	"fmt"
)

// Op is the kind of change a fact store notification describes.
type Op int

const (
	OpAdd Op = iota
	OpChange
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

type ProcEvent struct {
	Op   Op
	Proc *Proc
}

type ScriptEvent struct {
	Op     Op
	Script *Script
}

type StepEvent struct {
	Op   Op
	Step *Step
}

type RequestEvent struct {
	Op      Op
	Request *Request
}

// Batch is one turn's worth of notifications, one typed stream per fact kind,
// each in publication order.
type Batch struct {
	Scripts  []ScriptEvent
	Procs    []ProcEvent
	Steps    []StepEvent
	Requests []RequestEvent
}

// Empty reports whether the batch carries no events.
func (b Batch) Empty() bool {
	return len(b.Scripts) == 0 && len(b.Procs) == 0 && len(b.Steps) == 0 && len(b.Requests) == 0
}

// Len returns the total number of events.
func (b Batch) Len() int {
	return len(b.Scripts) + len(b.Procs) + len(b.Steps) + len(b.Requests)
}

// RelayEvent describes one envelope crossing the replication layer.
type RelayEvent struct {
	Direction string // "out" or "in"
	Envelope  Envelope
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStepCreated  func(context.Context, *Step)
	OnStepFinished func(context.Context, *Step)
	OnProcFinished func(context.Context, *Proc, StepState)
	OnLoopGuard    func(context.Context, *Proc)
	OnRelay        func(context.Context, RelayEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepCreated:  chain2(h.OnStepCreated, other.OnStepCreated),
		OnStepFinished: chain2(h.OnStepFinished, other.OnStepFinished),
		OnProcFinished: chain3(h.OnProcFinished, other.OnProcFinished),
		OnLoopGuard:    chain2(h.OnLoopGuard, other.OnLoopGuard),
		OnRelay:        chain2(h.OnRelay, other.OnRelay),
	}
}

func chain2[T any](a, b func(context.Context, T)) func(context.Context, T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}

func chain3[T, U any](a, b func(context.Context, T, U)) func(context.Context, T, U) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T, u U) {
		a(ctx, v, u)
		b(ctx, v, u)
	}
}
