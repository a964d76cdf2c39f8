package domain

import "fmt"

// Fact is anything published to the fact store.
type Fact interface {
	FactID() UID
}

// FactKind names the storage bucket of a fact.
type FactKind string

const (
	FactScript  FactKind = "script"
	FactProc    FactKind = "proc"
	FactStep    FactKind = "step"
	FactRequest FactKind = "request"
)

// FactKinds lists every kind in rehydration order.
var FactKinds = []FactKind{FactScript, FactRequest, FactStep, FactProc}

// KindOf returns the storage kind of a fact.
func KindOf(f Fact) (FactKind, error) {
	switch f.(type) {
	case *Script:
		return FactScript, nil
	case *Proc:
		return FactProc, nil
	case *Step:
		return FactStep, nil
	case *Request:
		return FactRequest, nil
	default:
		return "", fmt.Errorf("unsupported fact type %T", f)
	}
}
