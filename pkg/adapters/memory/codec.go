package memory

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/mobility/internal/compiler"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

// EncodeFact serializes a fact into a repository record.
func EncodeFact(f domain.Fact) (ports.Record, error) {
	kind, err := domain.KindOf(f)
	if err != nil {
		return ports.Record{}, err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return ports.Record{}, fmt.Errorf("encode %s %s: %w", kind, f.FactID(), err)
	}
	return ports.Record{Kind: kind, ID: f.FactID(), Data: data}, nil
}

// DecodeFact rebuilds a fact from a record. Scripts are recompiled from
// their text; parsing is deterministic so the entries come back identical.
func DecodeFact(rec ports.Record) (domain.Fact, error) {
	var (
		f   domain.Fact
		err error
	)
	switch rec.Kind {
	case domain.FactScript:
		var s domain.Script
		if err = json.Unmarshal(rec.Data, &s); err == nil {
			f, err = compiler.NewParser().Compile(s.ID, s.Text)
		}
	case domain.FactProc:
		var p domain.Proc
		err = json.Unmarshal(rec.Data, &p)
		f = &p
	case domain.FactStep:
		var s domain.Step
		err = json.Unmarshal(rec.Data, &s)
		f = &s
	case domain.FactRequest:
		var q domain.Request
		err = json.Unmarshal(rec.Data, &q)
		f = &q
	default:
		return nil, fmt.Errorf("decode %s: unknown fact kind %q", rec.ID, rec.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", rec.Kind, rec.ID, err)
	}
	return f, nil
}
