package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

type recordKey struct {
	kind domain.FactKind
	id   domain.UID
}

// Repository implements ports.FactRepository in memory.
// Safe for concurrent use. It survives a Blackboard being rebuilt, which
// makes it the cheapest way to exercise rehydration.
type Repository struct {
	data map[recordKey][]byte
	mu   sync.RWMutex
}

// NewRepository creates a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		data: make(map[recordKey][]byte),
	}
}

// Save stores a copy of the record data.
func (r *Repository) Save(ctx context.Context, rec ports.Record) error {
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[recordKey{rec.Kind, rec.ID}] = data
	return nil
}

// Load retrieves a record.
func (r *Repository) Load(ctx context.Context, kind domain.FactKind, id domain.UID) (ports.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.data[recordKey{kind, id}]
	if !ok {
		return ports.Record{}, domain.ErrNotFound
	}
	return ports.Record{Kind: kind, ID: id, Data: append([]byte(nil), data...)}, nil
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, kind domain.FactKind, id domain.UID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, recordKey{kind, id})
	return nil
}

// List returns the records of a kind ordered by ID.
func (r *Repository) List(ctx context.Context, kind domain.FactKind) ([]ports.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ports.Record
	for k, data := range r.data {
		if k.kind == kind {
			out = append(out, ports.Record{Kind: kind, ID: k.id, Data: append([]byte(nil), data...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out, nil
}
