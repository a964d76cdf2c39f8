package ports_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

// MockRepository is a minimal FactRepository used to exercise the contract suite itself.
type MockRepository struct {
	mu   sync.Mutex
	data map[domain.FactKind]map[domain.UID][]byte
}

func NewMockRepository() *MockRepository {
	return &MockRepository{data: make(map[domain.FactKind]map[domain.UID][]byte)}
}

func (m *MockRepository) Save(ctx context.Context, rec ports.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[rec.Kind] == nil {
		m.data[rec.Kind] = make(map[domain.UID][]byte)
	}
	m.data[rec.Kind][rec.ID] = append([]byte(nil), rec.Data...)
	return nil
}

func (m *MockRepository) Load(ctx context.Context, kind domain.FactKind, id domain.UID) (ports.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[kind][id]
	if !ok {
		return ports.Record{}, domain.ErrNotFound
	}
	return ports.Record{Kind: kind, ID: id, Data: data}, nil
}

func (m *MockRepository) Delete(ctx context.Context, kind domain.FactKind, id domain.UID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[kind], id)
	return nil
}

func (m *MockRepository) List(ctx context.Context, kind domain.FactKind) ([]ports.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ports.Record
	for id, data := range m.data[kind] {
		out = append(out, ports.Record{Kind: kind, ID: id, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out, nil
}

func TestFactRepository_Contract(t *testing.T) {
	ports.RunFactRepositoryContract(t, NewMockRepository())
}
