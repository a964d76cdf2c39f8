package ports

import (
	"context"

	"github.com/aretw0/mobility/pkg/domain"
)

// Record is the serialized form of one fact.
type Record struct {
	Kind domain.FactKind
	ID   domain.UID
	Data []byte
}

// FactRepository defines the interface for persisting facts.
// The engine keeps no durable state of its own: after a restart every live
// proc is reconstructed purely by listing what is stored here.
type FactRepository interface {
	// Save inserts or replaces the record identified by (Kind, ID).
	Save(ctx context.Context, rec Record) error

	// Load retrieves one record.
	// Returns domain.ErrNotFound if it does not exist.
	Load(ctx context.Context, kind domain.FactKind, id domain.UID) (Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, kind domain.FactKind, id domain.UID) error

	// List returns every record of a kind ordered by ID.
	List(ctx context.Context, kind domain.FactKind) ([]Record, error)
}
