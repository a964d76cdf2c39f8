// Package sqlite stores facts in an embedded SQLite database.
//
// The database runs in WAL mode so an admin process can read while the
// node writes. Writes are retried on transient lock contention.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"

	_ "modernc.org/sqlite"
)

// Repository implements ports.FactRepository on SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*Repository, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS facts (
		kind       TEXT    NOT NULL,
		owner      TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		data       BLOB    NOT NULL,
		updated_at TEXT    NOT NULL,
		PRIMARY KEY (kind, owner, seq)
	);`)
	return err
}

// Save upserts the record.
func (r *Repository) Save(ctx context.Context, rec ports.Record) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOp(defaultRetryConfig, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO facts (kind, owner, seq, data, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (kind, owner, seq) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			string(rec.Kind), string(rec.ID.Owner), rec.ID.Seq, rec.Data, now)
		if err != nil {
			return fmt.Errorf("save %s %s: %w", rec.Kind, rec.ID, err)
		}
		return nil
	})
}

// Load retrieves one record.
func (r *Repository) Load(ctx context.Context, kind domain.FactKind, id domain.UID) (ports.Record, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM facts WHERE kind = ? AND owner = ? AND seq = ?`,
		string(kind), string(id.Owner), id.Seq).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return ports.Record{}, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	return ports.Record{Kind: kind, ID: id, Data: data}, nil
}

// Delete removes one record.
func (r *Repository) Delete(ctx context.Context, kind domain.FactKind, id domain.UID) error {
	return retryOp(defaultRetryConfig, func() error {
		_, err := r.db.ExecContext(ctx,
			`DELETE FROM facts WHERE kind = ? AND owner = ? AND seq = ?`,
			string(kind), string(id.Owner), id.Seq)
		return err
	})
}

// List returns every record of a kind ordered by owner, then sequence.
func (r *Repository) List(ctx context.Context, kind domain.FactKind) ([]ports.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT owner, seq, data FROM facts WHERE kind = ? ORDER BY owner, seq`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []ports.Record
	for rows.Next() {
		var (
			owner string
			seq   int64
			data  []byte
		)
		if err := rows.Scan(&owner, &seq, &data); err != nil {
			return nil, err
		}
		out = append(out, ports.Record{Kind: kind, ID: domain.UID{Owner: domain.AgentID(owner), Seq: seq}, Data: data})
	}
	return out, rows.Err()
}
