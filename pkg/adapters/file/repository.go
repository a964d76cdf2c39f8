// Package file stores facts as JSON files on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

// Repository implements ports.FactRepository using the local filesystem.
// Each fact lives at <BasePath>/<kind>/<escaped id>.json.
type Repository struct {
	BasePath string
}

// New creates a new Repository with the given base path.
// If basePath is empty, it defaults to ".mobility/facts".
func New(basePath string) *Repository {
	if basePath == "" {
		basePath = filepath.Join(".mobility", "facts")
	}
	return &Repository{BasePath: basePath}
}

func (r *Repository) dir(kind domain.FactKind) string {
	return filepath.Join(r.BasePath, string(kind))
}

func (r *Repository) path(kind domain.FactKind, id domain.UID) string {
	return filepath.Join(r.dir(kind), url.PathEscape(id.String())+".json")
}

// Save writes the record atomically: temp file, fsync, rename.
func (r *Repository) Save(ctx context.Context, rec ports.Record) error {
	if rec.ID.IsZero() {
		return fmt.Errorf("fact id cannot be empty")
	}

	dir := r.dir(rec.Kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure fact directory: %w", err)
	}
	destPath := r.path(rec.Kind, rec.ID)

	// Same directory as the destination so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(rec.Data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing fact file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads one record.
func (r *Repository) Load(ctx context.Context, kind domain.FactKind, id domain.UID) (ports.Record, error) {
	data, err := os.ReadFile(r.path(kind, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ports.Record{}, domain.ErrNotFound
		}
		return ports.Record{}, fmt.Errorf("failed to read fact file: %w", err)
	}
	return ports.Record{Kind: kind, ID: id, Data: data}, nil
}

// Delete removes the fact file.
func (r *Repository) Delete(ctx context.Context, kind domain.FactKind, id domain.UID) error {
	if err := os.Remove(r.path(kind, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete fact file: %w", err)
	}
	return nil
}

// List reads every fact file of a kind. Leftover temp files are ignored.
func (r *Repository) List(ctx context.Context, kind domain.FactKind) ([]ports.Record, error) {
	entries, err := os.ReadDir(r.dir(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read fact directory: %w", err)
	}

	var ids []domain.UID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "tmp-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		id, err := domain.ParseUID(raw)
		if err != nil || id.IsZero() {
			continue
		}
		ids = append(ids, id)
	}
	domain.SortUIDs(ids)

	out := make([]ports.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Load(ctx, kind, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
