package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "mobility:"

// Repository implements ports.FactRepository using Redis.
// Each fact is a string key holding its JSON; a set per kind indexes them.
type Repository struct {
	client *backend.Client
	prefix string
}

type Option func(*Repository)

// WithPrefix sets the key prefix, typically one per node.
func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.prefix = prefix
	}
}

// New creates a new Redis repository with options.
func New(address, password string, db int, opts ...Option) *Repository {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis repository from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Repository {
	repo := &Repository{
		client: client,
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		opt(repo)
	}

	return repo
}

func (r *Repository) key(kind domain.FactKind, id domain.UID) string {
	return r.prefix + string(kind) + ":" + id.String()
}

func (r *Repository) indexKey(kind domain.FactKind) string {
	return r.prefix + string(kind) + ":index"
}

// Save persists the record and indexes it in one pipeline.
func (r *Repository) Save(ctx context.Context, rec ports.Record) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(rec.Kind, rec.ID), rec.Data, 0)
	pipe.SAdd(ctx, r.indexKey(rec.Kind), rec.ID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a record from Redis.
func (r *Repository) Load(ctx context.Context, kind domain.FactKind, id domain.UID) (ports.Record, error) {
	val, err := r.client.Get(ctx, r.key(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return ports.Record{}, domain.ErrNotFound
		}
		return ports.Record{}, fmt.Errorf("failed to get from redis: %w", err)
	}
	return ports.Record{Kind: kind, ID: id, Data: val}, nil
}

// Delete removes the record and its index entry.
func (r *Repository) Delete(ctx context.Context, kind domain.FactKind, id domain.UID) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(kind, id))
	pipe.SRem(ctx, r.indexKey(kind), id.String())

	_, err := pipe.Exec(ctx)
	return err
}

// List reads the kind's index and fetches every record with one MGET.
// Index entries whose key vanished are pruned.
func (r *Repository) List(ctx context.Context, kind domain.FactKind) ([]ports.Record, error) {
	members, err := r.client.SMembers(ctx, r.indexKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]domain.UID, 0, len(members))
	for _, m := range members {
		id, err := domain.ParseUID(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt %s index: %w", kind, err)
		}
		ids = append(ids, id)
	}
	domain.SortUIDs(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(kind, id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", kind, err)
	}

	out := make([]ports.Record, 0, len(ids))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			r.client.SRem(ctx, r.indexKey(kind), ids[i].String())
			continue
		}
		out = append(out, ports.Record{Kind: kind, ID: ids[i], Data: []byte(s)})
	}
	return out, nil
}

// Close closes the redis client.
func (r *Repository) Close() error {
	return r.client.Close()
}
