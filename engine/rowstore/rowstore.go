// Package rowstore persists documents, chunks, chat interactions, and
// feedback in Postgres, alongside the weighted full-text index that backs
// the lexical half of hybrid retrieval. Every query is tenant-scoped.
package rowstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds Postgres connection settings.
type Config struct {
	DSN       string
	MaxConns  int
	VectorDim int
}

// Store is the sole owner of all Postgres access.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("rowstore: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("rowstore: connect: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.ensureSchema(ctx, cfg.VectorDim); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// nullString maps an empty optional string attribute to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
