// Package vectorstore persists embedding vectors in named collections and
// serves nearest-neighbor queries over them. Two backends share the same
// contract: an embedded SQLite store and a networked Postgres/pgvector store.
// The backend is chosen at construction and fixed for the store's lifetime.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/fabfab/ragstack/config"
)

// Payload is the metadata stored alongside each vector.
type Payload struct {
	Text        string
	DocumentID  string
	Filename    string
	ChunkIndex  int
	Source      string
	TotalChunks int
}

// Record is one vector plus its payload. IDs are assigned by the store on
// upsert; a caller-supplied ID is ignored.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult is one similarity hit, ordered by descending score.
type SearchResult struct {
	Text    string
	Payload Payload
	Score   float64
}

// Stats describes a collection.
type Stats struct {
	Records   int
	Dimension int
}

type Store interface {
	// EnsureCollection creates the collection with the given vector
	// dimension if it does not exist. Existing collections are left as-is.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts the records as a batch, assigning each a fresh ID.
	// Vectors whose length differs from the collection dimension are
	// rejected before anything is written.
	Upsert(ctx context.Context, records []Record) error

	// Search returns up to limit results ordered by descending cosine
	// similarity. An empty collection yields an empty slice, not an error.
	Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)

	// DeleteCollection drops the collection and all of its records.
	DeleteCollection(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// New constructs the store named by cfg.VectorBackend.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.VectorBackend {
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath, cfg.CollectionName)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, cfg.CollectionName)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", cfg.VectorBackend)
	}
}
