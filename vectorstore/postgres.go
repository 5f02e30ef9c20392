package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps vectors in a pgvector-backed table, one table per
// collection, with cosine distance as the similarity metric.
type PostgresStore struct {
	pool       *pgxpool.Pool
	collection string
}

var identifierChars = regexp.MustCompile(`[^a-z0-9_]+`)

// tableName derives a safe SQL identifier from the collection name.
func tableName(collection string) string {
	sanitized := identifierChars.ReplaceAllString(strings.ToLower(collection), "_")
	return "rag_vectors_" + sanitized
}

func NewPostgresStore(ctx context.Context, dsn, collection string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, collection: collection}, nil
}

func (s *PostgresStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("collection dimension must be positive, got %d", dimension)
	}

	table := tableName(s.collection)
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS rag_collections (
			name TEXT PRIMARY KEY,
			dimension INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			content TEXT NOT NULL,
			document_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			chunk_index INT NOT NULL,
			source TEXT,
			total_chunks INT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, table, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_document ON %s(document_id)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING ivfflat (embedding vector_cosine_ops)", table, table),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO rag_collections (name, dimension)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, s.collection, dimension); err != nil {
		return fmt.Errorf("register collection: %w", err)
	}

	return nil
}

func (s *PostgresStore) dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.pool.QueryRow(ctx, "SELECT dimension FROM rag_collections WHERE name = $1", s.collection).Scan(&dim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("collection %q does not exist", s.collection)
		}
		return 0, fmt.Errorf("query collection dimension: %w", err)
	}
	return dim, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	for i, record := range records {
		if len(record.Vector) != dim {
			return fmt.Errorf("record %d has dimension %d, collection %q requires %d",
				i, len(record.Vector), s.collection, dim)
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, content, document_id, filename, chunk_index, source, total_chunks, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tableName(s.collection))

	for _, record := range records {
		payload := record.Payload
		if _, err = tx.Exec(ctx, insert,
			uuid.New(), payload.Text, payload.DocumentID, payload.Filename,
			payload.ChunkIndex, payload.Source, payload.TotalChunks,
			pgvector.NewVector(record.Vector),
		); err != nil {
			return fmt.Errorf("insert record for chunk %d of %s: %w", payload.ChunkIndex, payload.DocumentID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if limit <= 0 {
		limit = 3
	}

	query := fmt.Sprintf(`
		SELECT content, document_id, filename, chunk_index, source, total_chunks,
		       1 - (embedding <=> $1::vector) AS score
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, tableName(s.collection))

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar vectors: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, limit)
	for rows.Next() {
		var item SearchResult
		if err := rows.Scan(&item.Payload.Text, &item.Payload.DocumentID, &item.Payload.Filename,
			&item.Payload.ChunkIndex, &item.Payload.Source, &item.Payload.TotalChunks, &item.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		item.Text = item.Payload.Text
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate search results: %w", rows.Err())
	}

	return results, nil
}

func (s *PostgresStore) DeleteCollection(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName(s.collection))); err != nil {
		return fmt.Errorf("drop collection table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM rag_collections WHERE name = $1", s.collection); err != nil {
		return fmt.Errorf("deregister collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	dim, err := s.dimension(ctx)
	if err != nil {
		return Stats{}, err
	}

	var count int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName(s.collection))).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}

	return Stats{Records: count, Dimension: dim}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
