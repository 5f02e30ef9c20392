package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps vectors in a local SQLite file, encoding each vector as
// a little-endian float32 blob and scoring candidates in process with cosine
// similarity. It serves the embedded deployment mode; no server required.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

func NewSQLiteStore(path, collection string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return &SQLiteStore{db: db, collection: collection}, nil
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("collection dimension must be positive, got %d", dimension)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vectors (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			content TEXT NOT NULL,
			document_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			source TEXT,
			total_chunks INTEGER NOT NULL,
			embedding BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_collection ON vectors(collection)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimension) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		s.collection, dimension,
	); err != nil {
		return fmt.Errorf("register collection: %w", err)
	}

	return nil
}

func (s *SQLiteStore) dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", s.collection).Scan(&dim)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("collection %q does not exist", s.collection)
		}
		return 0, fmt.Errorf("query collection dimension: %w", err)
	}
	return dim, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) (err error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `
		INSERT INTO vectors (id, collection, content, document_id, filename, chunk_index, source, total_chunks, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, record := range records {
		payload := record.Payload
		if _, err = tx.ExecContext(ctx, insert,
			uuid.NewString(), s.collection, payload.Text, payload.DocumentID, payload.Filename,
			payload.ChunkIndex, payload.Source, payload.TotalChunks, encodeVector(record.Vector),
		); err != nil {
			return fmt.Errorf("insert record for chunk %d of %s: %w", payload.ChunkIndex, payload.DocumentID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if limit <= 0 {
		limit = 3
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content, document_id, filename, chunk_index, source, total_chunks, embedding
		FROM vectors
		WHERE collection = ?
	`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var (
			item   SearchResult
			source sql.NullString
			blob   []byte
		)
		if err := rows.Scan(&item.Payload.Text, &item.Payload.DocumentID, &item.Payload.Filename,
			&item.Payload.ChunkIndex, &source, &item.Payload.TotalChunks, &blob); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		item.Payload.Source = source.String
		item.Text = item.Payload.Text

		candidate, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode stored vector: %w", err)
		}
		if len(candidate) != len(vector) {
			return nil, fmt.Errorf("stored vector dimension %d does not match query dimension %d", len(candidate), len(vector))
		}

		item.Score = cosineSimilarity(vector, candidate)
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate vector rows: %w", rows.Err())
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (s *SQLiteStore) DeleteCollection(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE collection = ?", s.collection); err != nil {
		return fmt.Errorf("delete collection vectors: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", s.collection); err != nil {
		return fmt.Errorf("deregister collection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	dim, err := s.dimension(ctx)
	if err != nil {
		return Stats{}, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vectors WHERE collection = ?", s.collection,
	).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}

	return Stats{Records: count, Dimension: dim}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, value := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(value))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*SQLiteStore)(nil)
