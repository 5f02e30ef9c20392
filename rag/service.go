// Package rag wires the pipeline: document processing and indexing on the
// ingestion path, retrieval with web fallback and LLM synthesis on the query
// path. The two query stages run strictly in sequence; there is no agent
// framework and no re-planning.
package rag

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fabfab/ragstack/document"
	"github.com/fabfab/ragstack/embeddings"
	"github.com/fabfab/ragstack/llm"
	"github.com/fabfab/ragstack/vectorstore"
	"github.com/fabfab/ragstack/websearch"
)

const defaultTopK = 3

// Options identify the configured providers, for reporting only.
type Options struct {
	EmbeddingProvider string
	VectorBackend     string
	TopK              int
}

// SystemInfo is a snapshot of the pipeline's configuration and state.
type SystemInfo struct {
	EmbeddingProvider  string
	VectorBackend      string
	WebSearchAvailable bool
	Records            int
	Dimension          int
}

type Service struct {
	store     vectorstore.Store
	embedder  embeddings.Embedder
	llm       llm.Client
	web       websearch.Provider
	processor *document.Processor
	logger    *zap.Logger
	opts      Options
	dimension int
}

func NewService(
	store vectorstore.Store,
	embedder embeddings.Embedder,
	llmClient llm.Client,
	web websearch.Provider,
	processor *document.Processor,
	logger *zap.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}

	return &Service{
		store:     store,
		embedder:  embedder,
		llm:       llmClient,
		web:       web,
		processor: processor,
		logger:    logger,
		opts:      opts,
	}
}

// Init discovers the embedding dimension and provisions the collection.
// It must be called once before ingesting or querying.
func (s *Service) Init(ctx context.Context) error {
	dim, err := embeddings.Dimension(ctx, s.embedder)
	if err != nil {
		return err
	}
	if err := s.store.EnsureCollection(ctx, dim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	s.dimension = dim
	s.logger.Info("collection ready", zap.Int("dimension", dim))
	return nil
}

// Dimension returns the embedding dimension probed by Init.
func (s *Service) Dimension() int {
	return s.dimension
}

// IngestFile processes the file at path and indexes its chunks under the
// given document ID. It returns the number of chunks created.
func (s *Service) IngestFile(ctx context.Context, path, documentID, filename string) (int, error) {
	processed, err := s.processor.Process(path, documentID, filename)
	if err != nil {
		return 0, err
	}

	vectors, err := s.embedder.Embed(ctx, processed.Chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks of %s: %w", filename, err)
	}
	if len(vectors) != len(processed.Chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(processed.Chunks), len(vectors))
	}

	records := make([]vectorstore.Record, len(processed.Chunks))
	for i, chunk := range processed.Chunks {
		meta := processed.Metadata[i]
		records[i] = vectorstore.Record{
			Vector: vectors[i],
			Payload: vectorstore.Payload{
				Text:        chunk,
				DocumentID:  meta.DocumentID,
				Filename:    meta.Filename,
				ChunkIndex:  meta.ChunkIndex,
				Source:      meta.Source,
				TotalChunks: meta.TotalChunks,
			},
		}
	}

	if err := s.store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("index chunks of %s: %w", filename, err)
	}

	s.logger.Info("ingested document",
		zap.String("document_id", documentID),
		zap.String("filename", filename),
		zap.Int("chunks", len(records)))

	return len(records), nil
}

// IngestDirectory ingests every supported file under dir. A failure on one
// file is logged and does not abort the batch. It returns the counts of
// files and chunks ingested.
func (s *Service) IngestDirectory(ctx context.Context, dir string, newDocumentID func() string) (int, int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if document.SupportedExtension(filepath.Ext(d.Name())) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("walk directory %s: %w", dir, err)
	}

	files, chunks := 0, 0
	for _, path := range paths {
		count, err := s.IngestFile(ctx, path, newDocumentID(), filepath.Base(path))
		if err != nil {
			s.logger.Warn("ingest failed, skipping file", zap.String("path", path), zap.Error(err))
			continue
		}
		files++
		chunks += count
	}

	return files, chunks, nil
}

// Reset drops the collection and recreates it empty at the same dimension.
func (s *Service) Reset(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("service is not initialized")
	}
	if err := s.store.DeleteCollection(ctx); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := s.store.EnsureCollection(ctx, s.dimension); err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	return nil
}

// Info reports the pipeline's configuration and collection stats.
func (s *Service) Info(ctx context.Context) (SystemInfo, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return SystemInfo{}, fmt.Errorf("collection stats: %w", err)
	}

	return SystemInfo{
		EmbeddingProvider:  s.opts.EmbeddingProvider,
		VectorBackend:      s.opts.VectorBackend,
		WebSearchAvailable: s.web != nil && s.web.Available(),
		Records:            stats.Records,
		Dimension:          stats.Dimension,
	}, nil
}

func trimQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question cannot be empty")
	}
	return question, nil
}
