package rag

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fabfab/ragstack/document"
	"github.com/fabfab/ragstack/llm"
	"github.com/fabfab/ragstack/vectorstore"
)

// bagOfWordsEmbedder is a deterministic embedder: identical texts map to
// identical vectors, so the round-trip ranking property of the store can be
// exercised without a real model.
type bagOfWordsEmbedder struct{}

func (bagOfWordsEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 16)
		for _, word := range strings.Fields(text) {
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[h.Sum32()%16]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func TestPipelineIngestThenQuery(t *testing.T) {
	dir := t.TempDir()

	// Two chunks with disjoint vocabularies so their vectors differ.
	chunk1 := strings.TrimSpace(strings.Repeat("alpha beta gamma delta epsilon ", 100))
	chunk2 := strings.TrimSpace(strings.Repeat("zeta eta theta iota kappa ", 100))
	path := filepath.Join(dir, "corpus.txt")
	if err := os.WriteFile(path, []byte(chunk1+" "+chunk2), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store, err := vectorstore.NewSQLiteStore(filepath.Join(dir, "vectors.db"), "documents")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()

	llmStub := &stubLLM{answer: "final answer"}
	svc := NewService(
		store,
		bagOfWordsEmbedder{},
		llmStub,
		&stubWeb{},
		document.NewProcessor(500, nil),
		nil,
		Options{EmbeddingProvider: "test", VectorBackend: "sqlite", TopK: 3},
	)

	ctx := context.Background()
	if err := svc.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	chunks, err := svc.IngestFile(ctx, path, "doc-1", "corpus.txt")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", chunks)
	}

	// Querying with chunk 2's own vocabulary must surface chunk 2's text
	// in the context handed to synthesis.
	answer, err := svc.Query(ctx, "zeta eta theta iota kappa", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if answer.Answer != "final answer" {
		t.Fatalf("answer %q", answer.Answer)
	}

	var userPromptText string
	for _, msg := range llmStub.prompts {
		if msg.Role == llm.RoleUser {
			userPromptText = msg.Content
		}
	}
	if !strings.Contains(userPromptText, "zeta eta theta") {
		t.Fatal("chunk 2 text missing from synthesis context")
	}
	if strings.Contains(userPromptText, "alpha beta gamma") {
		t.Fatal("chunk 1 text should not be in a top-1 context for a chunk-2 query")
	}
}

func TestPipelineDuplicateIngestIsNotDeduplicated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("repeatable content here"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store, err := vectorstore.NewSQLiteStore(filepath.Join(dir, "vectors.db"), "documents")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()

	svc := NewService(
		store,
		bagOfWordsEmbedder{},
		&stubLLM{answer: "x"},
		&stubWeb{},
		document.NewProcessor(500, nil),
		nil,
		Options{TopK: 3},
	)

	ctx := context.Background()
	if err := svc.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := svc.IngestFile(ctx, path, "doc-a", "doc.txt"); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := svc.IngestFile(ctx, path, "doc-b", "doc.txt"); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Records != 2 {
		t.Fatalf("expected duplicate records for repeated ingestion, got %d", stats.Records)
	}
}
