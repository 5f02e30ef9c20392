// Package document handles text extraction, chunking, and the uploaded-file
// store backing the ingestion pipeline.
package document

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const DefaultChunkSize = 512

// ChunkMeta describes one chunk's position within its parent document. It
// travels with the chunk text into the vector store payload.
type ChunkMeta struct {
	DocumentID  string
	Filename    string
	ChunkIndex  int
	Source      string
	TotalChunks int
}

// Processed is the result of extracting and chunking a single document.
type Processed struct {
	Chunks   []string
	Metadata []ChunkMeta
}

type Processor struct {
	chunkSize int
	logger    *zap.Logger
}

func NewProcessor(chunkSize int, logger *zap.Logger) *Processor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{chunkSize: chunkSize, logger: logger}
}

// Extract returns the plain text of the file at path, dispatching on its
// extension. Unsupported formats and unreadable files are reported as errors.
func (p *Processor) Extract(path string) (string, error) {
	text, err := extractText(path)
	if err != nil {
		p.logger.Warn("text extraction failed", zap.String("path", path), zap.Error(err))
		return "", err
	}
	return text, nil
}

// Chunk splits text into groups of at most size whitespace-delimited words,
// preserving word order. The final chunk may be shorter. Empty or
// whitespace-only input yields no chunks.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}

	return chunks
}

// Process extracts the document at path and chunks it, attaching per-chunk
// metadata. It fails when extraction yields no text or chunking yields no
// chunks.
func (p *Processor) Process(path, documentID, filename string) (*Processed, error) {
	text, err := p.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text extracted from %s", filename)
	}

	chunks := Chunk(text, p.chunkSize)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %s", filename)
	}

	metadata := make([]ChunkMeta, len(chunks))
	for idx := range chunks {
		metadata[idx] = ChunkMeta{
			DocumentID:  documentID,
			Filename:    filename,
			ChunkIndex:  idx,
			Source:      path,
			TotalChunks: len(chunks),
		}
	}

	p.logger.Debug("processed document",
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))

	return &Processed{Chunks: chunks, Metadata: metadata}, nil
}
