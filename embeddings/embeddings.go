// Package embeddings maps text to fixed-dimension vectors through
// interchangeable provider backends.
package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/ragstack/config"
)

type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

// dimensionProbe is the text embedded once at startup to discover the
// backend's vector dimension, which then fixes the collection dimension.
const dimensionProbe = "test"

// Dimension discovers the embedder's vector dimension empirically.
func Dimension(ctx context.Context, e Embedder) (int, error) {
	vectors, err := e.Embed(ctx, []string{dimensionProbe})
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("embedder returned an empty probe vector")
	}
	return len(vectors[0]), nil
}
