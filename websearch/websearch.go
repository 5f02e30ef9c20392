// Package websearch provides the web-search fallback used when local
// retrieval comes back empty.
package websearch

import (
	"context"

	"github.com/fabfab/ragstack/config"
)

// Result is one web search hit. Content is truncated to at most
// maxContentLength bytes; results are never persisted.
type Result struct {
	URL     string
	Title   string
	Content string
	Score   float64
}

type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)

	// Available reports whether the provider is configured with the
	// credential it needs. Callers must check this before relying on the
	// fallback.
	Available() bool
}

func NewProvider(cfg config.Config) Provider {
	return NewFirecrawl(cfg.FirecrawlAPIKey, cfg.FirecrawlBaseURL)
}

const maxContentLength = 500

func truncateContent(content string) string {
	if len(content) > maxContentLength {
		return content[:maxContentLength]
	}
	return content
}
