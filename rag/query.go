package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fabfab/ragstack/llm"
)

// Answer is the query result: the synthesized text and the labels of the
// sources that contributed context (filenames or URLs).
type Answer struct {
	Answer  string
	Sources []string
}

const (
	contextDelimiter = "\n\n---\n\n"
	nothingFound     = "No relevant information was found in the document store or on the web."
)

// Query answers a question in two ordered stages: retrieve context
// (vector search, with a web-search fallback fired only when the local
// result set is empty), then synthesize with a single LLM call.
func (s *Service) Query(ctx context.Context, question string, topK int) (Answer, error) {
	question, err := trimQuestion(question)
	if err != nil {
		return Answer{}, err
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) == 0 {
		return Answer{}, fmt.Errorf("embedder returned no vectors")
	}

	results, err := s.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return Answer{}, fmt.Errorf("vector search: %w", err)
	}

	var (
		items   []string
		sources []string
	)
	if len(results) > 0 {
		seen := make(map[string]struct{}, len(results))
		for _, result := range results {
			items = append(items, fmt.Sprintf("Source: %s\n%s", result.Payload.Filename, result.Text))
			if _, ok := seen[result.Payload.Filename]; !ok {
				seen[result.Payload.Filename] = struct{}{}
				sources = append(sources, result.Payload.Filename)
			}
		}
	} else if s.web != nil && s.web.Available() {
		s.logger.Info("no local results, falling back to web search", zap.String("question", question))

		webResults, err := s.web.Search(ctx, question, defaultTopK)
		if err != nil {
			return Answer{}, fmt.Errorf("web search fallback: %w", err)
		}
		for _, result := range webResults {
			items = append(items, fmt.Sprintf("Source: %s\n%s", result.URL, result.Content))
			sources = append(sources, result.URL)
		}
	}

	contextText := nothingFound
	if len(items) > 0 {
		contextText = strings.Join(items, contextDelimiter)
	}

	answer, err := s.synthesize(ctx, question, contextText)
	if err != nil {
		return Answer{}, err
	}

	return Answer{Answer: answer, Sources: sources}, nil
}

func (s *Service) synthesize(ctx context.Context, question, contextText string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt(question, contextText)},
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}

	return strings.TrimSpace(answer), nil
}

const systemPrompt = "You are a helpful assistant that answers questions using the supplied context. " +
	"Synthesize a clear, accurate answer, cite the listed sources when you draw from them, " +
	"and acknowledge when the context is insufficient instead of guessing."

func userPrompt(question, contextText string) string {
	var sb strings.Builder
	sb.WriteString("Based on the following context, please answer the question.\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(question)
	return sb.String()
}
