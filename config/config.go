// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type ProviderConfig struct {
	Provider string
	Model    string
}

type Config struct {
	Embeddings ProviderConfig
	LLM        ProviderConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	FirecrawlAPIKey  string
	FirecrawlBaseURL string

	VectorBackend  string
	SQLitePath     string
	PostgresDSN    string
	CollectionName string

	UploadDir string
	ChunkSize int
	TopK      int
	HTTPAddr  string
}

func Load() Config {
	return Config{
		Embeddings: ProviderConfig{
			Provider: getEnv("EMBEDDING_PROVIDER", ProviderOllama),
			Model:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		},
		LLM: ProviderConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOllama),
			Model:    getEnv("LLM_MODEL", "llama3.1"),
		},
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		FirecrawlAPIKey:  getEnv("FIRECRAWL_API_KEY", ""),
		FirecrawlBaseURL: getEnv("FIRECRAWL_BASE_URL", ""),
		VectorBackend:    getEnv("VECTOR_BACKEND", BackendSQLite),
		SQLitePath:       getEnv("SQLITE_PATH", "./ragstack.db"),
		PostgresDSN:      getEnv("POSTGRES_DSN", "postgres://localhost:5432/ragstack?sslmode=disable"),
		CollectionName:   getEnv("COLLECTION_NAME", "documents"),
		UploadDir:        getEnv("UPLOAD_DIR", "./uploads"),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 512),
		TopK:             getEnvInt("TOP_K_RESULTS", 3),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
	}
}

// Validate reports configuration problems that should stop the process from
// serving at all, rather than surfacing on the first request.
func (c Config) Validate() error {
	if c.Embeddings.Provider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("openai embedding provider selected but OPENAI_API_KEY not set")
	}
	if c.LLM.Provider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("openai llm provider selected but OPENAI_API_KEY not set")
	}
	switch c.Embeddings.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Embeddings.Provider)
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	switch c.VectorBackend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unknown vector backend: %s", c.VectorBackend)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", c.TopK)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
