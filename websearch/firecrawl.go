package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultFirecrawlBaseURL = "https://api.firecrawl.dev"

// Firecrawl searches the web through the Firecrawl REST API.
type Firecrawl struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type firecrawlSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type firecrawlSearchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    []struct {
		URL         string  `json:"url"`
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Markdown    string  `json:"markdown"`
		Score       float64 `json:"score"`
	} `json:"data"`
}

func NewFirecrawl(apiKey, baseURL string) *Firecrawl {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = defaultFirecrawlBaseURL
	}

	return &Firecrawl{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (f *Firecrawl) Available() bool {
	return f.apiKey != ""
}

func (f *Firecrawl) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !f.Available() {
		return nil, fmt.Errorf("firecrawl is not configured: FIRECRAWL_API_KEY not set")
	}
	if limit <= 0 {
		limit = 3
	}

	body, err := json.Marshal(firecrawlSearchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal firecrawl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create firecrawl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call firecrawl search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			return nil, fmt.Errorf("firecrawl search API error: %s", string(data))
		}
		return nil, fmt.Errorf("firecrawl search API returned status %s", resp.Status)
	}

	var parsed firecrawlSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode firecrawl response: %w", err)
	}
	if !parsed.Success && parsed.Error != "" {
		return nil, fmt.Errorf("firecrawl search error: %s", parsed.Error)
	}

	results := make([]Result, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		content := item.Markdown
		if content == "" {
			content = item.Description
		}
		results = append(results, Result{
			URL:     item.URL,
			Title:   item.Title,
			Content: truncateContent(content),
			Score:   item.Score,
		})
	}

	return results, nil
}

var _ Provider = (*Firecrawl)(nil)
