package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swarmos-ai/swarmos/pkg/llm"
)

// SearchHit is one web search result row.
type SearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// SearchVendor is a pluggable web search backend.
type SearchVendor interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// WebSearchTool dispatches to the vendor selected at startup. Preference
// order by configured credentials: tavily, then brave, then the
// model-grounded fallback.
type WebSearchTool struct {
	vendor SearchVendor
}

// NewWebSearchTool picks the first available vendor. The grounded
// fallback is always available when a router is supplied.
func NewWebSearchTool(tavilyKey, braveKey string, router *llm.Router, timeout time.Duration) *WebSearchTool {
	client := &http.Client{Timeout: timeout}

	var vendor SearchVendor
	switch {
	case tavilyKey != "":
		vendor = &tavilyVendor{apiKey: tavilyKey, client: client}
	case braveKey != "":
		vendor = &braveVendor{apiKey: braveKey, client: client}
	default:
		vendor = &groundedVendor{router: router}
	}
	slog.Info("web search vendor selected", "vendor", vendor.Name())

	return &WebSearchTool{vendor: vendor}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Params: query (string), max_results (int, default 5)."
}

// Execute runs the search and shapes the hits for the caller.
func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	query := stringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	maxResults := intParam(params, "max_results", 5)

	hits, err := t.vendor.Search(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search failed (%s): %w", t.vendor.Name(), err)
	}

	return map[string]any{
		"query":   query,
		"vendor":  t.vendor.Name(),
		"results": hits,
	}, nil
}

// --- tavily ---

type tavilyVendor struct {
	apiKey string
	client *http.Client
}

func (v *tavilyVendor) Name() string { return "tavily" }

func (v *tavilyVendor) Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":     v.apiKey,
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.tavily.com/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tavily API %d: %s", resp.StatusCode, string(raw))
	}

	var data struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("tavily parse error: %w", err)
	}

	hits := make([]SearchHit, 0, len(data.Results))
	for _, r := range data.Results {
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return hits, nil
}

// --- brave ---

type braveVendor struct {
	apiKey string
	client *http.Client
}

func (v *braveVendor) Name() string { return "brave" }

func (v *braveVendor) Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error) {
	u := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(query), maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave API %d: %s", resp.StatusCode, string(raw))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave parse error: %w", err)
	}

	hits := make([]SearchHit, 0, len(data.Web.Results))
	for _, r := range data.Web.Results {
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Content: r.Description})
	}
	return hits, nil
}

// --- model-grounded fallback ---

// groundedVendor asks a model with native grounded search to act as the
// search backend when no vendor credential is configured.
type groundedVendor struct {
	router *llm.Router
}

func (v *groundedVendor) Name() string { return "grounded" }

func (v *groundedVendor) Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error) {
	if v.router == nil {
		return nil, fmt.Errorf("no search vendor configured and no model available")
	}

	prompt := fmt.Sprintf(
		"Search the web for %q and return a JSON array of up to %d results, each "+
			`{"title": string, "url": string, "content": string}. Return only the JSON array.`,
		query, maxResults)

	resp, err := v.router.Completion(ctx, llm.Request{
		Model:       "google",
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	if err := json.Unmarshal([]byte(extractJSONArray(resp.Content)), &hits); err != nil {
		// Not parseable: surface the model's answer as one result.
		return []SearchHit{{Title: query, Content: resp.Content}}, nil
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

// extractJSONArray trims surrounding prose or fencing around a JSON array.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
