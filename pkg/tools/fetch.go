package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// fetchClipChars caps the text returned by fetch_url.
const fetchClipChars = 10_000

// FetchURLTool downloads a page and extracts its readable text.
type FetchURLTool struct {
	client *http.Client
}

// NewFetchURLTool creates the tool with the given network timeout.
func NewFetchURLTool(timeout time.Duration) *FetchURLTool {
	return &FetchURLTool{client: &http.Client{Timeout: timeout}}
}

func (t *FetchURLTool) Name() string { return "fetch_url" }

func (t *FetchURLTool) Description() string {
	return "Fetch a URL and extract its readable text content. Params: url (string)."
}

// Execute fetches the page, extracts text via readability with a
// tag-stripping fallback, and clips to 10,000 characters.
func (t *FetchURLTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	rawURL := stringParam(params, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("url parameter is required")
	}

	text, err := t.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	truncated := false
	if len(text) > fetchClipChars {
		text = text[:fetchClipChars]
		truncated = true
	}

	return map[string]any{
		"url":       rawURL,
		"content":   text,
		"truncated": truncated,
	}, nil
}

func (t *FetchURLTool) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SwarmOS/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	html := string(body)

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	return stripHTML(html), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// stripHTML is the crude fallback when readability cannot parse a page.
func stripHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
