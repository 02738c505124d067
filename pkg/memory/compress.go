package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Context is the assembled working set handed to an agent: conversation
// history, retrieved documents, and memory entry contents.
type Context struct {
	History   []HistoryTurn `json:"history,omitempty"`
	Documents []string      `json:"documents,omitempty"`
	Memories  []string      `json:"memories,omitempty"`
}

// HistoryTurn is one conversational exchange in the context.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// providerLimits maps a normalized model family to its context window in
// tokens. Unknown families use the auto default.
var providerLimits = map[string]int{
	"gemini":   1_000_000,
	"claude":   200_000,
	"gpt-4o":   128_000,
	"llama3.2": 8_192,
	"auto":     100_000,
}

const (
	// compressionThreshold: contexts under this share of the window pass
	// through untouched.
	compressionThreshold = 0.9
	// historyKeepTurns is how many recent turns survive summarization.
	historyKeepTurns = 5
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// tokenEncoding returns the shared cl100k_base encoder. A single stable
// encoding is good enough for estimates across all vendors.
func tokenEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoding, encodingErr
}

// CountTokens estimates the token count of text. Falls back to a
// chars/4 heuristic if the encoder cannot be initialized.
func CountTokens(text string) int {
	enc, err := tokenEncoding()
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// ProviderLimit returns the context window for a provider or model name.
func ProviderLimit(provider string) int {
	normalized := strings.ToLower(provider)
	for family, limit := range providerLimits {
		if strings.Contains(normalized, family) {
			return limit
		}
	}
	// Provider names map onto families.
	switch normalized {
	case "google":
		return providerLimits["gemini"]
	case "anthropic":
		return providerLimits["claude"]
	case "openai":
		return providerLimits["gpt-4o"]
	case "ollama", "local":
		return providerLimits["llama3.2"]
	}
	return providerLimits["auto"]
}

// Compress fits a context into the provider's window. Under 90% of the
// limit the context passes through unchanged; otherwise history is
// summarized to the last 5 turns, documents are truncated to limit/4
// tokens each, and memories are capped at limit/1000 entries.
func Compress(c *Context, provider string) *Context {
	limit := ProviderLimit(provider)
	if estimateContext(c) <= int(float64(limit)*compressionThreshold) {
		return c
	}

	out := &Context{}

	if len(c.History) > historyKeepTurns {
		dropped := len(c.History) - historyKeepTurns
		out.History = append(out.History, HistoryTurn{
			Role:    "system",
			Content: fmt.Sprintf("[%d earlier turns summarized away]", dropped),
		})
		out.History = append(out.History, c.History[dropped:]...)
	} else {
		out.History = c.History
	}

	docBudget := limit / 4
	for _, doc := range c.Documents {
		out.Documents = append(out.Documents, truncateToTokens(doc, docBudget))
	}

	maxMemories := limit / 1000
	if maxMemories < 1 {
		maxMemories = 1
	}
	if len(c.Memories) > maxMemories {
		out.Memories = c.Memories[:maxMemories]
	} else {
		out.Memories = c.Memories
	}

	return out
}

func estimateContext(c *Context) int {
	total := 0
	for _, t := range c.History {
		total += CountTokens(t.Content)
	}
	for _, d := range c.Documents {
		total += CountTokens(d)
	}
	for _, m := range c.Memories {
		total += CountTokens(m)
	}
	return total
}

// truncateToTokens clips text to at most maxTokens tokens.
func truncateToTokens(text string, maxTokens int) string {
	enc, err := tokenEncoding()
	if err != nil {
		// chars/4 heuristic fallback
		if len(text) > maxTokens*4 {
			return text[:maxTokens*4]
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
