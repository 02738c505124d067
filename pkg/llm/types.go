// Package llm provides the unified completion interface: symbolic model
// resolution, per-provider circuit breakers, fallback substitution, and
// truncation recovery over OpenAI-compatible chat endpoints.
package llm

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request against a symbolic or concrete model.
// Model may be "auto", a provider name ("google"), or a resolved
// "provider/vendor-id" pair.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// JSONOutput requests a structured JSON object response.
	JSONOutput bool `json:"json_output,omitempty"`
}

// Response is the unified completion result.
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	TokensUsed   int    `json:"tokens_used"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
}

// ProviderState is a point-in-time snapshot of one provider's health.
type ProviderState struct {
	Name         string `json:"name"`
	Model        string `json:"model"`
	Local        bool   `json:"local"`
	BreakerState string `json:"breaker_state"`
	FailureCount int    `json:"failure_count"`
}
