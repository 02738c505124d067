package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/swarmos-ai/swarmos/pkg/config"
)

// continueInstruction is appended verbatim on truncation recovery.
const continueInstruction = "Continue from exactly where you left off without repeating anything."

// modelFallbacks maps a vendor model id to a "provider/vendor-id"
// substitute used when the primary provider's breaker is open.
var modelFallbacks = map[string]string{
	"gemini-2.0-flash":         "anthropic/claude-3-5-sonnet-20241022",
	"gemini-1.5-pro":           "anthropic/claude-3-5-sonnet-20241022",
	"claude-sonnet-4-20250514": "openai/gpt-4o",
	"claude-3-5-sonnet-20241022": "openai/gpt-4o",
	"gpt-4o":      "google/gemini-2.0-flash",
	"gpt-4o-mini": "google/gemini-2.0-flash",
}

// Router is the single entry point for completions. It resolves symbolic
// models to concrete provider calls, tracks a circuit breaker per provider,
// substitutes fallbacks when a breaker is open, and recovers length
// truncation with one continuation call.
type Router struct {
	registry  *config.ProviderRegistry
	settings  *config.Settings
	providers map[string]Provider

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	// envMu guards credential env-var override/restore pairs.
	envMu sync.Mutex

	maxRetries uint64
	logger     *slog.Logger
}

// NewRouter builds a router with HTTP providers for every configured
// provider endpoint.
func NewRouter(cfg *config.Config) *Router {
	providers := make(map[string]Provider)
	for _, pc := range cfg.Providers.All() {
		providers[pc.Name] = NewHTTPProvider(pc.Name, pc.APIKey, pc.BaseURL)
	}
	return NewRouterWithProviders(cfg, providers)
}

// NewRouterWithProviders builds a router over caller-supplied providers.
// Used by tests to inject fakes.
func NewRouterWithProviders(cfg *config.Config, providers map[string]Provider) *Router {
	return &Router{
		registry:   cfg.Providers,
		settings:   cfg.Settings,
		providers:  providers,
		breakers:   make(map[string]*CircuitBreaker),
		maxRetries: 2, // 3 attempts total
		logger:     slog.Default().With("component", "llm_router"),
	}
}

// Breaker returns the circuit breaker for a provider, creating it closed.
func (r *Router) Breaker(provider string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[provider]
	if !ok {
		b = NewCircuitBreaker()
		r.breakers[provider] = b
	}
	return b
}

// Completion resolves the request's model, applies breaker-gated fallback,
// executes with retries, and recovers one length truncation.
func (r *Router) Completion(ctx context.Context, req Request) (*Response, error) {
	providerName, model, err := r.resolve(req.Model)
	if err != nil {
		return nil, err
	}

	// Open breaker on the primary: substitute a fallback before the call.
	if r.Breaker(providerName).Allow() != nil {
		fbProvider, fbModel, ok := r.fallbackFor(providerName, model)
		if !ok {
			return nil, fmt.Errorf("%w: breaker open for %s and no fallback reachable", ErrNoProviders, providerName)
		}
		r.logger.Warn("breaker open, substituting fallback",
			"provider", providerName, "fallback_provider", fbProvider, "fallback_model", fbModel)
		providerName, model = fbProvider, fbModel
	}

	resp, err := r.callWithRetry(ctx, providerName, model, req)
	if err != nil {
		return nil, err
	}

	// At most one continuation per call.
	if resp.FinishReason == "length" {
		resp = r.continueTruncated(ctx, providerName, model, req, resp)
	}
	return resp, nil
}

// resolve maps a symbolic model to (provider, vendor model id).
func (r *Router) resolve(model string) (string, string, error) {
	cloud := r.registry.Cloud()

	defaultProvider := func() (*config.ProviderConfig, error) {
		if name := r.settings.DefaultProvider(); name != "" && r.registry.Has(name) {
			return r.registry.Get(name)
		}
		if len(cloud) == 0 {
			return nil, fmt.Errorf("%w: no cloud providers configured", ErrNoProviders)
		}
		return cloud[0], nil
	}

	switch {
	case model == "" || model == "auto":
		// Highest-priority cloud provider; local endpoints are skipped.
		pc, err := defaultProvider()
		if err != nil {
			return "", "", err
		}
		return pc.Name, r.preferredModel(pc), nil

	case r.registry.Has(model):
		pc, _ := r.registry.Get(model)
		return pc.Name, r.preferredModel(pc), nil

	case strings.Contains(model, "/"):
		// provider/vendor-id is treated as already resolved.
		prefix, rest, _ := strings.Cut(model, "/")
		if r.registry.Has(prefix) {
			return prefix, rest, nil
		}
		pc, err := defaultProvider()
		if err != nil {
			return "", "", err
		}
		return pc.Name, model, nil

	default:
		// Bare vendor id on the default provider.
		pc, err := defaultProvider()
		if err != nil {
			return "", "", err
		}
		return pc.Name, model, nil
	}
}

// preferredModel returns the settings preference for a provider, falling
// back to its configured default.
func (r *Router) preferredModel(pc *config.ProviderConfig) string {
	if m := r.settings.ModelFor(pc.Name); m != "" {
		return m
	}
	return pc.DefaultModel
}

// fallbackFor picks a substitute when provider's breaker is open: first the
// static model fallback table, then any cloud provider whose breaker allows.
func (r *Router) fallbackFor(provider, model string) (string, string, bool) {
	if fb, ok := modelFallbacks[model]; ok {
		prefix, rest, found := strings.Cut(fb, "/")
		if found && r.registry.Has(prefix) && prefix != provider && r.Breaker(prefix).Allow() == nil {
			return prefix, rest, true
		}
	}
	for _, pc := range r.registry.Cloud() {
		if pc.Name == provider {
			continue
		}
		if r.Breaker(pc.Name).Allow() == nil {
			return pc.Name, r.preferredModel(pc), true
		}
	}
	return "", "", false
}

// callWithRetry executes the vendor call with exponential backoff. Every
// failed attempt counts against the provider's breaker.
func (r *Router) callWithRetry(ctx context.Context, providerName, model string, req Request) (*Response, error) {
	prov, ok := r.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s not wired", ErrNoProviders, providerName)
	}
	breaker := r.Breaker(providerName)

	vendorReq := req
	vendorReq.Model = model

	var resp *Response
	op := func() error {
		if err := breaker.Allow(); err != nil {
			return backoff.Permanent(&CallError{Provider: providerName, Err: err})
		}
		restore := r.scopeCredentials(providerName)
		out, err := prov.Complete(ctx, vendorReq)
		restore()
		if err != nil {
			breaker.RecordFailure()
			if ctx.Err() != nil {
				return backoff.Permanent(&CallError{Provider: providerName, Err: err})
			}
			return &CallError{Provider: providerName, Err: err}
		}
		breaker.RecordSuccess()
		resp = out
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		r.logger.Error("completion failed", "provider", providerName, "model", model, "error", err)
		return nil, err
	}
	return resp, nil
}

// scopeCredentials overrides the provider's API key env var for the
// duration of the call, returning a restore func that reinstates the
// original value on every exit path.
func (r *Router) scopeCredentials(providerName string) func() {
	pc, err := r.registry.Get(providerName)
	if err != nil || pc.APIKeyEnv == "" || pc.APIKey == "" {
		return func() {}
	}

	r.envMu.Lock()
	orig, had := os.LookupEnv(pc.APIKeyEnv)
	_ = os.Setenv(pc.APIKeyEnv, pc.APIKey)
	r.envMu.Unlock()

	return func() {
		r.envMu.Lock()
		defer r.envMu.Unlock()
		if had {
			_ = os.Setenv(pc.APIKeyEnv, orig)
		} else {
			_ = os.Unsetenv(pc.APIKeyEnv)
		}
	}
}

// continueTruncated issues the single continuation call and concatenates
// the outputs. A continuation failure returns the partial response.
func (r *Router) continueTruncated(ctx context.Context, providerName, model string, req Request, partial *Response) *Response {
	contReq := req
	contReq.Messages = append(append([]Message{}, req.Messages...),
		Message{Role: "assistant", Content: partial.Content},
		Message{Role: "user", Content: continueInstruction},
	)

	cont, err := r.callWithRetry(ctx, providerName, model, contReq)
	if err != nil {
		r.logger.Warn("truncation continuation failed, returning partial output",
			"provider", providerName, "error", err)
		return partial
	}

	return &Response{
		Content:      partial.Content + cont.Content,
		FinishReason: cont.FinishReason,
		TokensUsed:   partial.TokensUsed + cont.TokensUsed,
		Provider:     partial.Provider,
		Model:        partial.Model,
	}
}

// ProviderStatus snapshots every configured provider's model and breaker
// state for the status endpoint.
func (r *Router) ProviderStatus() []ProviderState {
	all := r.registry.All()
	out := make([]ProviderState, 0, len(all))
	for _, pc := range all {
		state, failures := r.Breaker(pc.Name).State()
		out = append(out, ProviderState{
			Name:         pc.Name,
			Model:        r.preferredModel(pc),
			Local:        pc.Local,
			BreakerState: string(state),
			FailureCount: failures,
		})
	}
	return out
}
