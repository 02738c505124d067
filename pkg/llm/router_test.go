package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmos-ai/swarmos/pkg/config"
)

// fakeProvider returns scripted responses in order, then repeats the last.
type fakeProvider struct {
	mu        sync.Mutex
	name      string
	responses []*Response
	errs      []error
	calls     []Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	if f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.responses[i], nil
}

func scripted(name string, steps ...any) *fakeProvider {
	f := &fakeProvider{name: name}
	for _, s := range steps {
		switch v := s.(type) {
		case *Response:
			f.responses = append(f.responses, v)
			f.errs = append(f.errs, nil)
		case error:
			f.responses = append(f.responses, nil)
			f.errs = append(f.errs, v)
		}
	}
	return f
}

func ok(content string) *Response {
	return &Response{Content: content, FinishReason: "stop", TokensUsed: 10}
}

func testConfig(t *testing.T, providers ...*config.ProviderConfig) *config.Config {
	t.Helper()
	reg := config.NewProviderRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	settings, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return &config.Config{Providers: reg, Settings: settings}
}

func TestRouter_AutoSkipsLocal(t *testing.T) {
	cfg := testConfig(t,
		&config.ProviderConfig{Name: "ollama", DefaultModel: "llama3.2", Priority: 0, Local: true},
		&config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1},
		&config.ProviderConfig{Name: "anthropic", DefaultModel: "claude-sonnet-4-20250514", Priority: 2},
	)
	google := scripted("google", ok("hi"))
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": google})

	resp, err := r.Completion(context.Background(), Request{Model: "auto", Messages: []Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "gemini-2.0-flash", google.calls[0].Model, "auto resolves to the highest-priority cloud model")
}

func TestRouter_ProviderNameResolvesPreferredModel(t *testing.T) {
	cfg := testConfig(t, &config.ProviderConfig{Name: "anthropic", DefaultModel: "claude-sonnet-4-20250514", Priority: 1})
	require.NoError(t, cfg.Settings.Update("", map[string]string{"anthropic": "claude-3-5-haiku-20241022"}))

	anthropic := scripted("anthropic", ok("y"))
	r := NewRouterWithProviders(cfg, map[string]Provider{"anthropic": anthropic})

	_, err := r.Completion(context.Background(), Request{Model: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", anthropic.calls[0].Model)
}

func TestRouter_SlashModelIsAlreadyResolved(t *testing.T) {
	cfg := testConfig(t, &config.ProviderConfig{Name: "openai", DefaultModel: "gpt-4o", Priority: 1})
	openai := scripted("openai", ok("z"))
	r := NewRouterWithProviders(cfg, map[string]Provider{"openai": openai})

	_, err := r.Completion(context.Background(), Request{Model: "openai/gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", openai.calls[0].Model)
}

func TestRouter_RetriesThenSucceeds(t *testing.T) {
	cfg := testConfig(t, &config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1})
	google := scripted("google", errors.New("http 500"), errors.New("http 500"), ok("third time"))
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": google})

	resp, err := r.Completion(context.Background(), Request{Model: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "third time", resp.Content)
	assert.Len(t, google.calls, 3)

	// Failures counted, then reset by the success.
	state, failures := r.Breaker("google").State()
	assert.Equal(t, BreakerClosed, state)
	assert.Equal(t, 0, failures)
}

func TestRouter_AllRetriesFailSurfacesCallError(t *testing.T) {
	cfg := testConfig(t, &config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1})
	google := scripted("google", errors.New("quota exceeded"))
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": google})

	_, err := r.Completion(context.Background(), Request{Model: "auto"})
	require.Error(t, err)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "google", callErr.Provider)
	assert.Len(t, google.calls, 3, "default retry policy is 3 attempts")
}

func TestRouter_OpenBreakerSubstitutesFallback(t *testing.T) {
	cfg := testConfig(t,
		&config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1},
		&config.ProviderConfig{Name: "anthropic", DefaultModel: "claude-sonnet-4-20250514", Priority: 2},
	)
	google := scripted("google", errors.New("down"))
	anthropic := scripted("anthropic", ok("fallback answer"))
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": google, "anthropic": anthropic})

	// Trip google's breaker.
	for i := 0; i < 5; i++ {
		r.Breaker("google").RecordFailure()
	}

	resp, err := r.Completion(context.Background(), Request{Model: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", resp.Content)
	assert.Empty(t, google.calls, "primary must not be called while its breaker is open")
	assert.Equal(t, "claude-3-5-sonnet-20241022", anthropic.calls[0].Model, "fallback table picks the substitute model")
}

func TestRouter_AllBreakersOpenIsNoProviders(t *testing.T) {
	cfg := testConfig(t, &config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1})
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": scripted("google", ok("x"))})

	for i := 0; i < 5; i++ {
		r.Breaker("google").RecordFailure()
	}

	_, err := r.Completion(context.Background(), Request{Model: "auto"})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestRouter_TruncationRecoveryConcatenates(t *testing.T) {
	cfg := testConfig(t, &config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1})
	google := scripted("google",
		&Response{Content: "first half ", FinishReason: "length", TokensUsed: 100},
		&Response{Content: "second half", FinishReason: "stop", TokensUsed: 50},
	)
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": google})

	resp, err := r.Completion(context.Background(), Request{Model: "auto", Messages: []Message{{Role: "user", Content: "long"}}})
	require.NoError(t, err)
	assert.Equal(t, "first half second half", resp.Content)
	assert.Equal(t, 150, resp.TokensUsed)
	require.Len(t, google.calls, 2)

	cont := google.calls[1]
	require.Len(t, cont.Messages, 3)
	assert.Equal(t, "assistant", cont.Messages[1].Role)
	assert.Equal(t, "first half ", cont.Messages[1].Content)
	assert.Equal(t, continueInstruction, cont.Messages[2].Content)
}

func TestRouter_OneContinuationAtMost(t *testing.T) {
	cfg := testConfig(t, &config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1})
	google := scripted("google",
		&Response{Content: "a", FinishReason: "length"},
		&Response{Content: "b", FinishReason: "length"},
	)
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": google})

	resp, err := r.Completion(context.Background(), Request{Model: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "ab", resp.Content)
	assert.Len(t, google.calls, 2, "a still-truncated continuation is returned as-is")
}

func TestRouter_CredentialScopeRestoresEnv(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "original")
	cfg := testConfig(t, &config.ProviderConfig{
		Name: "google", APIKey: "scoped", APIKeyEnv: "GOOGLE_API_KEY",
		DefaultModel: "gemini-2.0-flash", Priority: 1,
	})

	var seen string
	probe := &envProbeProvider{key: "GOOGLE_API_KEY", seen: &seen}
	r := NewRouterWithProviders(cfg, map[string]Provider{"google": probe})

	_, err := r.Completion(context.Background(), Request{Model: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "scoped", seen, "key overridden during the call")
	assert.Equal(t, "original", mustGetenv(t, "GOOGLE_API_KEY"), "original restored after the call")
}

type envProbeProvider struct {
	key  string
	seen *string
}

func (p *envProbeProvider) Name() string { return "google" }

func (p *envProbeProvider) Complete(_ context.Context, _ Request) (*Response, error) {
	*p.seen = mustLookup(p.key)
	return ok("done"), nil
}

func mustLookup(key string) string {
	v, _ := os.LookupEnv(key)
	return v
}

func mustGetenv(t *testing.T, key string) string {
	t.Helper()
	v, found := os.LookupEnv(key)
	require.True(t, found)
	return v
}

func TestRouter_ProviderStatusSnapshot(t *testing.T) {
	cfg := testConfig(t,
		&config.ProviderConfig{Name: "google", DefaultModel: "gemini-2.0-flash", Priority: 1},
		&config.ProviderConfig{Name: "ollama", DefaultModel: "llama3.2", Priority: 100, Local: true},
	)
	r := NewRouterWithProviders(cfg, nil)
	r.Breaker("google").RecordFailure()

	status := r.ProviderStatus()
	require.Len(t, status, 2)
	assert.Equal(t, "google", status[0].Name)
	assert.Equal(t, string(BreakerClosed), status[0].BreakerState)
	assert.Equal(t, 1, status[0].FailureCount)
	assert.True(t, status[1].Local)
}
