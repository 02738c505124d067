package delegator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmos-ai/swarmos/pkg/config"
	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

// fakeCompleter returns scripted responses in order and records every
// request it saw.
type fakeCompleter struct {
	responses []*llm.Response
	errs      []error
	requests  []llm.Request
}

func (f *fakeCompleter) Completion(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &llm.Response{Content: "{}"}, nil
}

func reply(content string) *llm.Response {
	return &llm.Response{Content: content, Provider: "fake", Model: "fake-model"}
}

func testRegistry() *config.ProviderRegistry {
	r := config.NewProviderRegistry()
	r.Register(&config.ProviderConfig{Name: "google", Priority: 1})
	r.Register(&config.ProviderConfig{Name: "anthropic", Priority: 2})
	r.Register(&config.ProviderConfig{Name: "openai", Priority: 3})
	r.Register(&config.ProviderConfig{Name: "ollama", Priority: 100, Local: true})
	return r
}

const analysisFiveRoles = `{
	"task_interpretation": "market entry study",
	"main_tasks": ["size the market", "map competitors", "model pricing"],
	"research_approach": "primary sources first",
	"agent_config": [
		{"role": "Market Researcher", "capability": "RESEARCH", "expertise": "market sizing"},
		{"role": "Financial Analyst", "capability": "ANALYSIS", "expertise": "pricing models"},
		{"role": "Systems Architect", "capability": "CODING", "expertise": "integration costs"},
		{"role": "Security Auditor", "capability": "REVIEW", "expertise": "compliance"},
		{"role": "Report Writer", "capability": "SYNTHESIS", "expertise": "executive summaries"}
	],
	"requires_debate": false,
	"complexity": 0.6,
	"reasoning": "five complementary perspectives"
}`

const decomposeFive = `{"subtasks": [
	"Research the addressable market with current figures",
	"Model three pricing scenarios with assumptions stated",
	"Estimate integration engineering cost",
	"Audit the plan for compliance gaps",
	"Draft the executive summary"
]}`

func TestCreatePlanDynamicRoles(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{reply(analysisFiveRoles), reply(decomposeFive)}}
	d := New(fake, testRegistry())

	plan, err := d.CreatePlan(context.Background(), "should we enter the market", "auto")

	require.NoError(t, err)
	require.Len(t, plan.AgentsNeeded, 5)
	assert.Equal(t, models.StrategySequential, plan.ExecutionStrategy)
	assert.Equal(t, 0.6, plan.ComplexityScore)
	assert.Equal(t, "market entry study", plan.TaskInterpretation)
	assert.Len(t, plan.MainTasksIdentified, 3)

	// Dynamic role labels are preserved verbatim.
	assert.Equal(t, "Systems Architect", plan.AgentsNeeded[2].AgentType)
	assert.Equal(t, models.CapabilityCoding, plan.AgentsNeeded[2].Capability)
	assert.Equal(t, models.CapabilitySynthesis, plan.AgentsNeeded[4].Capability)

	// Each agent got its own decomposed subtask.
	seen := make(map[string]bool)
	for _, a := range plan.AgentsNeeded {
		assert.NotEmpty(t, a.SubtaskDescription)
		assert.False(t, seen[a.SubtaskDescription], "duplicate subtask")
		seen[a.SubtaskDescription] = true
	}
}

func TestCreatePlanProviderPinning(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{reply(analysisFiveRoles), reply(decomposeFive)}}
	d := New(fake, testRegistry())

	plan, err := d.CreatePlan(context.Background(), "study the market", "anthropic")

	require.NoError(t, err)
	for _, a := range plan.AgentsNeeded {
		assert.Equal(t, "anthropic", a.Provider)
	}
}

func TestCreatePlanAutoBalancesProviders(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{reply(analysisFiveRoles), reply(decomposeFive)}}
	d := New(fake, testRegistry())

	plan, err := d.CreatePlan(context.Background(), "study the market", "auto")

	require.NoError(t, err)
	counts := make(map[string]int)
	for _, a := range plan.AgentsNeeded {
		assert.NotEqual(t, "ollama", a.Provider, "local provider must not be assigned")
		counts[a.Provider]++
	}
	// Round-robin over three cloud providers: per-provider counts differ
	// by at most one.
	min, max := len(plan.AgentsNeeded), 0
	for _, name := range []string{"google", "anthropic", "openai"} {
		if counts[name] < min {
			min = counts[name]
		}
		if counts[name] > max {
			max = counts[name]
		}
	}
	assert.LessOrEqual(t, max-min, 1)
}

func TestCreatePlanPadsToFloor(t *testing.T) {
	analysis := `{
		"task_interpretation": "small task",
		"main_tasks": ["one thing"],
		"agent_config": [
			{"role": "researcher", "capability": "RESEARCH", "expertise": "digging"},
			{"role": "Data Scientist", "capability": "ANALYSIS", "expertise": "stats"}
		],
		"complexity": 0.4
	}`
	fake := &fakeCompleter{responses: []*llm.Response{reply(analysis), reply(`{"subtasks": ["a", "b", "c", "d"]}`)}}
	d := New(fake, testRegistry())

	plan, err := d.CreatePlan(context.Background(), "do the thing", "auto")

	require.NoError(t, err)
	require.Len(t, plan.AgentsNeeded, 4)
	// Padding skips standard roles already planned.
	assert.Equal(t, "researcher", plan.AgentsNeeded[0].AgentType)
	assert.Equal(t, "analyst", plan.AgentsNeeded[2].AgentType)
	assert.Equal(t, "coder", plan.AgentsNeeded[3].AgentType)
}

func TestCreatePlanAnalysisFailure(t *testing.T) {
	fake := &fakeCompleter{errs: []error{errors.New("provider down"), errors.New("provider down")}}
	d := New(fake, testRegistry())

	plan, err := d.CreatePlan(context.Background(), "do the thing", "auto")

	require.NoError(t, err)
	require.Len(t, plan.AgentsNeeded, 4)
	assert.Equal(t, models.StrategySequential, plan.ExecutionStrategy)
	assert.Equal(t, "do the thing", plan.TaskInterpretation)
	assert.Equal(t, 0.5, plan.ComplexityScore)
	for _, a := range plan.AgentsNeeded {
		assert.NotEmpty(t, a.SubtaskDescription)
	}
}

func TestCreatePlanDebateStrategy(t *testing.T) {
	analysis := `{
		"task_interpretation": "contested decision",
		"agent_config": [
			{"role": "Advocate", "capability": "ANALYSIS"},
			{"role": "Skeptic", "capability": "REVIEW"},
			{"role": "Economist", "capability": "ANALYSIS"},
			{"role": "Historian", "capability": "RESEARCH"}
		],
		"requires_debate": true,
		"complexity": 0.8
	}`
	fake := &fakeCompleter{responses: []*llm.Response{reply(analysis), reply(`{"subtasks": ["a", "b", "c", "d"]}`)}}
	d := New(fake, testRegistry())

	plan, err := d.CreatePlan(context.Background(), "is this policy sound", "auto")

	require.NoError(t, err)
	assert.Equal(t, models.StrategyDebate, plan.ExecutionStrategy)
	assert.True(t, plan.RequiresDebate)
}

func TestDecomposeFallbackDistributesMainTasks(t *testing.T) {
	fake := &fakeCompleter{errs: []error{nil, errors.New("provider down")}, responses: []*llm.Response{reply(`{
		"task_interpretation": "the study",
		"main_tasks": ["aspect one", "aspect two", "aspect three", "aspect four"],
		"agent_config": [
			{"role": "A", "capability": "ANALYSIS"},
			{"role": "B", "capability": "ANALYSIS"},
			{"role": "C", "capability": "ANALYSIS"},
			{"role": "D", "capability": "ANALYSIS"}
		]
	}`)}}
	d := New(fake, testRegistry())

	plan, err := d.CreatePlan(context.Background(), "study it", "auto")

	require.NoError(t, err)
	require.Len(t, plan.AgentsNeeded, 4)
	assert.Contains(t, plan.AgentsNeeded[0].SubtaskDescription, "aspect one")
	assert.Contains(t, plan.AgentsNeeded[3].SubtaskDescription, "aspect four")
}

func TestNormalizeCapability(t *testing.T) {
	tests := []struct {
		raw      string
		role     string
		expected models.Capability
	}{
		{"RESEARCH", "whatever", models.CapabilityResearch},
		{"CODING", "whatever", models.CapabilityCoding},
		{"REVIEW", "whatever", models.CapabilityReview},
		{"SYNTHESIS", "whatever", models.CapabilitySynthesis},
		{"ANALYSIS", "whatever", models.CapabilityAnalysis},
		{"", "Security Auditor", models.CapabilityReview},
		{"", "Backend Engineer", models.CapabilityCoding},
		{"", "Technical Writer", models.CapabilitySynthesis},
		{"nonsense", "Mystery Guest", models.CapabilityAnalysis},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeCapability(tt.raw, tt.role), tt.raw+"/"+tt.role)
	}
}
