package delegator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swarmos-ai/swarmos/pkg/llm"
)

func TestExpandSimpleQueryIsDirect(t *testing.T) {
	e := NewExpander(nil)

	exp := e.Expand(context.Background(), "capitalize the word hello")

	assert.Equal(t, "direct", exp.ExecutionMode)
	assert.Equal(t, []string{"capitalize the word hello"}, exp.ExpandedQueries)
	assert.False(t, exp.RequiresDebate)
	assert.Equal(t, 0.3, exp.ComplexityScore)
}

func TestExpandThresholdDecomposes(t *testing.T) {
	// One indicator lands exactly on the 0.4 threshold, which decomposes.
	e := NewExpander(nil)

	exp := e.Expand(context.Background(), "compile the report and send it")

	assert.InDelta(t, 0.4, exp.ComplexityScore, 1e-9)
	assert.Equal(t, "decompose", exp.ExecutionMode)
}

func TestExpandComplexQueryHeuristicOnly(t *testing.T) {
	e := NewExpander(nil)

	query := "research the market and compare several vendors, then evaluate pricing before choosing"
	exp := e.Expand(context.Background(), query)

	assert.Equal(t, "decompose", exp.ExecutionMode)
	// Without a model the sub-queries degrade to the query itself.
	assert.Equal(t, []string{query}, exp.ExpandedQueries)
	assert.NotEmpty(t, exp.SuggestedAgents)
	// Heuristic complexity above 0.7 flags debate.
	assert.True(t, exp.RequiresDebate)
}

func TestExpandWithModel(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{
		reply(`{"overall": 0.65}`),
		reply(`{
			"clarifications": ["which market?"],
			"intents": ["vendor selection"],
			"sub_queries": ["research current vendor offerings", "compare pricing models", "write a recommendation report"],
			"complexity": 0.75
		}`),
	}}
	e := NewExpander(fake)

	exp := e.Expand(context.Background(), "compare vendors and pick one")

	assert.Equal(t, "decompose", exp.ExecutionMode)
	assert.Equal(t, 0.65, exp.ComplexityScore)
	assert.Len(t, exp.ExpandedQueries, 3)
	assert.Equal(t, []string{"which market?"}, exp.ClarifyingQuestions)
	assert.True(t, exp.RequiresDebate)
	assert.Equal(t, []string{"researcher", "analyst", "synthesizer"}, exp.SuggestedAgents)
}

func TestExpandModelFailureFallsBackToHeuristic(t *testing.T) {
	fake := &fakeCompleter{errs: []error{errors.New("down"), errors.New("down")}}
	e := NewExpander(fake)

	exp := e.Expand(context.Background(), "analyze the data and compare the results")

	assert.Equal(t, "decompose", exp.ExecutionMode)
	assert.Equal(t, []string{"analyze the data and compare the results"}, exp.ExpandedQueries)
}

func TestLexicalComplexityCaps(t *testing.T) {
	query := "analyze and compare and evaluate and assess multiple various different several things before and after then or"
	assert.Equal(t, 0.9, lexicalComplexity(query))
}

func TestSuggestAgents(t *testing.T) {
	agents := suggestAgents([]string{
		"research the latest benchmarks",
		"implement a comparison script",
		"review the methodology",
		"summarize the findings",
		"weigh the tradeoffs",
	})
	assert.Equal(t, []string{"researcher", "coder", "reviewer", "synthesizer", "analyst"}, agents)
}
