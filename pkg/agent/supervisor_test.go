package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

func newTestSupervisor(fake *fakeCompleter) *Supervisor {
	return NewSupervisor("task-1", "openai", fake, 7.0, 2)
}

func critiqueJSON(score float64, verdict string, critical ...string) string {
	issues, _ := json.Marshal(critical)
	return fmt.Sprintf(
		`{"overall_score": %g, "verdict": %q, "rework_required": %t, "critical_issues": %s, "rework_instructions": {"reason": "quality", "priority_fixes": ["fix it"]}}`,
		score, verdict, verdict == "NEEDS_REWORK", issues)
}

func TestSupervisorDecisions(t *testing.T) {
	tests := []struct {
		name     string
		response string
		decision models.SupervisorDecision
		score    float64
	}{
		{
			name:     "high score accepts",
			response: critiqueJSON(9, "ACCEPT"),
			decision: models.DecisionAccept,
			score:    9,
		},
		{
			name:     "mid score below threshold reworks",
			response: critiqueJSON(6, "NEEDS_REWORK"),
			decision: models.DecisionRework,
			score:    6,
		},
		{
			name:     "explicit reject verdict rejects",
			response: critiqueJSON(3, "REJECT"),
			decision: models.DecisionReject,
			score:    3,
		},
		{
			name:     "low score without reject verdict reworks",
			response: critiqueJSON(4, "REVISE"),
			decision: models.DecisionRework,
			score:    4,
		},
		{
			name:     "critical issues force reject despite score",
			response: critiqueJSON(8, "ACCEPT", "fabricated citation"),
			decision: models.DecisionReject,
			score:    8,
		},
		{
			name:     "REVISE verdict normalizes to rework",
			response: critiqueJSON(6, "REVISE"),
			decision: models.DecisionRework,
			score:    6,
		},
		{
			name:     "free text fallback",
			response: "Strong work, well sourced. 9/10, ACCEPT.",
			decision: models.DecisionAccept,
			score:    9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCompleter{responses: []*llm.Response{reply(tt.response)}}
			s := newTestSupervisor(fake)

			c := s.Critique(context.Background(), "research", "agent-1", "the output", "the task", "")

			assert.Equal(t, tt.decision, c.Decision)
			assert.Equal(t, tt.score, c.Score)
			assert.Equal(t, "agent-1", c.AgentID)
			assert.Equal(t, "research", c.AgentType)
			require.Len(t, fake.requests, 1)
			assert.True(t, fake.requests[0].JSONOutput)
		})
	}
}

func TestSupervisorReworkRequiredFlag(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{reply(critiqueJSON(6, "NEEDS_REWORK"))}}
	s := newTestSupervisor(fake)

	c := s.Critique(context.Background(), "analysis", "agent-1", "output", "task", "")

	assert.True(t, c.ReworkRequired)
	assert.Equal(t, "quality", c.ReworkInstructions.Reason)
	assert.Equal(t, []string{"fix it"}, c.ReworkInstructions.FocusAreas)
}

func TestSupervisorReworkCounting(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{
		reply(critiqueJSON(6, "NEEDS_REWORK")),
		reply(critiqueJSON(6, "NEEDS_REWORK")),
		reply(critiqueJSON(6, "NEEDS_REWORK")), // never reached: forced accept
	}}
	s := newTestSupervisor(fake)
	ctx := context.Background()

	first := s.Critique(ctx, "analysis", "agent-1", "draft 1", "task", "")
	assert.Equal(t, models.DecisionRework, first.Decision)
	assert.Equal(t, 1, s.ReworkCount("agent-1"))

	second := s.Critique(ctx, "analysis", "agent-1", "draft 2", "task", "")
	assert.Equal(t, models.DecisionRework, second.Decision)
	assert.Equal(t, 2, s.ReworkCount("agent-1"))

	// At the bound: accepted without spending a model call.
	third := s.Critique(ctx, "analysis", "agent-1", "draft 3", "task", "")
	assert.Equal(t, models.DecisionAccept, third.Decision)
	assert.Equal(t, 7.0, third.Score)
	assert.Equal(t, true, third.Evaluation["forced"])
	assert.Len(t, fake.requests, 2)
	assert.Equal(t, 2, s.ReworkCount("agent-1"))
}

func TestSupervisorLowScoresReachForcedAccept(t *testing.T) {
	// A consistently low-scoring agent must still hit the rework bound.
	fake := &fakeCompleter{responses: []*llm.Response{
		reply(critiqueJSON(4, "REVISE")),
		reply(critiqueJSON(4, "REVISE")),
		reply(critiqueJSON(4, "REVISE")),
	}}
	s := newTestSupervisor(fake)
	ctx := context.Background()

	first := s.Critique(ctx, "research", "agent-1", "draft 1", "task", "")
	assert.Equal(t, models.DecisionRework, first.Decision)

	second := s.Critique(ctx, "research", "agent-1", "draft 2", "task", "")
	assert.Equal(t, models.DecisionRework, second.Decision)
	assert.Equal(t, 2, s.ReworkCount("agent-1"))

	third := s.Critique(ctx, "research", "agent-1", "draft 3", "task", "")
	assert.Equal(t, models.DecisionAccept, third.Decision)
	assert.Equal(t, true, third.Evaluation["forced"])
	assert.Len(t, fake.requests, 2)
}

func TestSupervisorRejectCountsTowardBound(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{
		reply(critiqueJSON(3, "REJECT", "fabricated data")),
		reply(critiqueJSON(3, "REJECT", "fabricated data")),
		reply(critiqueJSON(3, "REJECT", "fabricated data")),
	}}
	s := newTestSupervisor(fake)
	ctx := context.Background()

	first := s.Critique(ctx, "research", "agent-1", "draft 1", "task", "")
	assert.Equal(t, models.DecisionReject, first.Decision)
	assert.Equal(t, 1, s.ReworkCount("agent-1"))

	second := s.Critique(ctx, "research", "agent-1", "draft 2", "task", "")
	assert.Equal(t, models.DecisionReject, second.Decision)

	third := s.Critique(ctx, "research", "agent-1", "draft 3", "task", "")
	assert.Equal(t, models.DecisionAccept, third.Decision)
	assert.Equal(t, true, third.Evaluation["forced"])
	assert.Len(t, fake.requests, 2)
}

func TestSupervisorCountsArePerAgent(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{
		reply(critiqueJSON(6, "NEEDS_REWORK")),
		reply(critiqueJSON(9, "ACCEPT")),
	}}
	s := newTestSupervisor(fake)
	ctx := context.Background()

	s.Critique(ctx, "analysis", "agent-1", "draft", "task", "")
	s.Critique(ctx, "research", "agent-2", "draft", "task", "")

	assert.Equal(t, 1, s.ReworkCount("agent-1"))
	assert.Equal(t, 0, s.ReworkCount("agent-2"))
}

func TestSupervisorLLMFailureAccepts(t *testing.T) {
	fake := &fakeCompleter{errs: []error{errors.New("provider down")}}
	s := newTestSupervisor(fake)

	c := s.Critique(context.Background(), "analysis", "agent-1", "output", "task", "")

	assert.Equal(t, models.DecisionAccept, c.Decision)
	assert.Equal(t, 7.0, c.Score)
	assert.Contains(t, c.Evaluation["error"], "provider down")
	assert.Equal(t, 0, s.ReworkCount("agent-1"))
}

func TestSupervisorUnparseableResponseAccepts(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{reply("looks fine to me")}}
	s := newTestSupervisor(fake)

	c := s.Critique(context.Background(), "analysis", "agent-1", "output", "task", "")

	assert.Equal(t, models.DecisionAccept, c.Decision)
	assert.Equal(t, 7.0, c.Score)
}

func TestNormalizeVerdict(t *testing.T) {
	tests := map[string]string{
		"ACCEPT":                  "ACCEPT",
		"accepted":                "ACCEPT",
		"REJECT":                  "REJECT",
		"REVISE":                  "NEEDS_REWORK",
		"NEEDS_MINOR_IMPROVEMENT": "NEEDS_REWORK",
		"needs_rework":            "NEEDS_REWORK",
		"whatever":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeVerdict(in), in)
	}
}
