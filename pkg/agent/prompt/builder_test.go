package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmos-ai/swarmos/pkg/models"
)

func TestProcess(t *testing.T) {
	out, err := Process(ProcessInput{
		RoleLabel:    "Market Researcher",
		Capability:   models.CapabilityResearch,
		Subtask:      "find adoption numbers",
		OriginalTask: "write a market report",
		Memories:     []string{"prior finding A", "prior finding B"},
	})

	require.NoError(t, err)
	assert.Contains(t, out, "Market Researcher")
	assert.Contains(t, out, "research specialist")
	assert.Contains(t, out, "find adoption numbers")
	assert.Contains(t, out, "write a market report")
	assert.Contains(t, out, "prior finding A")
	assert.NotContains(t, out, "REWORK REQUIRED")
}

func TestProcessUnknownCapabilityFallsBackToAnalysis(t *testing.T) {
	out, err := Process(ProcessInput{
		RoleLabel:  "Wildcard",
		Capability: models.Capability("juggling"),
		Subtask:    "do something",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "analytical specialist")
}

func TestProcessReworkSection(t *testing.T) {
	out, err := Process(ProcessInput{
		RoleLabel:  "Analyst",
		Capability: models.CapabilityAnalysis,
		Subtask:    "analyze",
		Rework: &ReworkContext{
			Score:           6.5,
			Decision:        "REWORK",
			Feedback:        "needs citations",
			Instruction:     "add at least three sources",
			PreviousAttempt: "the old draft",
		},
	})

	require.NoError(t, err)
	assert.Contains(t, out, "REWORK REQUIRED")
	assert.Contains(t, out, "6.5/10")
	assert.Contains(t, out, "needs citations")
	assert.Contains(t, out, "add at least three sources")
	assert.Contains(t, out, "the old draft")
}

func TestProcessClipsLongPreviousAttempt(t *testing.T) {
	long := strings.Repeat("x", previousAttemptClip+500)
	rework := &ReworkContext{Feedback: "too long", PreviousAttempt: long}

	out, err := Process(ProcessInput{
		RoleLabel:  "Analyst",
		Capability: models.CapabilityAnalysis,
		Subtask:    "analyze",
		Rework:     rework,
	})

	require.NoError(t, err)
	assert.NotContains(t, out, long)
	assert.Contains(t, out, strings.Repeat("x", previousAttemptClip)+"…")
	// Caller's struct is untouched.
	assert.Len(t, rework.PreviousAttempt, previousAttemptClip+500)
}

func TestProposal(t *testing.T) {
	out, err := Proposal(ProposalInput{
		Topic:            "which database",
		Round:            2,
		PreviousProposal: "use postgres",
		Critiques:        []string{"ignored operational cost"},
	})

	require.NoError(t, err)
	assert.Contains(t, out, "which database")
	assert.Contains(t, out, "Round 2")
	assert.Contains(t, out, "use postgres")
	assert.Contains(t, out, "ignored operational cost")
}

func TestCritique(t *testing.T) {
	out, err := Critique(CritiqueInput{Topic: "topic", Proposal: "the claim"})

	require.NoError(t, err)
	assert.Contains(t, out, "the claim")
	assert.Contains(t, out, `"strengths"`)
	assert.Contains(t, out, `"weaknesses"`)
	assert.Contains(t, out, `"score"`)
}

func TestVote(t *testing.T) {
	out, err := Vote("topic", []VoteCandidate{
		{ID: "prop-1", Summary: "first position"},
		{ID: "prop-2", Summary: "second position"},
	})

	require.NoError(t, err)
	assert.Contains(t, out, "[prop-1] first position")
	assert.Contains(t, out, "[prop-2] second position")
}

func TestSupervisor(t *testing.T) {
	out, err := Supervisor(SupervisorInput{
		AgentType:       "research",
		TaskDescription: "gather the numbers",
		Output:          "here are the numbers",
		QualityCriteria: "must cite sources",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "research agent")
	assert.Contains(t, out, "gather the numbers")
	assert.Contains(t, out, "here are the numbers")
	assert.Contains(t, out, "must cite sources")
	assert.Contains(t, out, `"overall_score"`)
	assert.Contains(t, out, `"verdict"`)
}

func TestSynthesis(t *testing.T) {
	out, err := Synthesis(SynthesisInput{
		OriginalTask: "final report",
		Contributions: []Contribution{
			{Role: "Researcher", Content: "findings"},
			{Role: "Analyst", Content: "analysis"},
		},
		ValidationSummary: "average score 8.2/10",
	})

	require.NoError(t, err)
	assert.Contains(t, out, "final report")
	assert.Contains(t, out, "--- Researcher ---")
	assert.Contains(t, out, "analysis")
	assert.Contains(t, out, "average score 8.2/10")
}
