package prompt

import (
	"fmt"
	"strings"

	"github.com/swarmos-ai/swarmos/pkg/models"
)

// previousAttemptClip bounds the quoted previous attempt in rework prompts.
const previousAttemptClip = 1000

// ReworkContext carries supervisor feedback into a rework prompt.
type ReworkContext struct {
	Score           float64
	Decision        string
	Feedback        string
	Instruction     string
	PreviousAttempt string
}

// ProcessInput is everything a process prompt is assembled from.
type ProcessInput struct {
	RoleLabel     string
	Capability    models.Capability
	Subtask       string
	OriginalTask  string
	SearchSnippet string
	Memories      []string
	Rework        *ReworkContext
}

// Process builds the full prompt for one agent processing its subtask.
func Process(in ProcessInput) (string, error) {
	roleTmpl, ok := roleTmpls[in.Capability]
	if !ok {
		roleTmpl = roleTmpls[models.CapabilityAnalysis]
	}

	var role strings.Builder
	if err := roleTmpl.Execute(&role, in); err != nil {
		return "", fmt.Errorf("failed to render role template: %w", err)
	}

	if in.Rework != nil && len(in.Rework.PreviousAttempt) > previousAttemptClip {
		clipped := *in.Rework
		clipped.PreviousAttempt = clipped.PreviousAttempt[:previousAttemptClip] + "…"
		in.Rework = &clipped
	}

	var body strings.Builder
	if err := processTmpl.Execute(&body, in); err != nil {
		return "", fmt.Errorf("failed to render process template: %w", err)
	}
	return role.String() + "\n" + body.String(), nil
}

// ProposalInput feeds the debate proposal prompt.
type ProposalInput struct {
	Topic            string
	Round            int
	PreviousProposal string
	Critiques        []string
}

// Proposal builds a debate-round proposal prompt.
func Proposal(in ProposalInput) (string, error) {
	var b strings.Builder
	if err := proposalTmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("failed to render proposal template: %w", err)
	}
	return b.String(), nil
}

// CritiqueInput feeds the debate critique prompt.
type CritiqueInput struct {
	Topic    string
	Proposal string
}

// Critique builds the prompt asking one agent to critique another's
// proposal as structured JSON.
func Critique(in CritiqueInput) (string, error) {
	var b strings.Builder
	if err := critiqueTmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("failed to render critique template: %w", err)
	}
	return b.String(), nil
}

// VoteCandidate is one proposal on a ballot.
type VoteCandidate struct {
	ID      string
	Summary string
}

// Vote builds the ballot prompt. Candidates must already exclude the
// voter's own proposal.
func Vote(topic string, candidates []VoteCandidate) (string, error) {
	var b strings.Builder
	err := voteTmpl.Execute(&b, struct {
		Topic      string
		Candidates []VoteCandidate
	}{topic, candidates})
	if err != nil {
		return "", fmt.Errorf("failed to render vote template: %w", err)
	}
	return b.String(), nil
}

// SupervisorInput feeds the supervisor critique prompt.
type SupervisorInput struct {
	AgentType       string
	TaskDescription string
	Output          string
	QualityCriteria string
}

// Supervisor builds the structured-critique prompt.
func Supervisor(in SupervisorInput) (string, error) {
	var b strings.Builder
	if err := supervisorTmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("failed to render supervisor template: %w", err)
	}
	return b.String(), nil
}

// Contribution is one agent's output fed into synthesis.
type Contribution struct {
	Role    string
	Content string
}

// SynthesisInput feeds the final contraction prompt. Contributions are
// clipped by the caller.
type SynthesisInput struct {
	OriginalTask      string
	Contributions     []Contribution
	ValidationSummary string
}

// Synthesis builds the final contraction prompt.
func Synthesis(in SynthesisInput) (string, error) {
	var b strings.Builder
	if err := synthesisTmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("failed to render synthesis template: %w", err)
	}
	return b.String(), nil
}
