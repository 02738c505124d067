package models

// DebatePhase is the current state of a debate's round state machine.
type DebatePhase string

const (
	PhaseProposal  DebatePhase = "proposal"
	PhaseCritique  DebatePhase = "critique"
	PhaseRebuttal  DebatePhase = "rebuttal"
	PhaseVoting    DebatePhase = "voting"
	PhaseJudgment  DebatePhase = "judgment"
	PhaseConverged DebatePhase = "converged"
)

// IsValid checks if the debate phase is valid
func (p DebatePhase) IsValid() bool {
	switch p {
	case PhaseProposal, PhaseCritique, PhaseRebuttal, PhaseVoting, PhaseJudgment, PhaseConverged:
		return true
	default:
		return false
	}
}

// Proposal is one agent's position in a debate round.
type Proposal struct {
	ID         string   `json:"id"`
	AgentID    string   `json:"agent_id"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
	Round      int      `json:"round"`
}

// DebateCritique is one agent's review of another agent's proposal.
type DebateCritique struct {
	CriticID         string   `json:"critic_id"`
	TargetProposalID string   `json:"target_proposal_id"`
	Strengths        []string `json:"strengths,omitempty"`
	Weaknesses       []string `json:"weaknesses,omitempty"`
	Score            float64  `json:"score"`
	Round            int      `json:"round"`
}

// DebateState is the full mutable state of one debate, stored on the task.
type DebateState struct {
	TaskID    string             `json:"task_id"`
	Topic     string             `json:"topic"`
	Round     int                `json:"round"`
	MaxRounds int                `json:"max_rounds"`
	Phase     DebatePhase        `json:"phase"`
	Proposals []*Proposal        `json:"proposals"`
	Critiques []*DebateCritique  `json:"critiques"`
	Rebuttals []map[string]any   `json:"rebuttals,omitempty"`
	Votes     map[string]string  `json:"votes"`
	Scores    map[string]float64 `json:"scores"`
	Winner    string             `json:"winner,omitempty"`
	Converged bool               `json:"converged"`
}
