package models

// Capability selects the executing behavior of an agent. The role label on
// a plan may be any string; the capability is always one of this set.
type Capability string

const (
	CapabilityResearch  Capability = "research"
	CapabilityAnalysis  Capability = "analysis"
	CapabilityCoding    Capability = "coding"
	CapabilityReview    Capability = "review"
	CapabilitySynthesis Capability = "synthesis"
)

// IsValid checks if the capability is valid
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityResearch, CapabilityAnalysis, CapabilityCoding, CapabilityReview, CapabilitySynthesis:
		return true
	default:
		return false
	}
}

// AgentStatus is the runtime state of an agent.
type AgentStatus string

const (
	AgentStatusIdle       AgentStatus = "idle"
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusError      AgentStatus = "error"
)

// AgentPlan describes one agent the delegator wants materialized.
// AgentType carries the role label verbatim, including dynamic roles the
// planner invents; Capability selects the executing behavior.
type AgentPlan struct {
	AgentType          string     `json:"agent_type"`
	AgentName          string     `json:"agent_name"`
	Description        string     `json:"description"`
	SubtaskDescription string     `json:"subtask_description"`
	Provider           string     `json:"provider"`
	Priority           int        `json:"priority"`
	Capability         Capability `json:"capability"`
}

// ExecutionStrategy selects how the orchestrator runs a plan's agents.
type ExecutionStrategy string

const (
	StrategySingle     ExecutionStrategy = "single"
	StrategyParallel   ExecutionStrategy = "parallel"
	StrategySequential ExecutionStrategy = "sequential"
	StrategyDebate     ExecutionStrategy = "debate"
)

// IsValid checks if the execution strategy is valid
func (s ExecutionStrategy) IsValid() bool {
	switch s {
	case StrategySingle, StrategyParallel, StrategySequential, StrategyDebate:
		return true
	default:
		return false
	}
}

// DelegationPlan is the delegator's full output for a task.
type DelegationPlan struct {
	ExecutionStrategy    ExecutionStrategy `json:"execution_strategy"`
	AgentsNeeded         []*AgentPlan      `json:"agents_needed"`
	RequiresDebate       bool              `json:"requires_debate"`
	ComplexityScore      float64           `json:"complexity_score"`
	TaskInterpretation   string            `json:"task_interpretation,omitempty"`
	MainTasksIdentified  []string          `json:"main_tasks_identified,omitempty"`
	ResearchApproach     string            `json:"research_approach,omitempty"`
	Reasoning            string            `json:"reasoning,omitempty"`
}

// AgentResult is one agent's output for its subtask.
type AgentResult struct {
	AgentID    string         `json:"agent_id"`
	TaskID     string         `json:"task_id"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Evidence   []string       `json:"evidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TokensUsed int            `json:"tokens_used"`
	Error      string         `json:"error,omitempty"`
}

// SupervisorDecision is the supervisor's verdict on an agent output.
type SupervisorDecision string

const (
	DecisionAccept SupervisorDecision = "ACCEPT"
	DecisionRework SupervisorDecision = "REWORK"
	DecisionReject SupervisorDecision = "REJECT"
)

// ReworkInstructions carries the supervisor's guidance back to an agent.
type ReworkInstructions struct {
	Reason     string   `json:"reason,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// SupervisorCritique is the structured outcome of one supervisor review.
type SupervisorCritique struct {
	AgentID            string             `json:"agent_id"`
	AgentType          string             `json:"agent_type"`
	Score              float64            `json:"score"`
	Decision           SupervisorDecision `json:"decision"`
	ReworkRequired     bool               `json:"rework_required"`
	ReworkInstructions ReworkInstructions `json:"rework_instructions"`
	Evaluation         map[string]any     `json:"evaluation,omitempty"`
}

// QueryExpansion is the query expander's assessment of a raw query.
type QueryExpansion struct {
	OriginalQuery       string   `json:"original_query"`
	ComplexityScore     float64  `json:"complexity_score"`
	ExecutionMode       string   `json:"execution_mode"`
	ExpandedQueries     []string `json:"expanded_queries"`
	ClarifyingQuestions []string `json:"clarifying_questions,omitempty"`
	IntentHypotheses    []string `json:"intent_hypotheses,omitempty"`
	SuggestedAgents     []string `json:"suggested_agents,omitempty"`
	RequiresDebate      bool     `json:"requires_debate"`
}
