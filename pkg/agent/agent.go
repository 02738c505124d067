// Package agent implements the polymorphic agent runtime: role-labeled
// workers selected by capability, plus the task-scoped supervisor.
package agent

import (
	"context"

	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/memory"
	"github.com/swarmos-ai/swarmos/pkg/models"
	"github.com/swarmos-ai/swarmos/pkg/tools"
)

// Completer is the LLM surface agents depend on. Satisfied by *llm.Router.
type Completer interface {
	Completion(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Deps are shared references handed to every agent. The agent holds but
// does not own them.
type Deps struct {
	LLM    Completer
	Memory *memory.Manager // optional
	Tools  *tools.Registry // optional
}

// TaskInput is one unit of work handed to an agent's Process.
type TaskInput struct {
	TaskID      string
	SubtaskID   string
	Description string
	// Context carries the task extension map: original_task,
	// agent_position, and on rework previous_attempt, supervisor_feedback,
	// supervisor_score, supervisor_decision, rework_instruction.
	Context map[string]any
}

// Agent is the polymorphic worker. The role label is free-form; behavior
// is selected by capability.
type Agent interface {
	ID() string
	RoleLabel() string
	Capability() models.Capability
	Provider() string
	Status() models.AgentStatus

	Process(ctx context.Context, task TaskInput) *models.AgentResult

	GenerateProposal(ctx context.Context, topic string, previous *models.Proposal, critiques []*models.DebateCritique, round int) (*models.Proposal, error)
	CritiqueProposal(ctx context.Context, topic string, proposal *models.Proposal, round int) (*models.DebateCritique, error)
	Vote(ctx context.Context, topic string, candidates []*models.Proposal) (string, error)
}
