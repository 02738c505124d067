// Package orchestrator drives the task lifecycle: delegate, materialize
// agents, execute in parallel, critique and rework under the supervisor,
// validate, synthesize, and checkpoint along the way.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmos-ai/swarmos/pkg/agent"
	"github.com/swarmos-ai/swarmos/pkg/config"
	"github.com/swarmos-ai/swarmos/pkg/debate"
	"github.com/swarmos-ai/swarmos/pkg/delegator"
	"github.com/swarmos-ai/swarmos/pkg/memory"
	"github.com/swarmos-ai/swarmos/pkg/models"
	"github.com/swarmos-ai/swarmos/pkg/tools"
)

// Planner builds the delegation plan. Satisfied by *delegator.Delegator.
type Planner interface {
	CreatePlan(ctx context.Context, description, provider string) (*models.DelegationPlan, error)
}

// Debater runs the debate strategy. Satisfied by *debate.Engine.
type Debater interface {
	Run(ctx context.Context, agents []agent.Agent, topic, taskID string) (*models.DebateState, error)
}

// TaskStore is the durable checkpoint surface. Satisfied by
// *memory.DurableStore.
type TaskStore interface {
	SaveTask(ctx context.Context, task *models.Task) error
}

// Deps are the orchestrator's collaborators. Memory, Tools, and Store are
// optional; Planner and Debater default to the real implementations.
type Deps struct {
	Config  *config.Config
	LLM     agent.Completer
	Memory  *memory.Manager
	Tools   *tools.Registry
	Store   TaskStore
	Planner Planner
	Debater Debater
}

// Orchestrator owns the in-memory task cache and the per-task agent
// registry. One Execute call drives one task end to end.
type Orchestrator struct {
	cfg     *config.Config
	llm     agent.Completer
	memory  *memory.Manager
	tools   *tools.Registry
	store   TaskStore
	planner Planner
	debater Debater

	mu          sync.Mutex
	tasks       map[string]*models.Task
	taskAgents  map[string][]agent.Agent
	supervisors map[string]*agent.Supervisor
	cancels     map[string]context.CancelFunc

	logger *slog.Logger
}

// New wires an orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	if deps.Planner == nil {
		deps.Planner = delegator.New(deps.LLM, deps.Config.Providers)
	}
	if deps.Debater == nil {
		deps.Debater = debate.NewEngine(deps.Config.DebateMaxRounds)
	}
	return &Orchestrator{
		cfg:         deps.Config,
		llm:         deps.LLM,
		memory:      deps.Memory,
		tools:       deps.Tools,
		store:       deps.Store,
		planner:     deps.Planner,
		debater:     deps.Debater,
		tasks:       make(map[string]*models.Task),
		taskAgents:  make(map[string][]agent.Agent),
		supervisors: make(map[string]*agent.Supervisor),
		cancels:     make(map[string]context.CancelFunc),
		logger:      slog.Default().With("component", "orchestrator"),
	}
}

// CreateTask registers a new pending task in the in-memory cache.
func (o *Orchestrator) CreateTask(description, provider string, taskContext map[string]any) *models.Task {
	now := time.Now().UTC()
	task := &models.Task{
		ID:          uuid.NewString(),
		Description: description,
		Provider:    provider,
		Status:      models.TaskStatusPending,
		Context:     taskContext,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.mu.Unlock()

	o.logger.Info("task created", "task_id", task.ID, "provider", provider)
	return task
}

// Task returns the cached task by id.
func (o *Orchestrator) Task(id string) (*models.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	return t, ok
}

// Tasks snapshots every cached task.
func (o *Orchestrator) Tasks() []*models.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*models.Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, t)
	}
	return out
}

// Agents returns the worker agents materialized for a task. The
// supervisor is not part of the roster.
func (o *Orchestrator) Agents(taskID string) []agent.Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.taskAgents[taskID]
}

// AllAgents snapshots every registered worker agent across tasks.
func (o *Orchestrator) AllAgents() []agent.Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []agent.Agent
	for _, agents := range o.taskAgents {
		out = append(out, agents...)
	}
	return out
}

// Cancel marks a running task cancelled and cancels its context.
// In-flight agent calls drain; their results are discarded. The task's
// registry entry is removed.
func (o *Orchestrator) Cancel(taskID string) bool {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return false
	}
	if task.Status.IsTerminal() {
		o.mu.Unlock()
		return false
	}
	task.Status = models.TaskStatusCancelled
	task.UpdatedAt = time.Now().UTC()
	cancel := o.cancels[taskID]
	delete(o.cancels, taskID)
	delete(o.taskAgents, taskID)
	delete(o.supervisors, taskID)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.checkpoint(context.Background(), task)
	o.logger.Info("task cancelled", "task_id", taskID)
	return true
}

// Delete removes a task from the cache, cancelling it first when still
// running. Reports whether the task was cached.
func (o *Orchestrator) Delete(taskID string) bool {
	o.Cancel(taskID)

	o.mu.Lock()
	_, ok := o.tasks[taskID]
	delete(o.tasks, taskID)
	delete(o.taskAgents, taskID)
	delete(o.supervisors, taskID)
	o.mu.Unlock()
	return ok
}

// update applies a mutation to a task under the registry lock.
func (o *Orchestrator) update(task *models.Task, fn func(*models.Task)) {
	o.mu.Lock()
	fn(task)
	task.UpdatedAt = time.Now().UTC()
	o.mu.Unlock()
}

// checkpoint persists the task's current state. Best-effort: failures are
// logged, never raised.
func (o *Orchestrator) checkpoint(ctx context.Context, task *models.Task) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveTask(ctx, task); err != nil {
		o.logger.Warn("checkpoint failed", "task_id", task.ID, "error", err)
	}
}

// cancelled reports whether the task was cancelled out from under the
// pipeline.
func (o *Orchestrator) cancelled(task *models.Task) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return task.Status == models.TaskStatusCancelled
}

var errTaskCancelled = fmt.Errorf("task cancelled")
