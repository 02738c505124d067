package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmos-ai/swarmos/pkg/agent"
	"github.com/swarmos-ai/swarmos/pkg/agent/prompt"
	"github.com/swarmos-ai/swarmos/pkg/models"
	"github.com/swarmos-ai/swarmos/pkg/validator"
)

// contributionClip bounds each agent's content in the synthesis prompt.
const contributionClip = 1500

// Execute drives one task through the pipeline. Errors inside the
// pipeline fail the task; a concurrent Cancel wins over any late result.
func (o *Orchestrator) Execute(ctx context.Context, taskID string) error {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown task: %q", taskID)
	}
	taskCtx, cancel := context.WithCancel(ctx)
	o.cancels[taskID] = cancel
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.cancels, taskID)
		o.mu.Unlock()
	}()

	err := o.run(taskCtx, task)
	if err == nil {
		return nil
	}
	if errors.Is(err, errTaskCancelled) || o.cancelled(task) {
		return nil
	}

	o.logger.Error("task failed", "task_id", taskID, "error", err)
	o.update(task, func(t *models.Task) {
		t.Status = models.TaskStatusFailed
		t.Error = err.Error()
	})
	o.checkpoint(context.Background(), task)
	return err
}

func (o *Orchestrator) run(ctx context.Context, task *models.Task) error {
	o.update(task, func(t *models.Task) { t.Status = models.TaskStatusInProgress })
	o.checkpoint(ctx, task)

	// Delegate.
	plan, err := o.planner.CreatePlan(ctx, task.Description, task.Provider)
	if err != nil {
		return fmt.Errorf("delegation failed: %w", err)
	}
	o.update(task, func(t *models.Task) {
		if t.Context == nil {
			t.Context = make(map[string]any)
		}
		t.Context["delegation_plan"] = plan
		t.Context["execution_strategy"] = string(plan.ExecutionStrategy)
	})
	o.checkpoint(ctx, task)

	// Materialize agents and the task-scoped supervisor.
	agents := o.materializeAgents(task, plan)
	supervisor := agent.NewSupervisor(task.ID, task.Provider, o.llm,
		o.cfg.QualityThreshold, o.cfg.MaxReworkAttempts)
	o.mu.Lock()
	o.taskAgents[task.ID] = agents
	o.supervisors[task.ID] = supervisor
	o.mu.Unlock()

	// Materialize one subtask per worker agent.
	subtasks := make([]*models.SubTask, len(agents))
	for i, a := range agents {
		subtasks[i] = &models.SubTask{
			ID:           uuid.NewString(),
			ParentTaskID: task.ID,
			Description:  plan.AgentsNeeded[i].SubtaskDescription,
			AgentID:      a.ID(),
			AgentType:    a.RoleLabel(),
			Status:       models.SubTaskStatusPending,
		}
	}
	o.update(task, func(t *models.Task) { t.Subtasks = subtasks })
	o.checkpoint(ctx, task)
	o.logTaskCreated(ctx, task, len(subtasks))

	// Execute.
	var results []*models.AgentResult
	if plan.ExecutionStrategy == models.StrategyDebate {
		results, err = o.runDebate(ctx, task, agents)
	} else {
		results, err = o.runParallel(ctx, task, agents)
	}
	if err != nil {
		return err
	}
	if o.cancelled(task) {
		return errTaskCancelled
	}

	// Critique every output in parallel, then rework until clean or the
	// attempt bound is hit.
	critiques := o.critiqueAll(ctx, task, supervisor, agents, results)
	o.setProgress(ctx, task, 0.6)

	if err := o.reworkLoop(ctx, task, supervisor, agents, results, critiques); err != nil {
		return err
	}
	o.setProgress(ctx, task, 0.7)

	// Validate: the supervisor critiques become the validation record.
	o.update(task, func(t *models.Task) { t.Status = models.TaskStatusValidating })
	o.setProgress(ctx, task, 0.8)

	validation := validationResults(supervisor.ID(), critiques)
	o.update(task, func(t *models.Task) { t.ValidationResults = validation })
	o.setProgress(ctx, task, 0.9)

	// Synthesize the final answer.
	summary, _ := validation["summary"].(string)
	finalContent := o.synthesize(ctx, task, agents, results, summary)

	if o.cancelled(task) {
		return errTaskCancelled
	}

	agentIDs := make([]string, len(results))
	outputs := make(map[string]string, len(results))
	tokens := 0
	for i, r := range results {
		agentIDs[i] = r.AgentID
		outputs[r.AgentID] = r.Content
		tokens += r.TokensUsed
	}
	o.update(task, func(t *models.Task) {
		t.Result = map[string]any{
			"content":            finalContent,
			"agents":             agentIDs,
			"agent_outputs":      outputs,
			"validation_summary": summary,
			"delegation_plan":    plan,
		}
		t.Status = models.TaskStatusCompleted
		t.AgentsCount = len(t.Subtasks)
		t.TokensUsed += tokens
		t.Progress = 1.0
		now := time.Now().UTC()
		t.CompletedAt = &now
	})
	o.checkpoint(ctx, task)
	o.logger.Info("task completed", "task_id", task.ID, "agents", len(results))
	return nil
}

// materializeAgents instantiates one worker per plan entry, preserving
// the planner's role label while the capability selects behavior.
func (o *Orchestrator) materializeAgents(task *models.Task, plan *models.DelegationPlan) []agent.Agent {
	deps := agent.Deps{LLM: o.llm, Memory: o.memory, Tools: o.tools}
	agents := make([]agent.Agent, len(plan.AgentsNeeded))
	for i, p := range plan.AgentsNeeded {
		agents[i] = agent.New(p.AgentType, p.Capability, p.Provider, deps)
	}
	return agents
}

// runParallel dispatches every agent concurrently against its own
// subtask and gathers results in stable index order.
func (o *Orchestrator) runParallel(ctx context.Context, task *models.Task, agents []agent.Agent) ([]*models.AgentResult, error) {
	o.setProgress(ctx, task, 0.1)

	o.update(task, func(t *models.Task) {
		for _, st := range t.Subtasks {
			st.Status = models.SubTaskStatusInProgress
		}
	})

	results := make([]*models.AgentResult, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a agent.Agent) {
			defer wg.Done()
			results[i] = a.Process(ctx, o.taskInputFor(task, i, len(agents), nil))
			o.logAgentResult(ctx, a, task, results[i])
		}(i, a)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, errTaskCancelled
	}

	o.update(task, func(t *models.Task) {
		for i, st := range t.Subtasks {
			if results[i].Error != "" {
				st.Status = models.SubTaskStatusFailed
				st.Error = results[i].Error
			} else {
				st.Status = models.SubTaskStatusCompleted
				st.Result = results[i].Content
			}
		}
	})
	o.setProgress(ctx, task, 0.5)
	return results, nil
}

// runDebate replaces parallel execution with the debate engine and
// extracts each agent's final proposal as its result.
func (o *Orchestrator) runDebate(ctx context.Context, task *models.Task, agents []agent.Agent) ([]*models.AgentResult, error) {
	o.update(task, func(t *models.Task) { t.Status = models.TaskStatusDebating })
	o.checkpoint(ctx, task)

	state, err := o.debater.Run(ctx, agents, task.Description, task.ID)
	if err != nil {
		return nil, fmt.Errorf("debate failed: %w", err)
	}
	o.update(task, func(t *models.Task) { t.DebateState = state })
	o.checkpoint(ctx, task)

	var results []*models.AgentResult
	for _, a := range agents {
		// Final-round proposal wins; proposals are appended per round.
		var final *models.Proposal
		for _, p := range state.Proposals {
			if p.AgentID == a.ID() {
				final = p
			}
		}
		if final == nil {
			continue
		}
		result := &models.AgentResult{
			AgentID:    a.ID(),
			TaskID:     task.ID,
			Content:    final.Content,
			Confidence: final.Confidence,
			Evidence:   final.Evidence,
		}
		results = append(results, result)
		o.logAgentResult(ctx, a, task, result)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("debate produced no proposals")
	}

	// Reconcile subtasks: an agent without a surviving proposal failed its
	// subtask.
	byAgent := make(map[string]string, len(results))
	for _, r := range results {
		byAgent[r.AgentID] = r.Content
	}
	o.update(task, func(t *models.Task) {
		for _, st := range t.Subtasks {
			if content, ok := byAgent[st.AgentID]; ok {
				st.Status = models.SubTaskStatusCompleted
				st.Result = content
			} else {
				st.Status = models.SubTaskStatusFailed
				st.Error = "no proposal survived the debate"
			}
		}
	})

	o.setProgress(ctx, task, 0.5)
	return results, nil
}

// critiqueAll runs the supervisor over every result concurrently.
// Results are matched to agents by id: the debate path can produce fewer
// results than agents.
func (o *Orchestrator) critiqueAll(ctx context.Context, task *models.Task, supervisor *agent.Supervisor, agents []agent.Agent, results []*models.AgentResult) []*models.SupervisorCritique {
	critiques := make([]*models.SupervisorCritique, len(results))
	var wg sync.WaitGroup
	for i := range results {
		ai := agentIndexByID(agents, results[i].AgentID)
		if ai < 0 {
			continue
		}
		wg.Add(1)
		go func(i, ai int) {
			defer wg.Done()
			critiques[i] = supervisor.Critique(ctx,
				agents[ai].RoleLabel(), agents[ai].ID(), results[i].Content, task.Description,
				heuristicCriteria(agents[ai], results[i]))
		}(i, ai)
	}
	wg.Wait()
	return critiques
}

// heuristicCriteria runs the lexical quality checks over an output and
// surfaces any failures to the supervisor as additional criteria.
func heuristicCriteria(a agent.Agent, result *models.AgentResult) string {
	check := validator.Validate(result.Content, string(a.Capability()), len(result.Evidence) > 0)
	return validator.ReworkFeedback(check)
}

func agentIndexByID(agents []agent.Agent, id string) int {
	for i, a := range agents {
		if a.ID() == id {
			return i
		}
	}
	return -1
}

// reworkLoop re-dispatches agents whose critiques demand rework, then
// re-critiques them, up to the configured attempt bound. results and
// critiques are updated in place.
func (o *Orchestrator) reworkLoop(ctx context.Context, task *models.Task, supervisor *agent.Supervisor, agents []agent.Agent, results []*models.AgentResult, critiques []*models.SupervisorCritique) error {
	maxAttempts := o.cfg.MaxReworkAttempts
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var pending []int
		for i, c := range critiques {
			if c == nil {
				continue
			}
			if c.ReworkRequired || c.Decision == models.DecisionRework || c.Decision == models.DecisionReject {
				pending = append(pending, i)
			}
		}
		if len(pending) == 0 {
			return nil
		}
		if ctx.Err() != nil {
			return errTaskCancelled
		}

		o.logger.Info("rework round", "task_id", task.ID, "attempt", attempt+1, "agents", len(pending))

		var wg sync.WaitGroup
		for _, i := range pending {
			ai := agentIndexByID(agents, results[i].AgentID)
			if ai < 0 {
				continue
			}
			wg.Add(1)
			go func(i, ai int) {
				defer wg.Done()
				rework := reworkContext(results[i], critiques[i])
				results[i] = agents[ai].Process(ctx, o.taskInputFor(task, ai, len(agents), rework))
				o.logAgentResult(ctx, agents[ai], task, results[i])
			}(i, ai)
		}
		wg.Wait()
		if ctx.Err() != nil {
			return errTaskCancelled
		}

		o.update(task, func(t *models.Task) {
			for _, i := range pending {
				ai := agentIndexByID(agents, results[i].AgentID)
				if ai >= 0 && ai < len(t.Subtasks) {
					t.Subtasks[ai].Result = results[i].Content
					t.Subtasks[ai].ReworkCount++
				}
			}
		})

		for _, i := range pending {
			ai := agentIndexByID(agents, results[i].AgentID)
			if ai < 0 {
				continue
			}
			wg.Add(1)
			go func(i, ai int) {
				defer wg.Done()
				critiques[i] = supervisor.Critique(ctx,
					agents[ai].RoleLabel(), agents[ai].ID(), results[i].Content, task.Description,
					heuristicCriteria(agents[ai], results[i]))
			}(i, ai)
		}
		wg.Wait()

		o.setProgress(ctx, task, 0.6+0.1*float64(attempt+1)/float64(maxAttempts))
	}
	return nil
}

// taskInputFor builds one agent's input: its subtask plus the shared
// task-context extensions, and the supervisor extension on rework.
func (o *Orchestrator) taskInputFor(task *models.Task, i, total int, rework map[string]any) agent.TaskInput {
	o.mu.Lock()
	subtask := task.Subtasks[i]
	extended := make(map[string]any, len(task.Context)+8)
	for k, v := range task.Context {
		extended[k] = v
	}
	o.mu.Unlock()

	extended["original_task"] = task.Description
	extended["agent_position"] = fmt.Sprintf("Agent %d of %d", i+1, total)
	for k, v := range rework {
		extended[k] = v
	}

	return agent.TaskInput{
		TaskID:      task.ID,
		SubtaskID:   subtask.ID,
		Description: subtask.Description,
		Context:     extended,
	}
}

// reworkContext carries the supervisor's verdict into the next attempt.
// A REJECT gets a stricter instruction than a rework request.
func reworkContext(result *models.AgentResult, critique *models.SupervisorCritique) map[string]any {
	feedback := critiqueFeedback(critique)

	note := "The supervisor requested revisions. Improve clarity, correctness, and completeness per the feedback."
	if critique.Decision == models.DecisionReject {
		note = "The supervisor REJECTED your work. Perform a careful rework addressing every critical issue with evidence and step-by-step corrections."
	}

	return map[string]any{
		"previous_attempt":    result.Content,
		"supervisor_feedback": feedback,
		"supervisor_score":    critique.Score,
		"supervisor_decision": string(critique.Decision),
		"rework_instruction":  fmt.Sprintf("Your previous work scored %.1f/10. %s", critique.Score, note),
	}
}

// critiqueFeedback flattens a critique into prompt-ready text.
func critiqueFeedback(c *models.SupervisorCritique) string {
	var parts []string
	if c.ReworkInstructions.Reason != "" {
		parts = append(parts, c.ReworkInstructions.Reason)
	}
	if len(c.ReworkInstructions.FocusAreas) > 0 {
		parts = append(parts, "Priority fixes: "+strings.Join(c.ReworkInstructions.FocusAreas, "; "))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Output scored %.1f/10.", c.Score)
	}
	return strings.Join(parts, " ")
}

// validationResults aggregates the supervisor critiques into the task's
// validation record.
func validationResults(supervisorID string, critiques []*models.SupervisorCritique) map[string]any {
	scores := make(map[string]float64, len(critiques))
	total := 0.0
	n := 0
	kept := make([]*models.SupervisorCritique, 0, len(critiques))
	for _, c := range critiques {
		if c == nil {
			continue
		}
		kept = append(kept, c)
		scores[c.AgentID] = c.Score
		total += c.Score
		n++
	}

	summary := "No validation performed."
	if n > 0 {
		summary = fmt.Sprintf("Supervisor reviewed %d agent outputs. Average score: %.1f/10", n, total/float64(n))
	}

	return map[string]any{
		"critiques":     kept,
		"scores":        scores,
		"summary":       summary,
		"validator":     "supervisor",
		"supervisor_id": supervisorID,
	}
}

// synthesize contracts every contribution into the final answer via the
// synthesizer role, falling back to the last agent, and to plain
// concatenation when the synthesis call fails.
func (o *Orchestrator) synthesize(ctx context.Context, task *models.Task, agents []agent.Agent, results []*models.AgentResult, validationSummary string) string {
	if len(results) == 0 {
		return ""
	}

	contributions := make([]prompt.Contribution, 0, len(results))
	for _, r := range results {
		role := r.AgentID
		if ai := agentIndexByID(agents, r.AgentID); ai >= 0 {
			role = agents[ai].RoleLabel()
		}
		content := r.Content
		if len(content) > contributionClip {
			content = content[:contributionClip] + "…"
		}
		contributions = append(contributions, prompt.Contribution{Role: role, Content: content})
	}

	promptText, err := prompt.Synthesis(prompt.SynthesisInput{
		OriginalTask:      task.Description,
		Contributions:     contributions,
		ValidationSummary: validationSummary,
	})
	if err == nil {
		synthesizer := pickSynthesizer(agents)
		result := synthesizer.Process(ctx, agent.TaskInput{
			TaskID:      task.ID,
			Description: promptText,
			Context:     map[string]any{"original_task": task.Description},
		})
		if result.Error == "" && result.Content != "" {
			return result.Content
		}
		o.logger.Warn("synthesis failed, concatenating contributions",
			"task_id", task.ID, "error", result.Error)
	}

	var b strings.Builder
	for _, c := range contributions {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", c.Role, c.Content)
	}
	return strings.TrimSpace(b.String())
}

// pickSynthesizer prefers the synthesis capability, then the synthesizer
// role label, then the last agent.
func pickSynthesizer(agents []agent.Agent) agent.Agent {
	for _, a := range agents {
		if a.Capability() == models.CapabilitySynthesis {
			return a
		}
	}
	for _, a := range agents {
		if strings.EqualFold(a.RoleLabel(), "synthesizer") {
			return a
		}
	}
	return agents[len(agents)-1]
}

// setProgress advances the progress milestone and checkpoints.
func (o *Orchestrator) setProgress(ctx context.Context, task *models.Task, p float64) {
	o.update(task, func(t *models.Task) { t.Progress = p })
	o.checkpoint(ctx, task)
}

// logTaskCreated drops a task-scoped memory entry describing the plan.
// Best-effort.
func (o *Orchestrator) logTaskCreated(ctx context.Context, task *models.Task, subtasks int) {
	if o.memory == nil {
		return
	}
	entry := &models.MemoryEntry{
		Scope:     models.ScopeTask,
		Namespace: "task:" + task.ID,
		Content:   fmt.Sprintf("Task: %s\nProvider: %s\nSubtasks: %d", task.Description, task.Provider, subtasks),
		Metadata:  map[string]any{"task_id": task.ID, "provider": task.Provider},
	}
	if err := o.memory.Write(ctx, entry); err != nil {
		o.logger.Warn("task memory write failed", "task_id", task.ID, "error", err)
	}
}

// logAgentResult persists an agent output to both the task- and
// agent-scoped namespaces for the timeline and agent detail views.
// Best-effort.
func (o *Orchestrator) logAgentResult(ctx context.Context, a agent.Agent, task *models.Task, result *models.AgentResult) {
	if o.memory == nil || result == nil {
		return
	}
	snippet := result.Content
	if len(snippet) > 2000 {
		snippet = snippet[:2000]
	}
	metadata := map[string]any{
		"agent_id":   a.ID(),
		"agent_type": a.RoleLabel(),
		"task_id":    task.ID,
		"provider":   a.Provider(),
		"confidence": result.Confidence,
		"evidence":   result.Evidence,
		"type":       "output",
	}

	taskEntry := &models.MemoryEntry{
		Scope:     models.ScopeTask,
		Namespace: "task:" + task.ID,
		Content:   fmt.Sprintf("%s (%s) output:\n%s", a.RoleLabel(), a.ID(), snippet),
		Metadata:  metadata,
	}
	agentEntry := &models.MemoryEntry{
		Scope:     models.ScopeAgent,
		Namespace: "agent:" + a.ID(),
		Content:   fmt.Sprintf("Task %s output:\n%s", task.ID, snippet),
		Metadata:  metadata,
	}
	for _, entry := range []*models.MemoryEntry{taskEntry, agentEntry} {
		if err := o.memory.Write(ctx, entry); err != nil {
			o.logger.Warn("agent memory write failed", "agent_id", a.ID(), "error", err)
		}
	}
}
