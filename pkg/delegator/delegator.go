// Package delegator plans the agent team for a task: an analysis call
// proposes expert roles, the roles are normalized and padded to the team
// floor, the task is decomposed into one distinct subtask per agent, and
// an execution strategy is chosen.
package delegator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/swarmos-ai/swarmos/pkg/config"
	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

// Completer is the LLM surface the delegator depends on. Satisfied by
// *llm.Router.
type Completer interface {
	Completion(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Team size bounds. Fewer than minAgents planned roles are padded with
// standard roles; more than maxAgents are truncated.
const (
	minAgents = 4
	maxAgents = 15
)

// standardRoles pad a short plan up to the team floor, in order.
var standardRoles = []struct {
	role       string
	capability models.Capability
	duties     string
}{
	{"researcher", models.CapabilityResearch, "Conducts web research and information gathering"},
	{"analyst", models.CapabilityAnalysis, "Analyzes data and creates plans"},
	{"coder", models.CapabilityCoding, "Generates and reviews code"},
	{"reviewer", models.CapabilityReview, "Reviews and critiques solutions"},
	{"synthesizer", models.CapabilitySynthesis, "Synthesizes multiple perspectives into final output"},
}

// Delegator turns a task description into a DelegationPlan.
type Delegator struct {
	llm      Completer
	registry *config.ProviderRegistry
	logger   *slog.Logger
}

// New creates a delegator over the given LLM client and provider registry.
func New(llmClient Completer, registry *config.ProviderRegistry) *Delegator {
	return &Delegator{
		llm:      llmClient,
		registry: registry,
		logger:   slog.Default().With("component", "delegator"),
	}
}

// taskAnalysis is the structured shape requested from the analysis call.
type taskAnalysis struct {
	TaskInterpretation string        `json:"task_interpretation"`
	MainTasks          []string      `json:"main_tasks"`
	ResearchApproach   string        `json:"research_approach"`
	AgentConfig        []agentConfig `json:"agent_config"`
	RequiresDebate     bool          `json:"requires_debate"`
	Complexity         float64       `json:"complexity"`
	Reasoning          string        `json:"reasoning"`
}

type agentConfig struct {
	Role       string `json:"role"`
	Capability string `json:"capability"`
	Expertise  string `json:"expertise"`
}

// CreatePlan analyzes the task, plans and pads the agent team, decomposes
// the task into per-agent subtasks, and picks the execution strategy.
// Analysis and decomposition failures degrade to deterministic fallbacks;
// CreatePlan itself only fails on context cancellation.
func (d *Delegator) CreatePlan(ctx context.Context, description, provider string) (*models.DelegationPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis := d.analyzeTask(ctx, description, provider)
	agents := d.planAgents(ctx, description, analysis, provider)

	plan := &models.DelegationPlan{
		ExecutionStrategy:   strategyFor(agents, analysis),
		AgentsNeeded:        agents,
		RequiresDebate:      analysis.RequiresDebate,
		ComplexityScore:     analysis.Complexity,
		TaskInterpretation:  analysis.TaskInterpretation,
		MainTasksIdentified: analysis.MainTasks,
		ResearchApproach:    analysis.ResearchApproach,
		Reasoning:           analysis.Reasoning,
	}

	d.logger.Info("delegation plan created",
		"strategy", string(plan.ExecutionStrategy),
		"agents", len(agents),
		"complexity", plan.ComplexityScore)
	return plan, nil
}

const analysisPromptFmt = `You are a task orchestrator for a multi-agent system. Analyze the
incoming request and assign the most appropriate expert roles. Other
specialized agents will execute the subtasks you define.

Task:
%s

Perform this analysis:
1. Interpretation: what is actually being asked, and what outcome satisfies it?
2. Subtasks: break the work into 4-6 main goals.
3. Expert personas: at least 4 experts most qualified for this task, each with
   a distinct perspective and a capability class from
   research | analysis | coding | review | synthesis.
   Invent specific personas where they fit ("Systems Architect",
   "Security Auditor") rather than generic ones.
4. Strategy: does this need structured debate (controversial or high-stakes
   decisions only)? Complexity from 0.0 to 1.0.

Respond with a JSON object:
{
  "task_interpretation": string,
  "main_tasks": [string],
  "research_approach": string,
  "agent_config": [{"role": string, "capability": string, "expertise": string}],
  "requires_debate": boolean,
  "complexity": number,
  "reasoning": string
}
Agent count must be 4 to 15. Return only the JSON object.`

// analyzeTask asks the model to break the task down. Failures fall back
// to a neutral single-interpretation analysis with no roles, which the
// planner then pads with standard roles.
func (d *Delegator) analyzeTask(ctx context.Context, description, provider string) *taskAnalysis {
	fallback := &taskAnalysis{
		TaskInterpretation: description,
		MainTasks:          []string{description},
		ResearchApproach:   "Standard research and analysis",
		Complexity:         0.5,
		Reasoning:          "Fallback analysis, model call unavailable",
	}

	resp, err := d.llm.Completion(ctx, llm.Request{
		Model:       provider,
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(analysisPromptFmt, description)}},
		Temperature: 0.3,
		JSONOutput:  true,
	})
	if err != nil {
		d.logger.Warn("task analysis failed, using fallback", "error", err)
		return fallback
	}

	analysis := &taskAnalysis{}
	if err := json.Unmarshal([]byte(jsonObject(resp.Content)), analysis); err != nil {
		d.logger.Warn("unparseable task analysis, using fallback", "error", err)
		return fallback
	}
	if analysis.TaskInterpretation == "" {
		analysis.TaskInterpretation = description
	}
	if analysis.Complexity < 0 {
		analysis.Complexity = 0
	}
	if analysis.Complexity > 1 {
		analysis.Complexity = 1
	}
	return analysis
}

// planAgents materializes AgentPlans from the analyzed roles, pads to the
// team floor, and assigns decomposed subtasks.
func (d *Delegator) planAgents(ctx context.Context, description string, analysis *taskAnalysis, provider string) []*models.AgentPlan {
	cfgs := analysis.AgentConfig
	if len(cfgs) > maxAgents {
		cfgs = cfgs[:maxAgents]
	}

	plans := make([]*models.AgentPlan, 0, max(len(cfgs), minAgents))
	for i, cfg := range cfgs {
		role := cfg.Role
		if role == "" {
			role = fmt.Sprintf("Agent-%d", i+1)
		}
		capability := normalizeCapability(cfg.Capability, role)
		desc := cfg.Expertise
		if desc == "" {
			desc = fmt.Sprintf("Acts as %s with %s capabilities", role, capability)
		}
		plans = append(plans, &models.AgentPlan{
			AgentType:   role,
			AgentName:   role,
			Description: desc,
			Provider:    d.providerFor(provider, i),
			Priority:    i,
			Capability:  capability,
		})
	}

	// Team floor: pad with standard roles until we have at least four.
	for _, std := range standardRoles {
		if len(plans) >= minAgents {
			break
		}
		if hasRole(plans, std.role) {
			continue
		}
		i := len(plans)
		plans = append(plans, &models.AgentPlan{
			AgentType:   std.role,
			AgentName:   capitalize(std.role),
			Description: std.duties,
			Provider:    d.providerFor(provider, i),
			Priority:    i,
			Capability:  std.capability,
		})
	}

	roles := make([]string, len(plans))
	for i, p := range plans {
		roles[i] = p.AgentType
	}
	subtasks := d.decompose(ctx, description, roles, provider, analysis)
	for i, p := range plans {
		if i < len(subtasks) {
			p.SubtaskDescription = subtasks[i]
		} else {
			p.SubtaskDescription = description
		}
	}
	return plans
}

// providerFor pins every agent to the hint when one is given; in auto
// mode agents are spread round-robin across the configured cloud
// providers.
func (d *Delegator) providerFor(hint string, index int) string {
	if hint != "" && hint != "auto" {
		return hint
	}
	clouds := d.registry.CloudNames()
	if len(clouds) == 0 {
		return "auto"
	}
	return clouds[index%len(clouds)]
}

const decomposePromptFmt = `You are a task orchestrator decomposing work for a multi-agent team.
Agents work in sequence, each building on previous work.

Original task:
%s

Task interpretation: %s
%s
Team:
%s

Create one specific, actionable subtask for EACH agent listed, in order.
Each subtask must be distinct, reference the agent's expertise, and name
the deliverable expected. Do not repeat the original task verbatim; each
subtask must add unique value.

Respond with a JSON object: {"subtasks": [string]} containing exactly %d
entries. Return only the JSON object.`

// decompose produces one subtask per role. A single-agent plan gets the
// interpretation-framed full task; model failures synthesize subtasks
// from the analysis.
func (d *Delegator) decompose(ctx context.Context, description string, roles []string, provider string, analysis *taskAnalysis) []string {
	if len(roles) == 1 {
		if analysis.TaskInterpretation != "" && analysis.TaskInterpretation != description {
			return []string{fmt.Sprintf("Execute the task based on this interpretation: %s. Original request: %s",
				analysis.TaskInterpretation, description)}
		}
		return []string{description}
	}

	var goals strings.Builder
	if len(analysis.MainTasks) > 0 {
		goals.WriteString("Main goals identified:\n")
		for _, t := range analysis.MainTasks {
			fmt.Fprintf(&goals, "- %s\n", t)
		}
	}
	var team strings.Builder
	for i, role := range roles {
		fmt.Fprintf(&team, "%d. %s\n", i+1, role)
	}

	promptText := fmt.Sprintf(decomposePromptFmt,
		description, analysis.TaskInterpretation, goals.String(), team.String(), len(roles))

	resp, err := d.llm.Completion(ctx, llm.Request{
		Model:       provider,
		Messages:    []llm.Message{{Role: "user", Content: promptText}},
		Temperature: 0.3,
		JSONOutput:  true,
	})
	if err == nil {
		var parsed struct {
			Subtasks []string `json:"subtasks"`
		}
		if jsonErr := json.Unmarshal([]byte(jsonObject(resp.Content)), &parsed); jsonErr == nil && len(parsed.Subtasks) > 0 {
			subtasks := parsed.Subtasks
			for len(subtasks) < len(roles) {
				subtasks = append(subtasks, fmt.Sprintf("Execute your specific role duties for: %s", clip(description, 100)))
			}
			return subtasks[:len(roles)]
		}
		err = fmt.Errorf("unparseable decomposition: %.80s", resp.Content)
	}
	d.logger.Warn("task decomposition failed, synthesizing subtasks", "error", err)

	// Distribute the analyzed main tasks when there are enough; otherwise
	// frame the interpretation per role.
	if len(analysis.MainTasks) >= len(roles) {
		subtasks := make([]string, len(roles))
		for i := range roles {
			subtasks[i] = fmt.Sprintf("Focus on this aspect: %s. Context: %s",
				analysis.MainTasks[i], analysis.TaskInterpretation)
		}
		return subtasks
	}
	objective := analysis.TaskInterpretation
	if objective == "" {
		objective = description
	}
	subtasks := make([]string, len(roles))
	for i, role := range roles {
		subtasks[i] = fmt.Sprintf("Role: %s. Using your expertise, address: %s", capitalize(role), objective)
	}
	return subtasks
}

// strategyFor: single agent runs alone, debate only when the analysis
// asked for it, everything else runs sequentially so agents can build on
// each other's work.
func strategyFor(agents []*models.AgentPlan, analysis *taskAnalysis) models.ExecutionStrategy {
	switch {
	case len(agents) == 1:
		return models.StrategySingle
	case analysis.RequiresDebate:
		return models.StrategyDebate
	default:
		return models.StrategySequential
	}
}

// normalizeCapability folds the model's free-form capability (and, as a
// fallback, the role label) onto the five executing classes.
func normalizeCapability(raw, role string) models.Capability {
	for _, source := range []string{strings.ToLower(raw), strings.ToLower(role)} {
		switch {
		case strings.Contains(source, "research"):
			return models.CapabilityResearch
		case strings.Contains(source, "cod"), strings.Contains(source, "develop"), strings.Contains(source, "engineer"):
			return models.CapabilityCoding
		case strings.Contains(source, "review"), strings.Contains(source, "critic"), strings.Contains(source, "audit"):
			return models.CapabilityReview
		case strings.Contains(source, "synthes"), strings.Contains(source, "writ"), strings.Contains(source, "editor"):
			return models.CapabilitySynthesis
		case strings.Contains(source, "analy"):
			return models.CapabilityAnalysis
		}
	}
	return models.CapabilityAnalysis
}

func hasRole(plans []*models.AgentPlan, role string) bool {
	for _, p := range plans {
		if strings.EqualFold(p.AgentType, role) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// jsonObject trims prose or code fencing around a JSON object.
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
