package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/swarmos-ai/swarmos/pkg/agent/prompt"
	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

// Sampling temperature per capability.
var capabilityTemperature = map[models.Capability]float64{
	models.CapabilityResearch:  0.7,
	models.CapabilityAnalysis:  0.5,
	models.CapabilityCoding:    0.2,
	models.CapabilityReview:    0.3,
	models.CapabilitySynthesis: 0.6,
}

// searchExcerptLen bounds the task excerpt used for autonomous search.
const searchExcerptLen = 200

// BaseAgent is the single concrete agent type. The role label drives
// prompt text; the capability drives temperature, autonomous tooling, and
// template selection.
type BaseAgent struct {
	id         string
	roleLabel  string
	capability models.Capability
	provider   string
	deps       Deps

	mu          sync.Mutex
	status      models.AgentStatus
	currentLoad float64

	logger *slog.Logger
}

// New creates an idle agent for one task.
func New(roleLabel string, capability models.Capability, provider string, deps Deps) *BaseAgent {
	if !capability.IsValid() {
		capability = models.CapabilityAnalysis
	}
	id := fmt.Sprintf("%s_%s", slugify(roleLabel), uuid.NewString()[:8])
	return &BaseAgent{
		id:         id,
		roleLabel:  roleLabel,
		capability: capability,
		provider:   provider,
		deps:       deps,
		status:     models.AgentStatusIdle,
		logger:     slog.Default().With("agent_id", id, "capability", string(capability)),
	}
}

// Compile-time interface check.
var _ Agent = (*BaseAgent)(nil)

func (a *BaseAgent) ID() string                    { return a.id }
func (a *BaseAgent) RoleLabel() string             { return a.roleLabel }
func (a *BaseAgent) Capability() models.Capability { return a.capability }
func (a *BaseAgent) Provider() string              { return a.provider }

// Status returns the agent's current runtime state.
func (a *BaseAgent) Status() models.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// CurrentLoad is 1 while processing, 0 otherwise.
func (a *BaseAgent) CurrentLoad() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLoad
}

func (a *BaseAgent) setStatus(status models.AgentStatus, load float64) {
	a.mu.Lock()
	a.status = status
	a.currentLoad = load
	a.mu.Unlock()
}

// Process runs the agent against its subtask: assemble the prompt
// (role template, task, optional autonomous search, optional rework
// section), call the model, and return the result. Failures come back in
// the result's Error field, never as a panic.
func (a *BaseAgent) Process(ctx context.Context, task TaskInput) *models.AgentResult {
	a.setStatus(models.AgentStatusProcessing, 1)

	result := &models.AgentResult{AgentID: a.id, TaskID: task.TaskID, Confidence: 0.8}

	searchSnippet, evidence := a.autonomousSearch(ctx, task)

	in := prompt.ProcessInput{
		RoleLabel:     a.roleLabel,
		Capability:    a.capability,
		Subtask:       task.Description,
		OriginalTask:  stringFrom(task.Context, "original_task"),
		SearchSnippet: searchSnippet,
		Memories:      a.recallMemories(ctx, task),
		Rework:        reworkFrom(task.Context),
	}
	promptText, err := prompt.Process(in)
	if err != nil {
		a.setStatus(models.AgentStatusError, 0)
		result.Error = err.Error()
		return result
	}

	resp, err := a.deps.LLM.Completion(ctx, llm.Request{
		Model:       a.provider,
		Messages:    []llm.Message{{Role: "user", Content: promptText}},
		Temperature: capabilityTemperature[a.capability],
	})
	if err != nil {
		a.logger.Error("agent processing failed", "task_id", task.TaskID, "error", err)
		a.setStatus(models.AgentStatusError, 0)
		result.Error = err.Error()
		return result
	}

	result.Content = resp.Content
	result.TokensUsed = resp.TokensUsed
	result.Evidence = evidence
	result.Metadata = map[string]any{
		"role":     a.roleLabel,
		"provider": resp.Provider,
		"model":    resp.Model,
	}

	a.setStatus(models.AgentStatusIdle, 0)
	return result
}

// autonomousSearch lets research agents gather current information before
// answering. Empty results and tool errors degrade to no snippet.
func (a *BaseAgent) autonomousSearch(ctx context.Context, task TaskInput) (string, []string) {
	if a.capability != models.CapabilityResearch || a.deps.Tools == nil {
		return "", nil
	}

	query := stringFrom(task.Context, "original_task")
	if query == "" {
		query = task.Description
	}
	if len(query) > searchExcerptLen {
		query = query[:searchExcerptLen]
	}

	out := a.deps.Tools.Execute(ctx, "web_search", map[string]any{"query": query, "max_results": 3})
	payload, ok := out.(map[string]any)
	if !ok {
		return "", nil
	}
	if errMsg, ok := payload["error"].(string); ok && errMsg != "" {
		a.logger.Warn("autonomous search degraded", "error", errMsg)
		return "", nil
	}

	var snippet strings.Builder
	var evidence []string
	switch hits := payload["results"].(type) {
	case []map[string]any:
		for _, h := range hits {
			appendHit(&snippet, &evidence, stringFrom(h, "title"), stringFrom(h, "url"), stringFrom(h, "content"))
		}
	case []any:
		for _, raw := range hits {
			if h, ok := raw.(map[string]any); ok {
				appendHit(&snippet, &evidence, stringFrom(h, "title"), stringFrom(h, "url"), stringFrom(h, "content"))
			}
		}
	default:
		// Vendor-shaped hits (e.g. []tools.SearchHit) round-trip through JSON.
		raw, err := json.Marshal(payload["results"])
		if err != nil {
			return "", nil
		}
		var generic []map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return "", nil
		}
		for _, h := range generic {
			appendHit(&snippet, &evidence, stringFrom(h, "title"), stringFrom(h, "url"), stringFrom(h, "content"))
		}
	}
	return snippet.String(), evidence
}

func appendHit(snippet *strings.Builder, evidence *[]string, title, url, content string) {
	if content == "" && title == "" {
		return
	}
	fmt.Fprintf(snippet, "- %s: %s (%s)\n", title, content, url)
	if url != "" {
		*evidence = append(*evidence, url)
	}
}

// recallMemories pulls the agent's compressed context from the memory
// manager. Best-effort.
func (a *BaseAgent) recallMemories(ctx context.Context, task TaskInput) []string {
	if a.deps.Memory == nil {
		return nil
	}
	c, err := a.deps.Memory.Read(ctx, task.TaskID, a.id, nil, a.provider, 10)
	if err != nil || c == nil {
		return nil
	}
	return c.Memories
}

// GenerateProposal produces this agent's position for a debate round,
// referencing its previous proposal and the critiques it received.
func (a *BaseAgent) GenerateProposal(ctx context.Context, topic string, previous *models.Proposal, critiques []*models.DebateCritique, round int) (*models.Proposal, error) {
	in := prompt.ProposalInput{Topic: topic, Round: round}
	if previous != nil {
		in.PreviousProposal = previous.Content
	}
	for _, c := range critiques {
		for _, w := range c.Weaknesses {
			in.Critiques = append(in.Critiques, w)
		}
	}

	promptText, err := prompt.Proposal(in)
	if err != nil {
		return nil, err
	}
	resp, err := a.deps.LLM.Completion(ctx, llm.Request{
		Model:       a.provider,
		Messages:    []llm.Message{{Role: "user", Content: promptText}},
		Temperature: capabilityTemperature[a.capability],
	})
	if err != nil {
		return nil, fmt.Errorf("proposal generation failed: %w", err)
	}

	return &models.Proposal{
		ID:         uuid.NewString(),
		AgentID:    a.id,
		Content:    resp.Content,
		Confidence: 0.8,
		Round:      round,
	}, nil
}

// CritiqueProposal reviews another agent's proposal, returning a
// structured critique. JSON parse failures fall back to a neutral score.
func (a *BaseAgent) CritiqueProposal(ctx context.Context, topic string, proposal *models.Proposal, round int) (*models.DebateCritique, error) {
	promptText, err := prompt.Critique(prompt.CritiqueInput{Topic: topic, Proposal: proposal.Content})
	if err != nil {
		return nil, err
	}
	resp, err := a.deps.LLM.Completion(ctx, llm.Request{
		Model:       a.provider,
		Messages:    []llm.Message{{Role: "user", Content: promptText}},
		Temperature: 0.3,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("critique failed: %w", err)
	}

	critique := &models.DebateCritique{
		CriticID:         a.id,
		TargetProposalID: proposal.ID,
		Score:            5,
		Round:            round,
	}

	var parsed struct {
		Strengths  []string `json:"strengths"`
		Weaknesses []string `json:"weaknesses"`
		Score      float64  `json:"score"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err == nil {
		critique.Strengths = parsed.Strengths
		critique.Weaknesses = parsed.Weaknesses
		if parsed.Score >= 1 && parsed.Score <= 10 {
			critique.Score = parsed.Score
		}
	} else if score, ok := extractScore(resp.Content); ok {
		critique.Score = score
	}
	return critique, nil
}

// Vote picks one proposal among the candidates. The engine passes only
// other agents' proposals; a self-vote can therefore never occur. Parse
// failures fall back to the first candidate.
func (a *BaseAgent) Vote(ctx context.Context, topic string, candidates []*models.Proposal) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no candidates to vote on")
	}

	ballot := make([]prompt.VoteCandidate, 0, len(candidates))
	for _, p := range candidates {
		summary := p.Content
		if len(summary) > 300 {
			summary = summary[:300] + "…"
		}
		ballot = append(ballot, prompt.VoteCandidate{ID: p.ID, Summary: summary})
	}

	promptText, err := prompt.Vote(topic, ballot)
	if err != nil {
		return "", err
	}
	resp, err := a.deps.LLM.Completion(ctx, llm.Request{
		Model:       a.provider,
		Messages:    []llm.Message{{Role: "user", Content: promptText}},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("vote failed: %w", err)
	}

	for _, p := range candidates {
		if strings.Contains(resp.Content, p.ID) {
			return p.ID, nil
		}
	}
	a.logger.Warn("unparseable ballot, defaulting to first candidate")
	return candidates[0].ID, nil
}

var (
	scoreSlashRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*10`)
	scoreFieldRe = regexp.MustCompile(`(?i)["']?(?:overall_)?score["']?\s*[:=]\s*(\d+(?:\.\d+)?)`)
)

// extractScore pulls a 0-10 score out of free text ("8/10", "score: 7.5").
func extractScore(s string) (float64, bool) {
	for _, re := range []*regexp.Regexp{scoreFieldRe, scoreSlashRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			var score float64
			if _, err := fmt.Sscanf(m[1], "%f", &score); err == nil && score >= 0 && score <= 10 {
				return score, true
			}
		}
	}
	return 0, false
}

// extractJSONObject trims prose or code fencing around a JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func slugify(label string) string {
	out := strings.ToLower(strings.TrimSpace(label))
	out = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, out)
	return strings.Trim(out, "_")
}

func stringFrom(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// reworkFrom extracts the supervisor feedback extension, if present.
func reworkFrom(ctx map[string]any) *prompt.ReworkContext {
	if ctx == nil {
		return nil
	}
	feedback := stringFrom(ctx, "supervisor_feedback")
	prev := stringFrom(ctx, "previous_attempt")
	if feedback == "" && prev == "" {
		return nil
	}
	rc := &prompt.ReworkContext{
		Feedback:        feedback,
		PreviousAttempt: prev,
		Decision:        stringFrom(ctx, "supervisor_decision"),
		Instruction:     stringFrom(ctx, "rework_instruction"),
	}
	if score, ok := ctx["supervisor_score"].(float64); ok {
		rc.Score = score
	}
	return rc
}
