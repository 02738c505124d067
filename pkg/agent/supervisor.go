package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/swarmos-ai/swarmos/pkg/agent/prompt"
	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

// Score thresholds for synthesizing a verdict out of free text:
// >= acceptScore accepts, >= rejectScore reworks, below rejects.
const (
	acceptScore = 8.0
	rejectScore = 5.0
)

// Supervisor is the task-scoped critic. It is stateful: a per-agent
// rework counter bounds how many times the same agent can be sent back.
type Supervisor struct {
	id       string
	taskID   string
	provider string
	llm      Completer

	qualityThreshold  float64
	maxReworkAttempts int

	mu           sync.Mutex
	reworkCounts map[string]int

	logger *slog.Logger
}

// NewSupervisor creates the critic bound to one task.
func NewSupervisor(taskID, provider string, llmClient Completer, qualityThreshold float64, maxReworkAttempts int) *Supervisor {
	if qualityThreshold <= 0 {
		qualityThreshold = 7.0
	}
	if maxReworkAttempts <= 0 {
		maxReworkAttempts = 2
	}
	id := "supervisor_" + uuid.NewString()[:8]
	return &Supervisor{
		id:                id,
		taskID:            taskID,
		provider:          provider,
		llm:               llmClient,
		qualityThreshold:  qualityThreshold,
		maxReworkAttempts: maxReworkAttempts,
		reworkCounts:      make(map[string]int),
		logger:            slog.Default().With("supervisor_id", id, "task_id", taskID),
	}
}

// ID returns the supervisor's agent id.
func (s *Supervisor) ID() string { return s.id }

// ReworkCount returns how many times an agent has been sent to rework.
func (s *Supervisor) ReworkCount(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reworkCounts[agentID]
}

// rawCritique is the structured shape requested from the model.
type rawCritique struct {
	OverallScore   float64  `json:"overall_score"`
	Verdict        string   `json:"verdict"`
	ReworkRequired bool     `json:"rework_required"`
	CriticalIssues []string `json:"critical_issues"`
	ReworkInstr    struct {
		Reason        string   `json:"reason"`
		PriorityFixes []string `json:"priority_fixes"`
	} `json:"rework_instructions"`
}

// Critique reviews one agent output and decides ACCEPT, REWORK, or
// REJECT. An agent already at the rework bound is force-accepted
// regardless of score. Model or parse failures degrade to a neutral
// ACCEPT rather than failing the task.
func (s *Supervisor) Critique(ctx context.Context, agentType, agentID, output, taskDescription, qualityCriteria string) *models.SupervisorCritique {
	critique := &models.SupervisorCritique{AgentID: agentID, AgentType: agentType}

	// Rework bound reached: force ACCEPT before spending a model call.
	s.mu.Lock()
	if s.reworkCounts[agentID] >= s.maxReworkAttempts {
		s.mu.Unlock()
		critique.Score = s.qualityThreshold
		critique.Decision = models.DecisionAccept
		critique.Evaluation = map[string]any{"forced": true, "reason": "rework attempts exhausted"}
		s.logger.Info("forcing ACCEPT, rework attempts exhausted", "agent_id", agentID)
		return critique
	}
	s.mu.Unlock()

	raw, err := s.requestCritique(ctx, agentType, output, taskDescription, qualityCriteria)
	if err != nil {
		s.logger.Warn("critique call failed, accepting by default", "agent_id", agentID, "error", err)
		critique.Score = s.qualityThreshold
		critique.Decision = models.DecisionAccept
		critique.Evaluation = map[string]any{"error": err.Error()}
		return critique
	}

	critique.Score = raw.OverallScore
	critique.ReworkRequired = raw.ReworkRequired
	critique.ReworkInstructions = models.ReworkInstructions{
		Reason:     raw.ReworkInstr.Reason,
		FocusAreas: raw.ReworkInstr.PriorityFixes,
	}
	critique.Evaluation = map[string]any{
		"verdict":         raw.Verdict,
		"critical_issues": raw.CriticalIssues,
	}

	critique.Decision = s.decide(raw)
	if critique.Decision == models.DecisionRework || critique.Decision == models.DecisionReject {
		// Both decisions send the agent back, so both count toward the
		// rework bound.
		critique.ReworkRequired = true
		s.mu.Lock()
		s.reworkCounts[agentID]++
		s.mu.Unlock()
	}

	s.logger.Info("critique complete",
		"agent_id", agentID, "score", critique.Score, "decision", string(critique.Decision))
	return critique
}

// requestCritique asks the model and parses robustly: strict JSON first,
// then regex score and verdict keywords.
func (s *Supervisor) requestCritique(ctx context.Context, agentType, output, taskDescription, qualityCriteria string) (*rawCritique, error) {
	promptText, err := prompt.Supervisor(prompt.SupervisorInput{
		AgentType:       agentType,
		TaskDescription: taskDescription,
		Output:          output,
		QualityCriteria: qualityCriteria,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.llm.Completion(ctx, llm.Request{
		Model:       s.provider,
		Messages:    []llm.Message{{Role: "user", Content: promptText}},
		Temperature: 0.2,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, err
	}

	raw := &rawCritique{}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), raw); err == nil && (raw.OverallScore > 0 || raw.Verdict != "") {
		raw.Verdict = normalizeVerdict(raw.Verdict)
		return raw, nil
	}

	// Fallback extraction from free text.
	score, ok := extractScore(resp.Content)
	if !ok {
		return nil, fmt.Errorf("unparseable critique: %.80s", resp.Content)
	}
	raw.OverallScore = score
	raw.Verdict = normalizeVerdict(verdictKeyword(resp.Content))
	if raw.Verdict == "" {
		raw.Verdict = verdictFromScore(score)
	}
	raw.ReworkRequired = raw.Verdict == "NEEDS_REWORK"
	return raw, nil
}

// decide maps the parsed critique to a decision:
// REJECT only on critical issues or an explicit REJECT verdict;
// REWORK when required, verdict says so, or score below the threshold —
// a low score alone never rejects;
// else ACCEPT.
func (s *Supervisor) decide(raw *rawCritique) models.SupervisorDecision {
	switch {
	case len(raw.CriticalIssues) > 0, raw.Verdict == "REJECT":
		return models.DecisionReject
	case raw.ReworkRequired, raw.Verdict == "NEEDS_REWORK", raw.OverallScore < s.qualityThreshold:
		return models.DecisionRework
	default:
		return models.DecisionAccept
	}
}

// normalizeVerdict folds the model's verdict variants onto the canonical
// three.
func normalizeVerdict(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "ACCEPT", "ACCEPTED", "PASS":
		return "ACCEPT"
	case "REJECT", "REJECTED", "FAIL":
		return "REJECT"
	case "REVISE", "NEEDS_REWORK", "NEEDS_MINOR_IMPROVEMENT", "REWORK":
		return "NEEDS_REWORK"
	default:
		return ""
	}
}

// verdictKeyword scans free text for a verdict word.
func verdictKeyword(s string) string {
	upper := strings.ToUpper(s)
	for _, kw := range []string{"NEEDS_REWORK", "NEEDS_MINOR_IMPROVEMENT", "REVISE", "REJECT", "ACCEPT"} {
		if strings.Contains(upper, kw) {
			return kw
		}
	}
	return ""
}

// verdictFromScore thresholds: >= 8 ACCEPT, 5-7.9 rework, < 5 REJECT.
func verdictFromScore(score float64) string {
	switch {
	case score >= acceptScore:
		return "ACCEPT"
	case score >= rejectScore:
		return "NEEDS_REWORK"
	default:
		return "REJECT"
	}
}
