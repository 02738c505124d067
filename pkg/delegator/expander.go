package delegator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

// Queries scoring at least decompositionThreshold are decomposed; an
// expanded complexity above debateThreshold additionally flags debate.
const (
	decompositionThreshold = 0.4
	debateThreshold        = 0.7
)

// complexityIndicators feed the lexical heuristic: conjunctions, temporal
// sequencing, plurality, and evaluative verbs.
var complexityIndicators = []string{
	" and ", " or ", " then ", " after ", " before ",
	" multiple ", " several ", " various ", " different ",
	" analyze ", " compare ", " evaluate ", " assess ",
}

// QueryExpander scores query complexity and expands ambiguous queries
// into sub-queries and suggested agent roles. The LLM client is optional;
// without one the expander runs on the lexical heuristic alone.
type QueryExpander struct {
	llm    Completer
	logger *slog.Logger
}

// NewExpander creates a query expander. llmClient may be nil.
func NewExpander(llmClient Completer) *QueryExpander {
	return &QueryExpander{
		llm:    llmClient,
		logger: slog.Default().With("component", "query_expander"),
	}
}

// Expand assesses the query and returns either a direct passthrough or a
// decomposed expansion. It never fails: every degradation path lands on
// the direct result.
func (e *QueryExpander) Expand(ctx context.Context, query string) *models.QueryExpansion {
	complexity := e.assessComplexity(ctx, query)

	if complexity < decompositionThreshold {
		return &models.QueryExpansion{
			OriginalQuery:   query,
			ComplexityScore: complexity,
			ExecutionMode:   "direct",
			ExpandedQueries: []string{query},
		}
	}

	expansion := e.modelExpand(ctx, query)
	return &models.QueryExpansion{
		OriginalQuery:       query,
		ComplexityScore:     complexity,
		ExecutionMode:       "decompose",
		ExpandedQueries:     expansion.SubQueries,
		ClarifyingQuestions: expansion.Clarifications,
		IntentHypotheses:    expansion.Intents,
		SuggestedAgents:     suggestAgents(expansion.SubQueries),
		RequiresDebate:      expansion.Complexity > debateThreshold,
	}
}

// lexicalComplexity maps the indicator count onto [0.3, 0.9].
func lexicalComplexity(query string) float64 {
	lower := strings.ToLower(query)
	count := 0
	for _, indicator := range complexityIndicators {
		if strings.Contains(lower, indicator) {
			count++
		}
	}
	score := 0.3 + float64(count)*0.1
	if score > 0.9 {
		score = 0.9
	}
	return score
}

const assessPromptFmt = `You are analyzing query complexity for a multi-agent system.

Query: %s

Consider: multiple entities or concepts, temporal sequences, conditional
logic, cross-domain knowledge, ambiguous scope or implicit requirements.
0.0-0.3 is a simple single-step task, 0.3-0.6 moderate, 0.6-1.0 complex.

Respond with a JSON object: {"overall": number from 0.0 to 1.0}
Return only the JSON object.`

// assessComplexity starts from the lexical heuristic and lets the model
// refine it when a client is configured. Model failures keep the
// heuristic score.
func (e *QueryExpander) assessComplexity(ctx context.Context, query string) float64 {
	base := lexicalComplexity(query)
	if e.llm == nil {
		return base
	}

	resp, err := e.llm.Completion(ctx, llm.Request{
		Model:       "auto",
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(assessPromptFmt, query)}},
		Temperature: 0.1,
		JSONOutput:  true,
	})
	if err != nil {
		e.logger.Debug("model complexity assessment failed, using heuristic", "error", err)
		return base
	}

	var parsed struct {
		Overall float64 `json:"overall"`
	}
	if err := json.Unmarshal([]byte(jsonObject(resp.Content)), &parsed); err != nil || parsed.Overall <= 0 || parsed.Overall > 1 {
		return base
	}
	return parsed.Overall
}

// queryExpansion is the structured shape requested from the expansion call.
type queryExpansion struct {
	Clarifications []string `json:"clarifications"`
	Intents        []string `json:"intents"`
	SubQueries     []string `json:"sub_queries"`
	Complexity     float64  `json:"complexity"`
}

const expandPromptFmt = `You are expanding an ambiguous query for a multi-agent system.

Query: %s

1. Ambiguity: vague terms, missing constraints, multiple interpretations.
2. Intent: what is the user likely trying to achieve?
3. Decomposition: break into concrete, independently answerable sub-questions.

Respond with a JSON object:
{
  "clarifications": [string],
  "intents": [string],
  "sub_queries": [string],
  "complexity": number from 0.0 to 1.0
}
Return only the JSON object.`

// modelExpand asks for a multi-perspective expansion, degrading to the
// query itself with moderate complexity.
func (e *QueryExpander) modelExpand(ctx context.Context, query string) *queryExpansion {
	fallback := &queryExpansion{
		Intents:    []string{query},
		SubQueries: []string{query},
		Complexity: lexicalComplexity(query),
	}
	if e.llm == nil {
		return fallback
	}

	resp, err := e.llm.Completion(ctx, llm.Request{
		Model:       "auto",
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(expandPromptFmt, query)}},
		Temperature: 0.3,
		JSONOutput:  true,
	})
	if err != nil {
		e.logger.Warn("query expansion failed, using fallback", "error", err)
		return fallback
	}

	parsed := &queryExpansion{}
	if err := json.Unmarshal([]byte(jsonObject(resp.Content)), parsed); err != nil {
		e.logger.Warn("unparseable query expansion, using fallback", "error", err)
		return fallback
	}
	if len(parsed.SubQueries) == 0 {
		parsed.SubQueries = []string{query}
	}
	if parsed.Complexity == 0 {
		parsed.Complexity = 0.5
	}
	return parsed
}

// suggestAgents infers agent roles from keyword patterns per sub-query,
// deduplicated in first-seen order.
func suggestAgents(subQueries []string) []string {
	seen := make(map[string]bool)
	var agents []string
	add := func(role string) {
		if !seen[role] {
			seen[role] = true
			agents = append(agents, role)
		}
	}
	for _, sq := range subQueries {
		lower := strings.ToLower(sq)
		switch {
		case containsAny(lower, "research", "find", "search", "look up", "latest", "current"):
			add("researcher")
		case containsAny(lower, "code", "program", "implement", "build", "script"):
			add("coder")
		case containsAny(lower, "review", "critique", "verify"):
			add("reviewer")
		case containsAny(lower, "summarize", "synthesize", "write", "report"):
			add("synthesizer")
		default:
			add("analyst")
		}
	}
	return agents
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
