// Package prompt holds the prompt library as data: role templates with
// named slots, plus the shared rework, search, and debate sections.
// Wording here is an asset, not an API contract — the slots are.
package prompt

import (
	"text/template"

	"github.com/swarmos-ai/swarmos/pkg/models"
)

// roleTemplates maps each capability to its role template. The {{.RoleLabel}}
// slot carries the planner's label verbatim, including dynamic roles.
var roleTemplates = map[models.Capability]string{
	models.CapabilityResearch: `You are {{.RoleLabel}}, a research specialist.
Gather accurate, current information and cite sources inline as [n].
Prefer primary sources. Distinguish established facts from claims.`,

	models.CapabilityAnalysis: `You are {{.RoleLabel}}, an analytical specialist.
Break the problem into parts, weigh evidence, and state your reasoning
explicitly. Surface assumptions and quantify uncertainty where you can.`,

	models.CapabilityCoding: `You are {{.RoleLabel}}, a software specialist.
Produce working, idiomatic code with brief usage notes. State the language
and any dependencies. Handle edge cases rather than the happy path only.`,

	models.CapabilityReview: `You are {{.RoleLabel}}, a critical reviewer.
Evaluate the material rigorously: correctness, completeness, clarity, and
risks. Be specific — point at the exact passage or decision you question.`,

	models.CapabilitySynthesis: `You are {{.RoleLabel}}, a synthesis specialist.
Integrate the inputs into one coherent, well-structured answer. Resolve
contradictions explicitly and keep every load-bearing detail.`,
}

const processBody = `
{{- if .OriginalTask}}
Overall task:
{{.OriginalTask}}
{{end}}
Your assignment:
{{.Subtask}}
{{- if .SearchSnippet}}

Current web findings (gathered for you):
{{.SearchSnippet}}
{{- end}}
{{- if .Memories}}

Relevant context from memory:
{{- range .Memories}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Rework}}

--- REWORK REQUIRED ---
A supervisor scored your previous attempt {{printf "%.1f" .Rework.Score}}/10 ({{.Rework.Decision}}).
Feedback: {{.Rework.Feedback}}
{{- if .Rework.Instruction}}
Instruction: {{.Rework.Instruction}}
{{- end}}
Your previous attempt (truncated):
{{.Rework.PreviousAttempt}}

Produce a substantially improved version that addresses every point above.
{{- end}}`

const proposalBody = `Debate topic:
{{.Topic}}

Round {{.Round}}.
{{- if .PreviousProposal}}

Your proposal from the previous round:
{{.PreviousProposal}}
{{- end}}
{{- if .Critiques}}

Critiques your previous proposal received:
{{- range .Critiques}}
- {{.}}
{{- end}}
{{- end}}

State your position for this round. Strengthen it against the critiques,
support it with evidence, and keep it self-contained.`

const critiqueBody = `Debate topic:
{{.Topic}}

Another participant proposed:
{{.Proposal}}

Critique this proposal. Respond with a JSON object:
{"strengths": [string], "weaknesses": [string], "score": number from 1 to 10}
Return only the JSON object.`

const voteBody = `Debate topic:
{{.Topic}}

Candidate proposals:
{{- range .Candidates}}
[{{.ID}}] {{.Summary}}
{{- end}}

Vote for the single strongest proposal. Respond with only its id in brackets.`

const supervisorBody = `You are a strict quality supervisor reviewing the output of a {{.AgentType}} agent.

Task given to the agent:
{{.TaskDescription}}

Agent output:
{{.Output}}
{{- if .QualityCriteria}}

Additional quality criteria:
{{.QualityCriteria}}
{{- end}}

Evaluate rigorously. Respond with a JSON object:
{
  "overall_score": number from 0 to 10,
  "verdict": "ACCEPT" | "NEEDS_REWORK" | "REJECT",
  "rework_required": boolean,
  "critical_issues": [string],
  "rework_instructions": {"reason": string, "priority_fixes": [string]}
}
Return only the JSON object.`

const synthesisBody = `Synthesize the following agent contributions into one final answer
for this task:

{{.OriginalTask}}

{{range .Contributions}}--- {{.Role}} ---
{{.Content}}

{{end}}
{{- if .ValidationSummary}}
Supervisor validation: {{.ValidationSummary}}
{{end}}
Produce the complete final answer. Integrate every contribution, resolve
conflicts explicitly, and do not mention the agents or this process.`

var (
	processTmpl    = template.Must(template.New("process").Parse(processBody))
	proposalTmpl   = template.Must(template.New("proposal").Parse(proposalBody))
	critiqueTmpl   = template.Must(template.New("critique").Parse(critiqueBody))
	voteTmpl       = template.Must(template.New("vote").Parse(voteBody))
	supervisorTmpl = template.Must(template.New("supervisor").Parse(supervisorBody))
	synthesisTmpl  = template.Must(template.New("synthesis").Parse(synthesisBody))

	roleTmpls = func() map[models.Capability]*template.Template {
		out := make(map[models.Capability]*template.Template, len(roleTemplates))
		for cap, body := range roleTemplates {
			out[cap] = template.Must(template.New(string(cap)).Parse(body))
		}
		return out
	}()
)
