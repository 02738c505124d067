// Package validator performs heuristic quality checks on agent output:
// length by task type, citation counts, truncation, shallow phrasing, and
// structural sections.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/swarmos-ai/swarmos/pkg/models"
)

// Minimum word counts per task type.
var minLengths = map[string]int{
	"research":  600,
	"analysis":  500,
	"code":      200,
	"review":    300,
	"synthesis": 800,
}

const defaultMinLength = 400

// Minimum [n]-style citations per task type when sources were provided.
var minCitations = map[string]int{
	"research": 3,
	"analysis": 2,
}

// shallowPhrases are generic filler that signals low-depth content.
var shallowPhrases = []string{
	"it is important to note",
	"it's important to note",
	"in today's world",
	"in today's fast-paced world",
	"plays a crucial role",
	"plays a vital role",
	"in conclusion",
	"as we can see",
	"there are many factors",
	"a wide range of",
	"various aspects",
	"it goes without saying",
	"at the end of the day",
}

// Task types expected to carry structural sections.
var structuredTypes = map[string]bool{
	"research":  true,
	"analysis":  true,
	"synthesis": true,
}

const (
	severityHigh   = "high"
	severityMedium = "medium"
	severityLow    = "low"
)

var (
	citationRe = regexp.MustCompile(`\[\d+\]`)
	headerRe   = regexp.MustCompile(`(?m)^(#{1,4}\s|\d+\.\s|[-*]\s)`)
)

// Validate scores content against the heuristics for its task type.
// Score starts at 100; deductions are 30 per high, 15 per medium, 5 per
// low issue. Passing requires no high-severity issue and score >= 50.
func Validate(content, taskType string, sourcesProvided bool) *models.ValidationResult {
	var issues []*models.ValidationIssue

	words := len(strings.Fields(content))
	minWords, ok := minLengths[taskType]
	if !ok {
		minWords = defaultMinLength
	}
	if words < minWords {
		issues = append(issues, &models.ValidationIssue{
			Kind:     "too_short",
			Severity: severityHigh,
			Detail:   fmt.Sprintf("%d words, expected at least %d for %s output", words, minWords, displayType(taskType)),
		})
	}

	if sourcesProvided {
		if min, ok := minCitations[taskType]; ok {
			citations := len(citationRe.FindAllString(content, -1))
			if citations < min {
				issues = append(issues, &models.ValidationIssue{
					Kind:     "insufficient_citations",
					Severity: severityMedium,
					Detail:   fmt.Sprintf("%d citations found, expected at least %d", citations, min),
				})
			}
		}
	}

	if truncated(content) {
		issues = append(issues, &models.ValidationIssue{
			Kind:     "truncated",
			Severity: severityHigh,
			Detail:   "content ends mid-sentence or with an ellipsis",
		})
	}

	if count := shallowCount(content); count >= 3 {
		issues = append(issues, &models.ValidationIssue{
			Kind:     "shallow",
			Severity: severityMedium,
			Detail:   fmt.Sprintf("%d generic filler phrases detected", count),
		})
	}

	if structuredTypes[taskType] && !headerRe.MatchString(content) {
		issues = append(issues, &models.ValidationIssue{
			Kind:     "missing_structure",
			Severity: severityLow,
			Detail:   "no headings or list structure in output that should be organized into sections",
		})
	}

	score := 100
	hasHigh := false
	for _, issue := range issues {
		switch issue.Severity {
		case severityHigh:
			score -= 30
			hasHigh = true
		case severityMedium:
			score -= 15
		case severityLow:
			score -= 5
		}
	}
	if score < 0 {
		score = 0
	}

	return &models.ValidationResult{
		Passed: !hasHigh && score >= 50,
		Score:  score,
		Issues: issues,
	}
}

// ReworkFeedback turns a failing result into an instruction for the agent.
func ReworkFeedback(result *models.ValidationResult) string {
	if result.Passed || len(result.Issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Your previous output did not meet quality requirements. Address the following:\n")
	for _, issue := range result.Issues {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", issue.Severity, issue.Kind, issue.Detail)
	}
	return b.String()
}

// truncated detects output cut off mid-thought: no terminal punctuation,
// or a trailing ellipsis.
func truncated(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	if strings.HasSuffix(trimmed, "...") || strings.HasSuffix(trimmed, "…") {
		return true
	}
	last := trimmed[len(trimmed)-1]
	switch last {
	case '.', '!', '?', ')', ']', '"', '\'', '`', '|':
		return false
	}
	return true
}

func shallowCount(content string) int {
	lower := strings.ToLower(content)
	count := 0
	for _, phrase := range shallowPhrases {
		count += strings.Count(lower, phrase)
	}
	return count
}

func displayType(taskType string) string {
	if taskType == "" {
		return "general"
	}
	return taskType
}
