package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// goodContent builds well-formed output with the requested word count.
func goodContent(words int) string {
	var b strings.Builder
	b.WriteString("# Findings\n\n")
	sentence := "The measured results support the hypothesis across configurations tested here. "
	for len(strings.Fields(b.String())) < words {
		b.WriteString(sentence)
	}
	b.WriteString("Done.")
	return b.String()
}

func TestValidate_CleanContentPasses(t *testing.T) {
	result := Validate(goodContent(650), "research", false)
	assert.True(t, result.Passed)
	assert.Equal(t, 100, result.Score)
	assert.Empty(t, result.Issues)
}

func TestValidate_TooShortIsHighSeverity(t *testing.T) {
	result := Validate("Short answer.", "research", false)
	assert.False(t, result.Passed)

	require.NotEmpty(t, result.Issues)
	assert.Equal(t, "too_short", result.Issues[0].Kind)
	assert.Equal(t, "high", result.Issues[0].Severity)
}

func TestValidate_TaskTypeMinimums(t *testing.T) {
	// 450 words passes the default (400) but not analysis (500).
	content := goodContent(450)
	assert.True(t, Validate(content, "unknown-type", false).Passed)
	assert.False(t, Validate(content, "analysis", false).Passed)
}

func TestValidate_CitationsOnlyWhenSourcesProvided(t *testing.T) {
	content := goodContent(650) // no [n] citations

	withSources := Validate(content, "research", true)
	require.Len(t, withSources.Issues, 1)
	assert.Equal(t, "insufficient_citations", withSources.Issues[0].Kind)
	assert.Equal(t, 85, withSources.Score)
	assert.True(t, withSources.Passed, "a medium issue alone is not fatal")

	withoutSources := Validate(content, "research", false)
	assert.Empty(t, withoutSources.Issues)
}

func TestValidate_CitationsCounted(t *testing.T) {
	content := goodContent(650) + " Supported by evidence [1] and [2] and [3]."
	result := Validate(content, "research", true)
	assert.Empty(t, result.Issues)
}

func TestValidate_TruncationDetected(t *testing.T) {
	content := strings.TrimSuffix(goodContent(650), "Done.") + "and then the analysis"
	result := Validate(content, "research", false)

	assert.False(t, result.Passed)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "truncated", result.Issues[0].Kind)

	ellipsis := goodContent(650) + "..."
	result = Validate(ellipsis, "research", false)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "truncated", result.Issues[0].Kind)
}

func TestValidate_ShallowPhrasesNeedThree(t *testing.T) {
	base := goodContent(650)
	two := base + " It is important to note this. In conclusion, done."
	assert.Empty(t, Validate(two, "research", false).Issues, "two filler phrases are tolerated")

	three := two + " At the end of the day, results matter."
	result := Validate(three, "research", false)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "shallow", result.Issues[0].Kind)
}

func TestValidate_MissingStructureIsLow(t *testing.T) {
	// Plenty of words, terminal punctuation, but no headings or lists.
	content := strings.Repeat("A flat unbroken wall of analysis text continues onward here. ", 120) + "Done."
	result := Validate(content, "synthesis", false)

	var kinds []string
	for _, issue := range result.Issues {
		kinds = append(kinds, issue.Kind)
	}
	assert.Contains(t, kinds, "missing_structure")
	// code output has no structure requirement
	result = Validate(strings.Repeat("x = compute(y) ", 250)+"return x.", "code", false)
	assert.Empty(t, result.Issues)
}

func TestValidate_ScoreFloorAndPassRule(t *testing.T) {
	// Empty content: too_short (high) + truncated (high) = 100-60 = 40.
	result := Validate("", "research", false)
	assert.False(t, result.Passed)
	assert.Equal(t, 40, result.Score)
}

func TestReworkFeedback(t *testing.T) {
	result := Validate("Short.", "research", false)
	feedback := ReworkFeedback(result)
	assert.Contains(t, feedback, "too_short")
	assert.Contains(t, feedback, "quality requirements")

	passing := Validate(goodContent(650), "research", false)
	assert.Empty(t, ReworkFeedback(passing))
}
