package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(AssessmentFile, "classify-system")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Not enough information")
}

func TestGet_Errors(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")

	_, err = Get(AssessmentFile, "nonexistent-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRender_FillsPlaceholders(t *testing.T) {
	ClearCache()

	prompt, err := Render(AssessmentFile, "classify-question", map[string]string{
		"Question": "Is there a board owner?",
		"Excerpt":  "The board owns the plan.",
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Question: Is there a board owner?")
	assert.Contains(t, prompt, "The board owns the plan.")
	assert.NotContains(t, prompt, "{{.")
}

func TestRender_MissingValue(t *testing.T) {
	ClearCache()

	_, err := Render(AssessmentFile, "classify-question", map[string]string{"Question": "Q?"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Excerpt"`)
}

func TestFormat_LeavesUnknownPlaceholders(t *testing.T) {
	result := Format("{{.A}} and {{.B}}", map[string]string{"A": "x"})
	assert.Equal(t, "x and {{.B}}", result)
}

func TestFormat_ValuesAreNotExpandedAgain(t *testing.T) {
	result := Format("{{.A}} {{.B}}", map[string]string{"A": "{{.B}}", "B": "b"})
	assert.Equal(t, "{{.B}} b", result)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Placeholders("{{.B}} {{.A}} {{.B}} {{ .C }}"))
	assert.Empty(t, Placeholders("plain text"))
}

func TestLoadClassifier(t *testing.T) {
	ClearCache()

	c, err := LoadClassifier()
	require.NoError(t, err)
	assert.Contains(t, c.System, "Do not explain")

	prompt, err := c.Question("  Is capex aligned?  ", `see """quoted""" text`)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Question: Is capex aligned?\n")
	assert.Contains(t, prompt, "see '''quoted''' text")
}
