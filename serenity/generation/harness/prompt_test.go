package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/serenity/serenity/analysis"
	"github.com/ZanzyTHEbar/serenity/serenity/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderedTurns counts role markers in the conversation section, excluding the completion cue.
func renderedTurns(prompt string) int {
	_, conv, _ := strings.Cut(prompt, "<|conversation|>")
	return strings.Count(conv, "<|user|>") + strings.Count(conv, "<|assistant|>") - 1
}

func TestPromptBuilder_Build(t *testing.T) {
	b := NewPromptBuilder(0)
	history := []memory.Turn{
		{Role: memory.RoleUser, Content: "I have an exam tomorrow"},
		{Role: memory.RoleAssistant, Content: "That sounds like a lot."},
		{Role: memory.RoleUser, Content: "I am so stressed"},
	}

	prompt, err := b.Build(history, analysis.Stress, analysis.NeutralPolarity)
	require.NoError(t, err)

	// sections appear in a fixed order
	order := []string{"<|system|>", Guideline(analysis.Stress), "<|emotion|>", "Detected emotion: stress", "Sentiment: neutral", "<|conversation|>"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(prompt, marker)
		require.GreaterOrEqual(t, idx, 0, marker)
		assert.Greater(t, idx, last, marker)
		last = idx
	}

	assert.True(t, strings.HasSuffix(prompt, "<|user|>\nI am so stressed\n<|end|>\n<|assistant|>\n"))
	assert.Less(t, strings.Index(prompt, "I have an exam tomorrow"), strings.Index(prompt, "That sounds like a lot."))
	assert.Equal(t, 3, renderedTurns(prompt))
}

func TestPromptBuilder_Window(t *testing.T) {
	b := NewPromptBuilder(4)
	assert.Equal(t, 4, b.Window())

	var history []memory.Turn
	for i := range 12 {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAssistant
		}
		history = append(history, memory.Turn{Role: role, Content: fmt.Sprintf("turn-%02d", i)})
	}

	prompt, err := b.Build(history, analysis.Neutral, analysis.NeutralPolarity)
	require.NoError(t, err)
	assert.Equal(t, 4, renderedTurns(prompt))
	assert.NotContains(t, prompt, "turn-07")
	for i := 8; i < 12; i++ {
		assert.Contains(t, prompt, fmt.Sprintf("turn-%02d", i))
	}
}

func TestPromptBuilder_SkipsBlankTurns(t *testing.T) {
	b := NewPromptBuilder(10)
	prompt, err := b.Build([]memory.Turn{
		{Role: memory.RoleUser, Content: "  "},
		{Role: memory.RoleAssistant, Content: "line one\r\nline two"},
	}, analysis.Sad, analysis.Negative)
	require.NoError(t, err)

	assert.Equal(t, 1, renderedTurns(prompt))
	assert.Contains(t, prompt, "line one\nline two")
	assert.NotContains(t, prompt, "\r")
}

func TestPromptBuilder_EmptyHistory(t *testing.T) {
	prompt, err := NewPromptBuilder(10).Build(nil, analysis.Neutral, analysis.NeutralPolarity)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(prompt, "<|conversation|>\n<|assistant|>\n"))
}

func TestGuideline_UnknownEmotionFallsBackToNeutral(t *testing.T) {
	assert.Equal(t, Guideline(analysis.Neutral), Guideline(analysis.Emotion("bored")))
	for _, e := range []analysis.Emotion{analysis.Happy, analysis.Sad, analysis.Stress, analysis.Anxiety, analysis.Anger} {
		assert.NotEqual(t, Guideline(analysis.Neutral), Guideline(e), e)
	}
}
