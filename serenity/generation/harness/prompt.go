package harness

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ZanzyTHEbar/serenity/serenity/analysis"
	"github.com/ZanzyTHEbar/serenity/serenity/memory"
)

// DefaultPromptWindow is how many recent turns are rendered into a prompt.
const DefaultPromptWindow = 10

const persona = `You are Serenity, a warm and empathetic wellbeing companion for students.
Talk like a caring friend, not a clinician. Acknowledge how the person feels before suggesting anything.
Never give medical advice or make a diagnosis.`

const rules = `How to reply:
- Two or three sentences at most
- Plain, conversational language
- No stock phrases such as "I understand" or "That must be difficult"
- Do not repeat your previous reply
- Be specific to what the person said`

var guidelines = map[analysis.Emotion]string{
	analysis.Happy:   "The person is in a positive mood. Celebrate it with them and invite them to note what they are grateful for.",
	analysis.Sad:     "The person is feeling low. Be gentle and patient, and suggest putting their feelings into words, for example in a journal.",
	analysis.Stress:  "The person is under pressure. Stay calm and practical, and offer a short relaxation or breathing exercise.",
	analysis.Anxiety: "The person is anxious. Be steady and reassuring, and guide them toward slow breathing or a grounding technique.",
	analysis.Anger:   "The person is angry or frustrated. Help them name what is behind the feeling and suggest a calming breath before acting on it.",
	analysis.Neutral: "The person's mood is neutral. Be friendly and curious, and follow their lead.",
}

// Guideline returns the behavioral guideline for emotion, defaulting to neutral.
func Guideline(emotion analysis.Emotion) string {
	if g, ok := guidelines[emotion]; ok {
		return g
	}
	return guidelines[analysis.Neutral]
}

// promptTemplate fixes section order: persona, guideline, labels, history, completion cue.
const promptTemplate = `<|system|>
{{.Persona}}

Current context:
{{.Guideline}}

{{.Rules}}
<|end|>

<|emotion|>
Detected emotion: {{.Emotion}}
Sentiment: {{.Sentiment}}
<|end|>

<|conversation|>
{{range .Turns}}<|{{.Role}}|>
{{.Content}}
<|end|>
{{end}}<|assistant|>
`

type promptData struct {
	Persona   string
	Guideline string
	Rules     string
	Emotion   analysis.Emotion
	Sentiment analysis.Sentiment
	Turns     []memory.Turn
}

// PromptBuilder renders the delimited completion prompt.
type PromptBuilder struct {
	window int
	tmpl   *template.Template
}

// NewPromptBuilder renders at most window turns; window <= 0 uses DefaultPromptWindow.
func NewPromptBuilder(window int) *PromptBuilder {
	if window <= 0 {
		window = DefaultPromptWindow
	}
	return &PromptBuilder{
		window: window,
		tmpl:   template.Must(template.New("prompt").Parse(promptTemplate)),
	}
}

// Window reports the number of turns rendered.
func (b *PromptBuilder) Window() int { return b.window }

// Build renders history (oldest first) with the classification labels.
func (b *PromptBuilder) Build(history []memory.Turn, emotion analysis.Emotion, sentiment analysis.Sentiment) (string, error) {
	if len(history) > b.window {
		history = history[len(history)-b.window:]
	}

	turns := make([]memory.Turn, 0, len(history))
	for _, t := range history {
		content := strings.TrimSpace(strings.ReplaceAll(t.Content, "\r\n", "\n"))
		if content == "" {
			continue
		}
		turns = append(turns, memory.Turn{Role: t.Role, Content: content})
	}

	var sb strings.Builder
	err := b.tmpl.Execute(&sb, promptData{
		Persona:   persona,
		Guideline: Guideline(emotion),
		Rules:     rules,
		Emotion:   emotion,
		Sentiment: sentiment,
		Turns:     turns,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
