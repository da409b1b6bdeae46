package harness

import (
	"github.com/ZanzyTHEbar/serenity/serenity/analysis"
	"github.com/ZanzyTHEbar/serenity/serenity/generation"
	"github.com/ZanzyTHEbar/serenity/serenity/routing"
)

// CrisisReply is returned verbatim whenever a crisis phrase is detected.
const CrisisReply = "I'm really sorry you're feeling this way. You are not alone. " +
	"I've notified the help desk so they can support you. " +
	"If you're in immediate danger, please reach out to a trusted person or counselor now. " +
	"You matter, and there are people who want to help you."

// TurnResult is the outcome of one processed message.
type TurnResult struct {
	Reply     string
	Emotion   analysis.EmotionResult
	Sentiment analysis.SentimentResult
	Redirect  routing.Redirect
	Crisis    bool
	// ContactPath points the client at human support; set only for crisis turns.
	ContactPath string
	// Degraded holds the error that forced a fallback reply. It is never shown to the user.
	Degraded error
}

// FallbackResult is the non-committal reply used when the pipeline itself fails.
func FallbackResult(err error) TurnResult {
	return TurnResult{
		Reply:     generation.GenericFallbackReply,
		Emotion:   analysis.EmotionResult{Emotion: analysis.Neutral, Score: 0.5},
		Sentiment: analysis.SentimentResult{Label: analysis.NeutralPolarity},
		Redirect:  routing.None,
		Degraded:  err,
	}
}

func crisisResult(contactPath string) TurnResult {
	return TurnResult{
		Reply:       CrisisReply,
		Emotion:     analysis.EmotionResult{Emotion: analysis.Crisis, Score: 1.0},
		Sentiment:   analysis.SentimentResult{Label: analysis.Negative, Score: -0.6},
		Redirect:    routing.Route(analysis.Crisis),
		Crisis:      true,
		ContactPath: contactPath,
	}
}
