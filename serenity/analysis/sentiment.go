package analysis

import "strings"

const sentimentMagnitude = 0.6

var (
	positiveWords = []string{"happy", "good", "great", "well", "fine", "okay", "ok", "better", "glad", "excited"}
	negativeWords = []string{"sad", "bad", "terrible", "awful", "horrible", "worst", "hate", "disappointed", "upset"}
)

// SentimentClassifier derives a coarse polarity from substring word lists.
type SentimentClassifier struct {
	positive []string
	negative []string
}

func NewSentimentClassifier() *SentimentClassifier {
	return &SentimentClassifier{positive: positiveWords, negative: negativeWords}
}

// Classify compares how many positive and negative words occur in text.
// Each listed word counts once however often it repeats.
func (c *SentimentClassifier) Classify(text string) SentimentResult {
	lower := strings.ToLower(text)
	pos := countAll(lower, c.positive)
	neg := countAll(lower, c.negative)

	switch {
	case pos > neg:
		return SentimentResult{Label: Positive, Score: sentimentMagnitude}
	case neg > pos:
		return SentimentResult{Label: Negative, Score: -sentimentMagnitude}
	default:
		return SentimentResult{Label: NeutralPolarity, Score: 0}
	}
}

func countAll(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}
