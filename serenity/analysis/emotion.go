package analysis

import (
	"math"
	"regexp"
	"strings"
)

const (
	baseScore    = 0.5
	perMatchStep = 0.15
)

// priority fixes both the evaluation order and the tie-break: on equal scores
// the category listed first wins.
var priority = []Emotion{Happy, Sad, Stress, Anxiety, Anger}

// emotionPatterns are compiled case-insensitively with word boundaries.
// A pattern without a trailing boundary matches word prefixes (depress, frustrat).
var emotionPatterns = map[Emotion][]string{
	Happy: {
		`\bhappy\b`, `\bglad\b`, `\bjoy\b`, `\bgreat\b`, `\bgood\b`, `\bexcited\b`,
		`\bthrilled\b`, `\bpleased\b`, `\bdelighted\b`, `\bwonderful\b`, `\bfantastic\b`, `\bamazing\b`,
	},
	Sad: {
		`\bsad\b`, `\bdepress`, `\bdown\b`, `\blonely\b`, `\bempty\b`, `\bmiserable\b`,
		`\bunhappy\b`, `\bdisappointed\b`, `\bupset\b`, `\btearful\b`, `\bcrying\b`, `\bheartbroken\b`,
	},
	Stress: {
		`\bstress\b`, `\bstressed\b`, `\boverwhelm`, `\bpressure\b`, `\bpressured\b`, `\btense\b`,
		`\bstrained\b`, `\bexhausted\b`, `\bburnt out\b`, `\bburnout\b`, `\boverworked\b`,
	},
	Anxiety: {
		`\banxious\b`, `\banxiety\b`, `\bpanic\b`, `\bnervous\b`, `\bworried\b`, `\bworries\b`,
		`\bfearful\b`, `\bscared\b`, `\buneasy\b`, `\bapprehensive\b`, `\btense\b`, `\brestless\b`,
	},
	Anger: {
		`\bangry\b`, `\bfrustrat`, `\birritat`, `\bmad\b`, `\bannoyed\b`,
		`\bfurious\b`, `\brage\b`, `\bresentful\b`, `\bhostile\b`,
	},
}

// Score maps a match count to a confidence in [0.5, 1.0].
func Score(matches int) float64 {
	if matches <= 0 {
		return baseScore
	}
	return math.Min(baseScore+perMatchStep*float64(matches), 1.0)
}

// EmotionClassifier assigns one emotion category to a message using
// keyword patterns. Crisis detection takes absolute priority.
type EmotionClassifier struct {
	crisis   *CrisisDetector
	patterns map[Emotion][]*regexp.Regexp
}

// NewEmotionClassifier compiles the pattern table. A nil detector uses the default phrases.
func NewEmotionClassifier(crisis *CrisisDetector) *EmotionClassifier {
	if crisis == nil {
		crisis = NewCrisisDetector()
	}
	compiled := make(map[Emotion][]*regexp.Regexp, len(emotionPatterns))
	for emotion, patterns := range emotionPatterns {
		for _, p := range patterns {
			compiled[emotion] = append(compiled[emotion], regexp.MustCompile(`(?i)`+p))
		}
	}
	return &EmotionClassifier{crisis: crisis, patterns: compiled}
}

// Classify returns the dominant emotion of text.
func (c *EmotionClassifier) Classify(text string) EmotionResult {
	if strings.TrimSpace(text) == "" {
		return EmotionResult{Emotion: Neutral, Score: baseScore}
	}
	if c.crisis.Detect(text) {
		return EmotionResult{Emotion: Crisis, Score: 1.0}
	}

	best := EmotionResult{Emotion: Neutral, Score: baseScore}
	found := false
	for _, emotion := range priority {
		n := c.Matches(emotion, text)
		if n == 0 {
			continue
		}
		score := Score(n)
		// strict comparison keeps the earlier category on ties
		if !found || score > best.Score {
			best = EmotionResult{Emotion: emotion, Score: score}
			found = true
		}
	}
	return best
}

// Matches counts how many patterns of emotion occur in text. Each pattern counts once.
func (c *EmotionClassifier) Matches(emotion Emotion, text string) int {
	n := 0
	for _, re := range c.patterns[emotion] {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}
