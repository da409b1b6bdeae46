// Package analysis classifies free-text messages into a crisis flag, an
// emotion category with a confidence score, and a coarse sentiment polarity.
// All classifiers are pure and safe for concurrent use.
package analysis

// Emotion is the category assigned to a message.
type Emotion string

const (
	Happy   Emotion = "happy"
	Sad     Emotion = "sad"
	Stress  Emotion = "stress"
	Anxiety Emotion = "anxiety"
	Anger   Emotion = "anger"
	Crisis  Emotion = "crisis"
	Neutral Emotion = "neutral"
)

// Sentiment is the polarity label of a message.
type Sentiment string

const (
	Positive        Sentiment = "positive"
	Negative        Sentiment = "negative"
	NeutralPolarity Sentiment = "neutral"
)

// EmotionResult is the classifier output. Score is in [0, 1].
type EmotionResult struct {
	Emotion Emotion `json:"emotion"`
	Score   float64 `json:"score"`
}

// SentimentResult is the polarity output. Score is in [-1, 1].
type SentimentResult struct {
	Label Sentiment `json:"label"`
	Score float64   `json:"score"`
}

// Result combines both classifiers for a single message.
type Result struct {
	Crisis    bool            `json:"crisis"`
	Emotion   EmotionResult   `json:"emotion"`
	Sentiment SentimentResult `json:"sentiment"`
}

// Analyzer runs the crisis, emotion and sentiment classifiers together.
type Analyzer struct {
	Crisis    *CrisisDetector
	Emotion   *EmotionClassifier
	Sentiment *SentimentClassifier
}

// NewAnalyzer wires the default classifiers.
func NewAnalyzer() *Analyzer {
	crisis := NewCrisisDetector()
	return &Analyzer{
		Crisis:    crisis,
		Emotion:   NewEmotionClassifier(crisis),
		Sentiment: NewSentimentClassifier(),
	}
}

// Analyze classifies text. A crisis message reports emotion crisis regardless
// of any other keywords present.
func (a *Analyzer) Analyze(text string) Result {
	return Result{
		Crisis:    a.Crisis.Detect(text),
		Emotion:   a.Emotion.Classify(text),
		Sentiment: a.Sentiment.Classify(text),
	}
}
