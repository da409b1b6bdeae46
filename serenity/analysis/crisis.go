package analysis

import "strings"

// crisisPhrases are matched as lower-cased substrings, in order.
var crisisPhrases = []string{
	"suicide",
	"kill myself",
	"end my life",
	"self-harm",
	"i want to die",
	"hopeless",
	"no point",
	"better off dead",
	"hurt myself",
	"end it all",
	"not worth living",
	"want to die",
}

// CrisisDetector flags messages expressing self-harm or suicidal intent.
type CrisisDetector struct {
	phrases []string
}

func NewCrisisDetector() *CrisisDetector {
	return &CrisisDetector{phrases: crisisPhrases}
}

// Detect reports whether text contains any crisis phrase.
func (d *CrisisDetector) Detect(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range d.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
