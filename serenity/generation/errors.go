package generation

import (
	"errors"
)

var (
	// ErrModelUnavailable means the model could not be loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrGenerationTimeout means the caller deadline elapsed before a reply was produced.
	ErrGenerationTimeout = errors.New("generation timed out")
	// ErrGenerationFailed covers provider errors, admission refusals and recovered panics.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrClassification marks a failure while classifying the message.
	ErrClassification = errors.New("classification failed")
)

const (
	GenericFallbackReply = "I'm here to support you. Could you tell me more about what you're experiencing?"
	TimeoutFallbackReply = "I'm here with you. Let's take a deep breath while I process your thoughts."
	// EmptyReplyFallback replaces a completion that is empty after cleaning.
	EmptyReplyFallback = "I'm here to support you. How are you feeling today?"
)

// FallbackReply maps a pipeline error to the reply shown instead of a generated one.
func FallbackReply(err error) string {
	if errors.Is(err, ErrGenerationTimeout) {
		return TimeoutFallbackReply
	}
	return GenericFallbackReply
}
