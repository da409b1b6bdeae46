package harnessports

import (
	"context"
)

// Options controls sampling and limits for a single completion.
type Options struct {
	MaxNewTokens      int
	Temperature       float32
	TopP              float32
	TopK              int
	RepetitionPenalty float32
	Seed              int
	Stop              []string
}

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text  string
	Raw   any    // raw provider payload for debugging/telemetry
	Usage *Usage // optional usage information
}

// Provider is the abstraction for all LLM backends. Prompts arrive fully
// rendered; providers must not apply their own chat template.
type Provider interface {
	Complete(ctx context.Context, prompt string, opts Options) (Completion, error)
}
