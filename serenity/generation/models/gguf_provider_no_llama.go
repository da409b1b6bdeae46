//go:build !llama || no_llama

package models

import (
	"context"
	"errors"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/rs/zerolog"
)

// ErrLlamaUnavailable is returned by builds without the llama tag.
var ErrLlamaUnavailable = errors.New("llama.cpp not available in this build (rebuild with -tags llama)")

// GGUFProvider is unavailable without cgo llama.cpp bindings.
type GGUFProvider struct{}

// NewGGUFProvider validates config and reports that local inference is not compiled in.
func NewGGUFProvider(config *GGUFModelConfig, _ zerolog.Logger) (*GGUFProvider, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return nil, ErrLlamaUnavailable
}

func (p *GGUFProvider) Complete(context.Context, string, ports.Options) (ports.Completion, error) {
	return ports.Completion{}, ErrLlamaUnavailable
}

func (p *GGUFProvider) GetHealth() *ModelHealth {
	return &ModelHealth{IsHealthy: false, LastError: ErrLlamaUnavailable}
}

func (p *GGUFProvider) Close() error { return nil }

var _ ports.Provider = (*GGUFProvider)(nil)
