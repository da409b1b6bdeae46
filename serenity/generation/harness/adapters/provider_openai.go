package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible completions endpoint, such as
// a llama.cpp or vLLM server when BaseURL is set.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider sends rendered prompts to the legacy completions API so the
// delimiter layout reaches the model unchanged.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// NewOpenAIProvider creates the client. An API key is only required when
// talking to the default OpenAI endpoint.
func NewOpenAIProvider(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With().Str("component", "OpenAIProvider").Str("model", cfg.Model).Logger(),
	}, nil
}

// Complete requests a completion, retrying transient failures with linear
// backoff until ctx is done. top_k and repetition penalty have no equivalent
// in the completions API and are not sent.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, opts ports.Options) (ports.Completion, error) {
	req := openai.CompletionRequest{
		Model:       p.model,
		Prompt:      prompt,
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * p.retryDelay):
			case <-ctx.Done():
				return ports.Completion{}, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
		}

		resp, err := p.client.CreateCompletion(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			if ctx.Err() != nil || !retryable(err) {
				return ports.Completion{}, lastErr
			}
			p.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("completion failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no completion choices returned", attempt+1)
			continue
		}

		return ports.Completion{
			Text: resp.Choices[0].Text,
			Raw:  resp,
			Usage: &ports.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}, nil
	}
	return ports.Completion{}, fmt.Errorf("completion failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

// retryable reports whether an API error is worth another attempt.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return true
}

var _ ports.Provider = (*OpenAIProvider)(nil)
