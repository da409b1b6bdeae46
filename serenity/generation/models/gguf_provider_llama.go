//go:build llama && !no_llama

package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"
)

// GGUFProvider wraps llama.cpp models behind ports.Provider.
type GGUFProvider struct {
	config *GGUFModelConfig
	pool   chan *llama.LLama
	closed bool

	mu     sync.Mutex
	health *healthTracker

	logger zerolog.Logger
}

// NewGGUFProvider loads PoolSize model instances from config.ModelPath.
func NewGGUFProvider(config *GGUFModelConfig, logger zerolog.Logger) (*GGUFProvider, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	provider := &GGUFProvider{
		config: config,
		pool:   make(chan *llama.LLama, config.PoolSize),
		health: newHealthTracker(config.BreakerThreshold, config.BreakerCooldown),
		logger: logger.With().Str("component", "GGUFProvider").Str("model_path", config.ModelPath).Logger(),
	}

	if err := provider.initializePool(); err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to initialize model pool: %w", err)
	}

	provider.logger.Info().Int("pool_size", config.PoolSize).Msg("GGUFProvider initialized")
	return provider, nil
}

func (p *GGUFProvider) loadModel() (*llama.LLama, error) {
	model, err := llama.New(p.config.ModelPath,
		llama.SetContext(p.config.ContextSize),
		llama.SetGPULayers(p.config.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("llama.New failed: %w", err)
	}
	return model, nil
}

func (p *GGUFProvider) initializePool() error {
	for i := 0; i < p.config.PoolSize; i++ {
		model, err := p.loadModel()
		if err != nil {
			return fmt.Errorf("failed to load model instance %d: %w", i, err)
		}
		p.pool <- model
		p.logger.Debug().Int("instance", i).Msg("loaded model instance")
	}
	return nil
}

// Borrow takes an instance from the pool, waiting up to BorrowTimeout.
func (p *GGUFProvider) Borrow(ctx context.Context) (*llama.LLama, error) {
	p.mu.Lock()
	open := p.health.breakerOpen(time.Now())
	p.mu.Unlock()
	if open {
		return nil, errors.New("circuit breaker is open")
	}

	borrowCtx, cancel := context.WithTimeout(ctx, p.config.BorrowTimeout)
	defer cancel()

	select {
	case model, ok := <-p.pool:
		if !ok {
			return nil, errors.New("provider closed")
		}
		return model, nil
	case <-borrowCtx.Done():
		return nil, fmt.Errorf("borrow timeout after %v: %w", p.config.BorrowTimeout, borrowCtx.Err())
	}
}

// Return puts an instance back, freeing it if the provider was closed meanwhile.
func (p *GGUFProvider) Return(model *llama.LLama) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		model.Free()
		return
	}
	select {
	case p.pool <- model:
	default:
		p.logger.Warn().Msg("pool channel full, freeing model")
		model.Free()
	}
}

// Complete runs a prediction on a pooled instance. Generation stops early
// once ctx is done.
func (p *GGUFProvider) Complete(ctx context.Context, prompt string, opts ports.Options) (ports.Completion, error) {
	if prompt == "" {
		return ports.Completion{}, errors.New("prompt cannot be empty")
	}

	model, err := p.Borrow(ctx)
	if err != nil {
		p.recordFailure(fmt.Errorf("borrow failed: %w", err))
		return ports.Completion{}, fmt.Errorf("failed to borrow model: %w", err)
	}
	defer p.Return(model)

	start := time.Now()
	text, err := model.Predict(prompt, p.predictOptions(ctx, opts)...)
	if err != nil {
		p.recordFailure(err)
		return ports.Completion{}, fmt.Errorf("prediction failed: %w", err)
	}
	if ctx.Err() != nil {
		p.recordFailure(ctx.Err())
		return ports.Completion{}, ctx.Err()
	}

	duration := time.Since(start)
	p.recordSuccess(duration)
	p.logger.Debug().Dur("duration", duration).Int("output_length", len(text)).Msg("text generation completed")

	return ports.Completion{Text: text}, nil
}

func (p *GGUFProvider) predictOptions(ctx context.Context, opts ports.Options) []llama.PredictOption {
	cfg := *p.config
	if opts.MaxNewTokens > 0 {
		cfg.MaxTokens = opts.MaxNewTokens
	}
	if opts.Temperature > 0 {
		cfg.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		cfg.TopP = opts.TopP
	}
	if opts.TopK > 0 {
		cfg.TopK = opts.TopK
	}
	if opts.RepetitionPenalty > 0 {
		cfg.RepetitionPenalty = opts.RepetitionPenalty
	}
	if len(opts.Stop) > 0 {
		cfg.Stop = opts.Stop
	}

	options := []llama.PredictOption{
		llama.SetTemperature(cfg.Temperature),
		llama.SetTopP(cfg.TopP),
		llama.SetTopK(cfg.TopK),
		llama.SetPenalty(cfg.RepetitionPenalty),
		llama.SetTokens(cfg.MaxTokens),
		llama.SetThreads(cfg.Threads),
		llama.SetStopWords(cfg.Stop...),
		llama.SetTokenCallback(func(string) bool { return ctx.Err() == nil }),
	}
	if opts.Seed != 0 {
		options = append(options, llama.SetSeed(opts.Seed))
	}
	return options
}

// GetHealth returns current model health status
func (p *GGUFProvider) GetHealth() *ModelHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health.snapshot()
}

// Close frees every pooled instance. Borrowed instances are freed on Return.
func (p *GGUFProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for {
		select {
		case model := <-p.pool:
			model.Free()
		default:
			close(p.pool)
			p.logger.Info().Msg("GGUFProvider closed")
			return nil
		}
	}
}

func (p *GGUFProvider) recordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.recordSuccess(time.Now(), duration)
}

func (p *GGUFProvider) recordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.recordFailure(time.Now(), err)
	p.logger.Warn().Err(err).Int("failure_count", p.health.failureCount).Msg("operation failed")
}

var _ ports.Provider = (*GGUFProvider)(nil)
