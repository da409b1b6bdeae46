package harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZanzyTHEbar/serenity/serenity/config"
	"github.com/ZanzyTHEbar/serenity/serenity/generation"
	"github.com/ZanzyTHEbar/serenity/serenity/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/ZanzyTHEbar/serenity/serenity/generation/models"
	"github.com/ZanzyTHEbar/serenity/serenity/memory"
	"github.com/rs/zerolog"
)

const (
	ProviderGGUF   = "gguf"
	ProviderOpenAI = "openai"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // optional, backs the history archive and crisis alerts
	logger zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, db: db, logger: logger}
}

// Pipeline bundles the orchestrator with the resources it owns.
type Pipeline struct {
	*Orchestrator
	Models    *models.ModelManager
	Generator *generation.ResponseGenerator
}

// Close drains background work, stops the workers and releases the model.
func (p *Pipeline) Close() error {
	p.Orchestrator.Close()
	p.Generator.Close()
	return p.Models.Close()
}

// CreatePipeline builds a fully wired orchestrator from config.
func (f *Factory) CreatePipeline() (*Pipeline, error) {
	loader, err := f.CreateLoader()
	if err != nil {
		return nil, err
	}

	mmCfg := models.DefaultModelManagerConfig()
	if f.cfg.LLM.Provider == ProviderGGUF {
		mmCfg.ModelPath = f.cfg.LLM.ModelPath
	}
	manager := models.NewModelManager(loader, mmCfg, f.logger)
	generator := generation.NewResponseGenerator(manager, f.createRateLimiter(), f.CreateGuardrails(), f.generatorConfig(), f.logger)

	opts := []Option{
		WithTracer(f.createTracer()),
		WithEscalator(f.createEscalator()),
		WithLogger(f.logger.With().Str("component", "Orchestrator").Logger()),
		WithContactPath(f.cfg.Companion.ContactPath),
		WithMaxTokens(f.cfg.LLM.MaxNewTokens),
	}
	if archive := f.createArchive(); archive != nil {
		opts = append(opts, WithArchive(archive))
	}

	history := memory.NewHistoryStore(f.cfg.Companion.HistoryMaxTurns)
	builder := NewPromptBuilder(f.cfg.Companion.PromptWindow)
	orchestrator := NewOrchestrator(history, builder, generator, opts...)

	f.logger.Info().
		Str("provider", f.cfg.LLM.Provider).
		Int("history_max_turns", history.MaxTurns()).
		Int("prompt_window", builder.Window()).
		Bool("archive", f.db != nil).
		Msg("pipeline created")

	return &Pipeline{Orchestrator: orchestrator, Models: manager, Generator: generator}, nil
}

// CreateLoader selects the completion backend. Nothing is loaded until the loader runs.
func (f *Factory) CreateLoader() (models.Loader, error) {
	llm := f.cfg.LLM
	switch llm.Provider {
	case ProviderGGUF, "":
		gguf := models.DefaultGGUFConfig(llm.ModelPath)
		gguf.ContextSize = positive(llm.ContextSize, gguf.ContextSize)
		gguf.Threads = positive(llm.Threads, gguf.Threads)
		gguf.GPULayers = llm.GPULayers
		gguf.PoolSize = positive(llm.PoolSize, gguf.PoolSize)
		return func(context.Context) (ports.Provider, error) {
			p, err := models.NewGGUFProvider(gguf, f.logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, nil
	case ProviderOpenAI:
		return func(context.Context) (ports.Provider, error) {
			p, err := adapters.NewOpenAIProvider(adapters.OpenAIConfig{
				APIKey:     llm.APIKey,
				BaseURL:    llm.BaseURL,
				Model:      llm.Model,
				MaxRetries: llm.MaxRetries,
				RetryDelay: llm.RetryDelay,
			}, f.logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", llm.Provider)
	}
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *generation.Guardrails {
	return generation.NewGuardrails(f.cfg.Harness.EnableGuardrails, f.cfg.Harness.BlockedWords)
}

func (f *Factory) generatorConfig() generation.GeneratorConfig {
	gc := generation.DefaultGeneratorConfig()
	if f.cfg.Generation.Timeout > 0 {
		gc.Timeout = f.cfg.Generation.Timeout
	}
	gc.Workers = positive(f.cfg.Generation.Workers, gc.Workers)
	gc.QueueSize = positive(f.cfg.Generation.QueueSize, gc.QueueSize)

	llm := f.cfg.LLM
	gc.Options.MaxNewTokens = positive(llm.MaxNewTokens, gc.Options.MaxNewTokens)
	gc.Options.TopK = positive(llm.TopK, gc.Options.TopK)
	if llm.Temperature > 0 {
		gc.Options.Temperature = llm.Temperature
	}
	if llm.TopP > 0 {
		gc.Options.TopP = llm.TopP
	}
	if llm.RepetitionPenalty > 0 {
		gc.Options.RepetitionPenalty = llm.RepetitionPenalty
	}
	return gc
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

func (f *Factory) createArchive() ports.HistoryArchive {
	if f.db == nil {
		return nil
	}
	return adapters.NewSQLArchive(f.db)
}

func (f *Factory) createEscalator() ports.Escalator {
	if f.db == nil {
		return adapters.NewLogEscalator(f.logger)
	}
	return adapters.NewSQLArchive(f.db)
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpEscalator implements Escalator interface with no-op behavior.
type noOpEscalator struct{}

func (e *noOpEscalator) Notify(ctx context.Context, identity, message string) error { return nil }

// Ensure all no-op types implement their interfaces.
var (
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
	_ ports.Escalator   = (*noOpEscalator)(nil)
)
