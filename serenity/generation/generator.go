package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/ZanzyTHEbar/serenity/serenity/generation/models"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// GeneratorConfig tunes the worker pool and sampling of a ResponseGenerator.
type GeneratorConfig struct {
	Timeout   time.Duration // caller-side deadline per Generate call
	Workers   int
	QueueSize int
	Options   ports.Options // fixed sampling parameters
}

// DefaultGeneratorConfig returns the production sampling parameters.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Timeout:   30 * time.Second,
		Workers:   2,
		QueueSize: 16,
		Options: ports.Options{
			MaxNewTokens:      180,
			Temperature:       0.8,
			TopP:              0.95,
			TopK:              50,
			RepetitionPenalty: 1.1,
			Stop:              []string{"<|end|>", "<|user|>", "<|assistant|>"},
		},
	}
}

type outcome struct {
	text string
	err  error
}

type job struct {
	ctx       context.Context
	prompt    string
	maxTokens int
	result    chan<- outcome
}

// ResponseGenerator runs completions on a bounded worker pool so a slow
// model never blocks the caller past its deadline. Results arriving after the
// deadline are discarded.
type ResponseGenerator struct {
	models  *models.ModelManager
	limiter ports.RateLimiter
	guard   *Guardrails
	cfg     GeneratorConfig
	logger  zerolog.Logger

	jobs    chan job
	done    chan struct{} // closed when Close starts
	stopped chan struct{} // closed once workers exited and the queue is drained
	once    sync.Once
	workers *pool.Pool
}

// NewResponseGenerator starts cfg.Workers workers. limiter and guard may be nil.
func NewResponseGenerator(m *models.ModelManager, limiter ports.RateLimiter, guard *Guardrails, cfg GeneratorConfig, logger zerolog.Logger) *ResponseGenerator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGeneratorConfig().Timeout
	}
	if guard == nil {
		guard = NewGuardrails(false, nil)
	}

	g := &ResponseGenerator{
		models:  m,
		limiter: limiter,
		guard:   guard,
		cfg:     cfg,
		logger:  logger.With().Str("component", "ResponseGenerator").Logger(),
		jobs:    make(chan job, cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		workers: pool.New().WithMaxGoroutines(cfg.Workers),
	}
	for range cfg.Workers {
		g.workers.Go(g.work)
	}
	return g
}

// Generate renders a reply for prompt. maxTokens <= 0 uses the configured cap.
// Errors wrap ErrGenerationTimeout, ErrModelUnavailable or ErrGenerationFailed.
func (g *ResponseGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	select {
	case <-g.done:
		return "", fmt.Errorf("%w: generator closed", ErrGenerationFailed)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	result := make(chan outcome, 1)
	select {
	case g.jobs <- job{ctx: ctx, prompt: prompt, maxTokens: maxTokens, result: result}:
	case <-ctx.Done():
		return "", deadlineError(ctx)
	case <-g.done:
		return "", fmt.Errorf("%w: generator closed", ErrGenerationFailed)
	}

	select {
	case out := <-result:
		return out.text, out.err
	case <-ctx.Done():
		return "", deadlineError(ctx)
	case <-g.stopped:
		// a job enqueued after the drain gets no result
		select {
		case out := <-result:
			return out.text, out.err
		default:
			return "", fmt.Errorf("%w: generator closed", ErrGenerationFailed)
		}
	}
}

// Close stops the workers after in-flight jobs finish and fails the jobs
// still queued.
func (g *ResponseGenerator) Close() {
	g.once.Do(func() {
		close(g.done)
		g.workers.Wait()
		for {
			select {
			case j := <-g.jobs:
				j.result <- outcome{err: fmt.Errorf("%w: generator closed", ErrGenerationFailed)}
			default:
				close(g.stopped)
				return
			}
		}
	})
}

func (g *ResponseGenerator) work() {
	for {
		// stop before taking another queued job; Close fails what is left
		select {
		case <-g.done:
			return
		default:
		}
		select {
		case <-g.done:
			return
		case j := <-g.jobs:
			out := g.run(j)
			if j.ctx.Err() != nil {
				g.logger.Debug().Err(out.err).Msg("discarding late generation result")
			}
			// buffered; never blocks even when the caller has gone
			j.result <- out
		}
	}
}

func (g *ResponseGenerator) run(j job) (out outcome) {
	var pc panics.Catcher
	pc.Try(func() {
		out.text, out.err = g.complete(j.ctx, j.prompt, j.maxTokens)
	})
	if r := pc.Recovered(); r != nil {
		g.logger.Error().Interface("panic", r.Value).Str("stack", string(r.Stack)).Msg("generation panicked")
		return outcome{err: fmt.Errorf("%w: %w", ErrGenerationFailed, r.AsError())}
	}
	return out
}

func (g *ResponseGenerator) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.limiter != nil {
		release, err := g.limiter.Acquire(ctx, "generate")
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		defer release()
	}

	if g.models == nil {
		return "", fmt.Errorf("%w: no model manager", ErrModelUnavailable)
	}
	provider, err := g.models.Provider(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	opts := g.cfg.Options
	if maxTokens > 0 {
		opts.MaxNewTokens = maxTokens
	}

	start := time.Now()
	completion, err := provider.Complete(ctx, prompt, opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	g.logger.Debug().Dur("duration", time.Since(start)).Int("raw_length", len(completion.Text)).Msg("completion received")

	return g.guard.Clean(completion.Text), nil
}

func deadlineError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrGenerationTimeout
	}
	return fmt.Errorf("%w: %w", ErrGenerationFailed, ctx.Err())
}
