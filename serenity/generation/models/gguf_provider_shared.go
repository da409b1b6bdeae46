package models

import (
	"fmt"
	"time"
)

// GGUFModelConfig holds configuration for GGUF model loading
type GGUFModelConfig struct {
	ModelPath   string
	ContextSize int
	GPULayers   int
	Threads     int
	// Sampling defaults, overridden per call by non-zero ports.Options fields
	MaxTokens         int
	Temperature       float32
	TopP              float32
	TopK              int
	RepetitionPenalty float32
	Stop              []string
	// Pooling and resilience settings
	PoolSize         int
	BorrowTimeout    time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultGGUFConfig returns default configuration for a GGUF chat model
func DefaultGGUFConfig(modelPath string) *GGUFModelConfig {
	return &GGUFModelConfig{
		ModelPath:         modelPath,
		ContextSize:       4096,
		GPULayers:         0, // CPU-only by default
		Threads:           4,
		MaxTokens:         180,
		Temperature:       0.8,
		TopP:              0.95,
		TopK:              50,
		RepetitionPenalty: 1.1,
		Stop:              []string{"<|end|>", "<|user|>", "<|assistant|>"},
		// llama contexts are not reentrant; one instance serializes generation
		PoolSize:         1,
		BorrowTimeout:    30 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  60 * time.Second,
	}
}

// ValidateConfig validates the GGUF model configuration
func ValidateConfig(config *GGUFModelConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if config.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if config.ContextSize <= 0 {
		return fmt.Errorf("context size must be positive, got %d", config.ContextSize)
	}

	if config.GPULayers < 0 {
		return fmt.Errorf("GPU layers cannot be negative, got %d", config.GPULayers)
	}

	if config.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", config.Threads)
	}

	if config.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}

	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.TopP < 0 || config.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %f", config.TopP)
	}

	if config.TopK < 0 {
		return fmt.Errorf("top_k cannot be negative, got %d", config.TopK)
	}

	if config.RepetitionPenalty < 0 {
		return fmt.Errorf("repetition penalty cannot be negative, got %f", config.RepetitionPenalty)
	}

	if config.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", config.PoolSize)
	}

	if config.BorrowTimeout <= 0 {
		return fmt.Errorf("borrow timeout must be positive, got %v", config.BorrowTimeout)
	}

	if config.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker threshold must be positive, got %d", config.BreakerThreshold)
	}

	if config.BreakerCooldown <= 0 {
		return fmt.Errorf("breaker cooldown must be positive, got %v", config.BreakerCooldown)
	}

	return nil
}

// ModelHealth tracks the health status of a model
type ModelHealth struct {
	IsHealthy      bool
	SuccessRate    float64
	AverageLatency time.Duration
	TotalCalls     int64
	SuccessCalls   int64
	FailureCalls   int64
	LastUsed       time.Time
	LastError      error
	ErrorMessages  []string
}

// healthTracker records call outcomes and trips a circuit breaker after
// repeated failures. Shared by both build variants of GGUFProvider.
type healthTracker struct {
	health          ModelHealth
	failureCount    int
	lastFailureTime time.Time
	threshold       int
	cooldown        time.Duration
}

func newHealthTracker(threshold int, cooldown time.Duration) *healthTracker {
	return &healthTracker{
		health:    ModelHealth{IsHealthy: true, SuccessRate: 1.0},
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// breakerOpen reports whether calls should be refused; the breaker resets once the cooldown elapses.
func (h *healthTracker) breakerOpen(now time.Time) bool {
	if h.failureCount < h.threshold {
		return false
	}
	if now.Sub(h.lastFailureTime) > h.cooldown {
		h.failureCount = 0
		return false
	}
	return true
}

func (h *healthTracker) recordSuccess(now time.Time, duration time.Duration) {
	h.health.TotalCalls++
	h.health.SuccessCalls++
	h.health.LastUsed = now
	if h.health.AverageLatency == 0 {
		h.health.AverageLatency = duration
	} else {
		alpha := 0.1
		h.health.AverageLatency = time.Duration(float64(h.health.AverageLatency)*(1-alpha) + float64(duration)*alpha)
	}
	h.health.SuccessRate = float64(h.health.SuccessCalls) / float64(h.health.TotalCalls)
	h.health.IsHealthy = true
	h.failureCount = 0
}

func (h *healthTracker) recordFailure(now time.Time, err error) {
	h.health.TotalCalls++
	h.health.FailureCalls++
	h.health.LastUsed = now
	h.health.LastError = err
	h.health.IsHealthy = false
	if len(h.health.ErrorMessages) >= 10 {
		h.health.ErrorMessages = h.health.ErrorMessages[1:]
	}
	h.health.ErrorMessages = append(h.health.ErrorMessages, err.Error())
	h.health.SuccessRate = float64(h.health.SuccessCalls) / float64(h.health.TotalCalls)
	h.failureCount++
	h.lastFailureTime = now
}

func (h *healthTracker) snapshot() *ModelHealth {
	health := h.health
	health.ErrorMessages = append([]string(nil), h.health.ErrorMessages...)
	return &health
}
