package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/rs/zerolog"
)

// ErrNoLoader is returned when a ModelManager was built without a loader.
var ErrNoLoader = errors.New("no model loader configured")

// Loader constructs the completion backend. It may be slow and memory heavy.
type Loader func(ctx context.Context) (ports.Provider, error)

// HealthReporter is implemented by providers that track call outcomes.
type HealthReporter interface {
	GetHealth() *ModelHealth
}

// ModelManager owns the lifecycle of the single chat model: it is loaded on
// first use, shared read-only afterwards, and a failed load is retried on the
// next request.
type ModelManager struct {
	load   Loader
	config *ModelManagerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	provider ports.Provider
	ready    atomic.Bool
	loads    atomic.Int64
	lastErr  error
}

// ModelManagerConfig holds configuration for the model manager
type ModelManagerConfig struct {
	// ModelPath is checked by ValidateModels when set; remote providers leave it empty.
	ModelPath   string
	LoadTimeout time.Duration
}

// DefaultModelManagerConfig returns the default model manager config
func DefaultModelManagerConfig() *ModelManagerConfig {
	return &ModelManagerConfig{LoadTimeout: 2 * time.Minute}
}

// NewModelManager creates a model manager. Nothing is loaded until first use.
func NewModelManager(load Loader, config *ModelManagerConfig, logger zerolog.Logger) *ModelManager {
	if config == nil {
		config = DefaultModelManagerConfig()
	}
	return &ModelManager{
		load:   load,
		config: config,
		logger: logger.With().Str("component", "ModelManager").Logger(),
	}
}

// NewStaticModelManager wraps an already constructed provider.
func NewStaticModelManager(provider ports.Provider) *ModelManager {
	m := NewModelManager(nil, nil, zerolog.Nop())
	m.provider = provider
	m.ready.Store(true)
	return m
}

// Provider returns the loaded model, loading it if needed. Concurrent first
// callers block on the same load instead of loading twice.
func (m *ModelManager) Provider(ctx context.Context) (ports.Provider, error) {
	if m.ready.Load() {
		return m.provider, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready.Load() {
		return m.provider, nil
	}
	if m.load == nil {
		return nil, ErrNoLoader
	}

	loadCtx := ctx
	if m.config.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, m.config.LoadTimeout)
		defer cancel()
	}

	start := time.Now()
	m.loads.Add(1)
	provider, err := m.load(loadCtx)
	if err != nil {
		m.lastErr = err
		m.logger.Error().Err(err).Msg("model load failed")
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	m.provider = provider
	m.lastErr = nil
	m.ready.Store(true)
	m.logger.Info().Dur("duration", time.Since(start)).Msg("model loaded")
	return provider, nil
}

// Loaded reports whether the model is resident.
func (m *ModelManager) Loaded() bool { return m.ready.Load() }

// LoadAttempts reports how many times the loader has been invoked.
func (m *ModelManager) LoadAttempts() int64 { return m.loads.Load() }

// LastError returns the most recent load failure, if the model is not loaded.
func (m *ModelManager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// PreloadModels loads the model ahead of the first request.
func (m *ModelManager) PreloadModels(ctx context.Context) error {
	_, err := m.Provider(ctx)
	return err
}

// ValidateModels checks that the configured model file exists.
func (m *ModelManager) ValidateModels() error {
	if m.config.ModelPath == "" {
		return nil
	}
	if _, err := os.Stat(m.config.ModelPath); err != nil {
		return fmt.Errorf("model file not found: %s: %w", m.config.ModelPath, err)
	}
	return nil
}

// GetHealth returns provider health when the loaded provider tracks it.
func (m *ModelManager) GetHealth() *ModelHealth {
	if !m.ready.Load() {
		return &ModelHealth{IsHealthy: false, LastError: m.LastError()}
	}
	if hr, ok := m.provider.(HealthReporter); ok {
		return hr.GetHealth()
	}
	return &ModelHealth{IsHealthy: true, SuccessRate: 1.0}
}

// Close releases the loaded provider.
func (m *ModelManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready.Load() {
		return nil
	}
	m.ready.Store(false)
	if c, ok := m.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
