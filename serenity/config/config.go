package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/serenity/serenity"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Companion  CompanionConfig  `mapstructure:"companion"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	Harness    HarnessConfig    `mapstructure:"harness"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CompanionConfig stores conversation-level settings.
type CompanionConfig struct {
	HistoryMaxTurns int    `mapstructure:"history_max_turns"` // Turns kept per identity
	PromptWindow    int    `mapstructure:"prompt_window"`     // Turns rendered into the prompt
	ContactPath     string `mapstructure:"contact_path"`      // Returned on crisis responses
}

// LLMConfig stores language model configurations.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider"`   // "gguf", "openai"
	ModelPath         string  `mapstructure:"model_path"` // GGUF file path
	BaseURL           string  `mapstructure:"base_url"`   // OpenAI-compatible endpoint
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"` // Remote model name
	MaxNewTokens      int     `mapstructure:"max_new_tokens"`
	Temperature       float32 `mapstructure:"temperature"`
	TopP              float32 `mapstructure:"top_p"`
	TopK              int     `mapstructure:"top_k"`
	RepetitionPenalty float32 `mapstructure:"repetition_penalty"`
	ContextSize       int     `mapstructure:"context_size"`
	Threads           int     `mapstructure:"threads"`
	GPULayers         int     `mapstructure:"gpu_layers"`
	PoolSize          int     `mapstructure:"pool_size"` // Concurrent model instances

	MaxRetries int           `mapstructure:"max_retries"` // Remote retries on 429/5xx
	RetryDelay time.Duration `mapstructure:"retry_delay"` // Backoff grows by this much per attempt
}

// GenerationConfig stores worker pool settings for the response generator.
type GenerationConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`    // Caller-side deadline per generation
	Workers   int           `mapstructure:"workers"`    // Worker goroutines
	QueueSize int           `mapstructure:"queue_size"` // Pending jobs before Generate blocks
}

// HarnessConfig stores orchestration harness configurations.
type HarnessConfig struct {
	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`

	// Safety
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	BlockedWords     []string `mapstructure:"blocked_words"`

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // "sqlite", "libsql"
	DSN     string `mapstructure:"dsn"`
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig stores logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console", "json"
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v, err := NewViper(configPath)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// NewViper builds a viper instance with defaults applied and the config file read.
// A missing config file is only an error when configPath is explicit.
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// llm.api_key becomes LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Watch re-decodes the configuration whenever the backing file changes.
// Decoding errors are passed to onChange with a nil config.
func Watch(v *viper.Viper, onChange func(*Config, error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(Decode(v))
	})
	v.WatchConfig()
}

// Decode unmarshals the current viper state into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("companion.history_max_turns", 20)
	v.SetDefault("companion.prompt_window", 10)
	v.SetDefault("companion.contact_path", internal.DefaultContactPath)

	// LLM defaults (sampling tuned for short empathetic replies)
	v.SetDefault("llm.provider", "gguf")
	v.SetDefault("llm.model_path", filepath.Join(internal.DefaultDataDir, "models", "phi-3-mini-4k-instruct.Q4_K_M.gguf"))
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo-instruct")
	v.SetDefault("llm.max_new_tokens", 180)
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.top_k", 50)
	v.SetDefault("llm.repetition_penalty", 1.1)
	v.SetDefault("llm.context_size", 4096)
	v.SetDefault("llm.threads", 4)
	v.SetDefault("llm.gpu_layers", 0)
	v.SetDefault("llm.pool_size", 1)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay", "500ms")

	v.SetDefault("generation.timeout", "30s")
	v.SetDefault("generation.workers", 2)
	v.SetDefault("generation.queue_size", 16)

	v.SetDefault("harness.rate_limit_enabled", false)
	v.SetDefault("harness.rate_limit_capacity", 10)
	v.SetDefault("harness.rate_limit_refill_rate", "1s")
	v.SetDefault("harness.enable_guardrails", true)
	v.SetDefault("harness.blocked_words", []string{})
	v.SetDefault("harness.enable_tracing", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", internal.DefaultDatabaseType)
	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.data_dir", internal.DefaultDataDir)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
