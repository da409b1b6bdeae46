package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/serenity/serenity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), 20, cfg.Companion.HistoryMaxTurns)
	assert.Equal(suite.T(), 10, cfg.Companion.PromptWindow)
	assert.Equal(suite.T(), internal.DefaultContactPath, cfg.Companion.ContactPath)

	assert.Equal(suite.T(), "gguf", cfg.LLM.Provider)
	assert.Equal(suite.T(), 180, cfg.LLM.MaxNewTokens)
	assert.InDelta(suite.T(), 0.8, cfg.LLM.Temperature, 1e-6)
	assert.InDelta(suite.T(), 0.95, cfg.LLM.TopP, 1e-6)
	assert.Equal(suite.T(), 50, cfg.LLM.TopK)
	assert.InDelta(suite.T(), 1.1, cfg.LLM.RepetitionPenalty, 1e-6)
	assert.Equal(suite.T(), 2, cfg.LLM.MaxRetries)
	assert.Equal(suite.T(), 500*time.Millisecond, cfg.LLM.RetryDelay)

	assert.Equal(suite.T(), 30*time.Second, cfg.Generation.Timeout)
	assert.Equal(suite.T(), time.Second, cfg.Harness.RateLimitRefillRate)
	assert.True(suite.T(), cfg.Harness.EnableGuardrails)
	assert.Empty(suite.T(), cfg.Harness.BlockedWords)

	assert.False(suite.T(), cfg.Database.Enabled)
	assert.Equal(suite.T(), internal.DefaultDatabaseType, cfg.Database.Driver)
	assert.Equal(suite.T(), internal.DefaultDatabaseDSN, cfg.Database.DSN)
	assert.Equal(suite.T(), "info", cfg.Logging.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
companion:
  history_max_turns: 8
llm:
  provider: "openai"
  base_url: "http://localhost:8080/v1"
  model: "phi3"
  max_retries: 0
  retry_delay: "50ms"
generation:
  timeout: "5s"
database:
  enabled: true
  dsn: "file:test.db"
`
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 8, cfg.Companion.HistoryMaxTurns)
	assert.Equal(suite.T(), "openai", cfg.LLM.Provider)
	assert.Equal(suite.T(), "http://localhost:8080/v1", cfg.LLM.BaseURL)
	assert.Equal(suite.T(), "phi3", cfg.LLM.Model)
	assert.Equal(suite.T(), 0, cfg.LLM.MaxRetries)
	assert.Equal(suite.T(), 50*time.Millisecond, cfg.LLM.RetryDelay)
	assert.Equal(suite.T(), 5*time.Second, cfg.Generation.Timeout)
	assert.True(suite.T(), cfg.Database.Enabled)
	assert.Equal(suite.T(), "file:test.db", cfg.Database.DSN)

	// Untouched keys keep their defaults
	assert.Equal(suite.T(), 10, cfg.Companion.PromptWindow)
}

func (suite *ConfigTestSuite) TestEnvironmentOverride() {
	suite.T().Setenv("LLM_API_KEY", "sk-test")
	suite.T().Setenv("GENERATION_WORKERS", "7")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "sk-test", cfg.LLM.APIKey)
	assert.Equal(suite.T(), 7, cfg.Generation.Workers)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
llm:
  provider: "gguf"
  invalid_yaml: [unclosed bracket
`
	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(malformedContent), 0o644))

	cfg, err := LoadConfig(configFile)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestWatchReloadsOnWrite() {
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte("logging:\n  level: info\n"), 0o644))

	v, err := NewViper(configFile)
	require.NoError(suite.T(), err)

	reloaded := make(chan *Config, 4)
	Watch(v, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case reloaded <- cfg:
		default:
		}
	})

	require.NoError(suite.T(), os.WriteFile(configFile, []byte("logging:\n  level: debug\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Logging.Level == "debug" {
				return
			}
		case <-deadline:
			suite.T().Fatal("config change was not observed")
		}
	}
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for b.Loop() {
		if _, err := LoadConfig(""); err != nil {
			b.Fatal(err)
		}
	}
}
