package harness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/serenity/serenity/config"
	"github.com/ZanzyTHEbar/serenity/serenity/db"
	"github.com/ZanzyTHEbar/serenity/serenity/generation/harness/adapters"
	"github.com/ZanzyTHEbar/serenity/serenity/routing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func fakeCompletionServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"text": "` + text + `<|end|>", "index": 0}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFactory_CreateLoaderUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "mystery"

	_, err := NewFactory(cfg, nil, zerolog.Nop()).CreateLoader()
	assert.ErrorContains(t, err, "unknown llm provider")

	_, err = NewFactory(cfg, nil, zerolog.Nop()).CreatePipeline()
	assert.Error(t, err)
}

func TestFactory_OpenAILoaderRequiresModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = ProviderOpenAI
	cfg.LLM.Model = ""

	load, err := NewFactory(cfg, nil, zerolog.Nop()).CreateLoader()
	require.NoError(t, err)

	p, err := load(context.Background())
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestFactory_PipelineWithOpenAIProvider(t *testing.T) {
	srv := fakeCompletionServer(t, "That sounds exhausting. Want to try a short breathing exercise?")

	cfg := testConfig(t)
	cfg.LLM.Provider = ProviderOpenAI
	cfg.LLM.BaseURL = srv.URL + "/v1"
	cfg.LLM.Model = "phi3"
	cfg.Harness.RateLimitEnabled = true

	pipeline, err := NewFactory(cfg, nil, zerolog.Nop()).CreatePipeline()
	require.NoError(t, err)
	defer pipeline.Close()

	assert.False(t, pipeline.Models.Loaded())

	res := pipeline.ProcessTurn(context.Background(), "I am so stressed and overwhelmed at work", "alice")
	require.NoError(t, res.Degraded)
	assert.Equal(t, "That sounds exhausting. Want to try a short breathing exercise?", res.Reply)
	assert.Equal(t, routing.Relaxation, res.Redirect)
	assert.True(t, pipeline.Models.Loaded())
	assert.Equal(t, 2, pipeline.History().Len("alice"))
}

func TestFactory_OpenAIRetriesFromSettings(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error": {"message": "loading model"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices": [{"text": "I'm here with you.", "index": 0}]}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.LLM.Provider = ProviderOpenAI
	cfg.LLM.BaseURL = srv.URL + "/v1"
	cfg.LLM.Model = "phi3"
	cfg.LLM.RetryDelay = 10 * time.Millisecond

	pipeline, err := NewFactory(cfg, nil, zerolog.Nop()).CreatePipeline()
	require.NoError(t, err)
	defer pipeline.Close()

	res := pipeline.ProcessTurn(context.Background(), "I had a long day", "alice")
	require.NoError(t, res.Degraded)
	assert.Equal(t, "I'm here with you.", res.Reply)
	assert.Equal(t, int32(2), calls.Load())

	// with retries disabled the same outage degrades the turn
	calls.Store(0)
	cfg.LLM.MaxRetries = 0
	pipeline2, err := NewFactory(cfg, nil, zerolog.Nop()).CreatePipeline()
	require.NoError(t, err)
	defer pipeline2.Close()

	res = pipeline2.ProcessTurn(context.Background(), "I had a long day", "bob")
	assert.Error(t, res.Degraded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFactory_DefaultGuardrailsKeepSupportiveText(t *testing.T) {
	srv := fakeCompletionServer(t, "A few grounding tokens: breathe, count, rest.")

	cfg := testConfig(t)
	cfg.LLM.Provider = ProviderOpenAI
	cfg.LLM.BaseURL = srv.URL + "/v1"
	cfg.LLM.Model = "phi3"
	require.True(t, cfg.Harness.EnableGuardrails)

	pipeline, err := NewFactory(cfg, nil, zerolog.Nop()).CreatePipeline()
	require.NoError(t, err)
	defer pipeline.Close()

	res := pipeline.ProcessTurn(context.Background(), "I had a long day", "alice")
	require.NoError(t, res.Degraded)
	assert.Equal(t, "A few grounding tokens: breathe, count, rest.", res.Reply)
}

func TestFactory_PipelineWithDatabase(t *testing.T) {
	srv := fakeCompletionServer(t, "I'm glad you told me.")
	ctx := context.Background()

	conn, err := db.ConnectToDB(ctx, db.Options{
		Driver: db.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "serenity.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.Migrate(ctx, conn))

	cfg := testConfig(t)
	cfg.LLM.Provider = ProviderOpenAI
	cfg.LLM.BaseURL = srv.URL + "/v1"
	cfg.LLM.Model = "phi3"

	pipeline, err := NewFactory(cfg, conn, zerolog.Nop()).CreatePipeline()
	require.NoError(t, err)

	res := pipeline.ProcessTurn(ctx, "I had a good day", "alice")
	require.NoError(t, res.Degraded)
	res = pipeline.ProcessTurn(ctx, "there is no point anymore", "alice")
	assert.True(t, res.Crisis)
	assert.Equal(t, cfg.Companion.ContactPath, res.ContactPath)

	require.NoError(t, pipeline.Close())

	archive := adapters.NewSQLArchive(conn)
	turns, err := archive.LoadRecent(ctx, "alice", 20)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "I had a good day", turns[0].Content)
	assert.Equal(t, "I'm glad you told me.", turns[1].Content)

	alerts, err := archive.Alerts(ctx, adapters.AlertPending)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "alice", alerts[0].Identity)
}

func TestFactory_GeneratorConfigFromSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.MaxNewTokens = 64
	cfg.LLM.Temperature = 0.5
	cfg.Generation.Workers = 0

	gc := NewFactory(cfg, nil, zerolog.Nop()).generatorConfig()
	assert.Equal(t, 64, gc.Options.MaxNewTokens)
	assert.InDelta(t, 0.5, gc.Options.Temperature, 1e-6)
	assert.Equal(t, 2, gc.Workers)
	assert.Equal(t, cfg.Generation.Timeout, gc.Timeout)
}
