package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-a11y/internal/config"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/trial"
)

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml), func(string) string { return "" })
	require.NoError(t, err)
	return cfg
}

func TestSummarizer(t *testing.T) {
	assert.Nil(t, Summarizer(testConfig(t, "ai:\n  model: gpt-4o-mini\n")))

	s := Summarizer(testConfig(t, "ai:\n  openrouterKey: or-key\n  model: meta-llama/llama-3-70b\n"))
	require.NotNil(t, s)
	c, ok := s.(*openai.Client)
	require.True(t, ok)
	assert.Equal(t, "openrouter", c.Provider(c.Model))
}

func TestArtifacts_DisabledWithoutEndpoint(t *testing.T) {
	store, err := Artifacts(context.Background(), testConfig(t, "{}"))
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestTrials_FallsBackToMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter, client := Trials(ctx, testConfig(t, "trial:\n  limit: 1\n"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Nil(t, client)
	require.IsType(t, &trial.MemoryLimiter{}, limiter)

	st, err := limiter.Check(ctx, "url-audit", "fp")
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	require.NoError(t, limiter.Record(ctx, "url-audit", "fp"))
	st, err = limiter.Check(ctx, "url-audit", "fp")
	require.NoError(t, err)
	assert.False(t, st.Allowed)
}

func TestOpenStores_UnsupportedDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), testConfig(t, "database:\n  driver: sqlite\n"))
	assert.ErrorContains(t, err, "sqlite")
}
