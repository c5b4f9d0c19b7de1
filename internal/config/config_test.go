package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, 5, cfg.Pipeline.MaxSubquestions)
	assert.Equal(t, 25000, cfg.Pipeline.ContextBudget)
	assert.Equal(t, 3, cfg.Pipeline.ContentPreviewDocs)
	assert.Equal(t, 2, cfg.Pipeline.ExamplePreviewDocs)
	assert.Equal(t, 5000, cfg.LLM.Decompose.MaxTokens)
	assert.InDelta(t, 0.3, cfg.LLM.Decompose.Temperature, 1e-9)
	assert.Equal(t, 1000, cfg.LLM.DecomposeSeed.MaxTokens)
	assert.Equal(t, 2000, cfg.LLM.Synthesis.MaxTokens)
	assert.InDelta(t, 0.2, cfg.LLM.Synthesis.Temperature, 1e-9)
}

func TestLoad_AppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
embedder:
  type: openai
  openai: {}
llm:
  model: llama3
  answer:
    max_tokens: 300
    temperature: 0
pipeline:
  max_subquestions: 3
retrieval:
  strategy: hyde
  hybrid_weights: [0.6, 0.4]
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 300, cfg.LLM.Answer.MaxTokens)
	assert.Zero(t, cfg.LLM.Answer.Temperature)
	assert.Equal(t, 3, cfg.Pipeline.MaxSubquestions)
	assert.Equal(t, 25000, cfg.Pipeline.ContextBudget)
	assert.Equal(t, "hyde", cfg.Retrieval.Strategy)
	assert.Equal(t, []float64{0.6, 0.4}, cfg.Retrieval.HybridWeights)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.LLM.Model = "gpt-4o"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
