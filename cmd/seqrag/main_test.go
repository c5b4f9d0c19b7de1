package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqrag/internal/config"
	"seqrag/internal/logging"
	"seqrag/internal/retrieval"
)

const offlineConfig = `
chunker:
  type: section
  token_encoding: estimate
log:
  level: error
`

func writeFixture(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	doc := "# Carriers\n\nElectrons and holes carry current in semiconductors. Their density depends on doping.\n\n" +
		"## Mobility\n\nMobility falls as lattice scattering grows with temperature. Impurity scattering dominates at low temperature.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "physics.md"), []byte(doc), 0o644))
	examples := `{"id":"ex1","page_content":"Example: compute the electron mobility at 400 K from the 300 K value.","metadata":{"chapter":3}}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "examples.jsonl"), []byte(examples), 0o644))
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(offlineConfig), 0o644))
	return dir, cfgPath
}

func TestIngestCommand(t *testing.T) {
	dir, cfgPath := writeFixture(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{
		"ingest",
		"--config", cfgPath,
		"--docs", filepath.Join(dir, "*.md"),
		"--examples", filepath.Join(dir, "examples.jsonl"),
	})
	t.Cleanup(func() { rootFlags.docs, rootFlags.examples = nil, "" })

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Documents: 1")
	assert.Contains(t, out.String(), "Examples:  1")
	assert.Contains(t, out.String(), "Summary:")
}

func TestQueryFlagsOptions(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.Retrieval.Strategy = "summary"
	cfg.Retrieval.HybridWeights = []float64{0.5, 0.5}

	opts, err := queryFlags{}.options(cfg)
	require.NoError(t, err)
	assert.Equal(t, retrieval.StrategySummary, opts.Strategy)
	assert.Equal(t, &retrieval.Weights{Dense: 0.5, Lexical: 0.5}, opts.Weights)
	assert.Equal(t, 5, opts.MaxSubquestions)

	opts, err = queryFlags{strategy: "hyde", weights: "0.8,0.2", maxSubquestions: 3}.options(cfg)
	require.NoError(t, err)
	assert.Equal(t, retrieval.StrategyHyDE, opts.Strategy)
	assert.Equal(t, &retrieval.Weights{Dense: 0.8, Lexical: 0.2}, opts.Weights)
	assert.Equal(t, 3, opts.MaxSubquestions)

	_, err = queryFlags{strategy: "bm25"}.options(cfg)
	assert.ErrorIs(t, err, retrieval.ErrUnknownStrategy)
}

func TestBuildStores(t *testing.T) {
	logger = logging.Discard()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	stores, err := buildStores(cfg)
	require.NoError(t, err)
	assert.NotNil(t, stores.Content)
	assert.NotNil(t, stores.Summaries)
	assert.NotNil(t, stores.Originals)

	cfg.VectorStore.Type = "qdrant"
	_, err = buildStores(cfg)
	assert.Error(t, err)

	cfg.VectorStore.Qdrant = &config.QdrantConfig{URL: "http://localhost:6333", Collection: "seqrag"}
	_, err = buildStores(cfg)
	assert.NoError(t, err)

	cfg.VectorStore.Type = "faiss"
	_, err = buildStores(cfg)
	assert.Error(t, err)
}
