package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqrag/internal/domain"
	"seqrag/internal/llm"
)

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float64{1, 0}, nil
}

type fakeSearcher struct {
	dense    []domain.SearchResult
	lexical  []domain.SearchResult
	denseK   int
	lexQuery string
}

func (f *fakeSearcher) Dense(_ context.Context, _ []float64, k int) ([]domain.SearchResult, error) {
	f.denseK = k
	if k < len(f.dense) {
		return f.dense[:k], nil
	}
	return f.dense, nil
}

func (f *fakeSearcher) Lexical(query string, k int) []domain.SearchResult {
	f.lexQuery = query
	if k < len(f.lexical) {
		return f.lexical[:k]
	}
	return f.lexical
}

type fakeExamples map[string]domain.Example

func (f fakeExamples) Example(id string) (domain.Example, bool) {
	ex, ok := f[id]
	return ex, ok
}

type fakeCompleter struct {
	reply string
	err   error
	reqs  []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

func hit(id, text string, score float64) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{ChunkID: id, Text: text}, Score: score}
}

func summaryHit(parent string, score float64) domain.SearchResult {
	return domain.SearchResult{
		Chunk: domain.Chunk{ChunkID: "summary:" + parent, Text: "summary of " + parent, Metadata: map[string]string{"parent_id": parent}},
		Score: score,
	}
}

func texts(items []domain.ContextItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"":             StrategyNone,
		"none":         StrategyNone,
		"HyDE":         StrategyHyDE,
		"summary":      StrategySummary,
		"summary_mean": StrategySummaryMean,
		"summary-mean": StrategySummaryMean,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStrategy("bm25")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("")
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = ParseWeights("0.7, 0.3")
	require.NoError(t, err)
	assert.Equal(t, &Weights{Dense: 0.7, Lexical: 0.3}, w)

	for _, bad := range []string{"0.5", "a,b", "1,2,3", "-1,1", "0,0"} {
		_, err := ParseWeights(bad)
		assert.Error(t, err, bad)
	}
}

func TestRetrieve_DispatchTable(t *testing.T) {
	content := &fakeSearcher{
		dense:   []domain.SearchResult{hit("c1", "dense one", 0.9), hit("c2", "dense two", 0.5)},
		lexical: []domain.SearchResult{hit("c3", "lexical three", 0.8)},
	}
	summaries := &fakeSearcher{dense: []domain.SearchResult{summaryHit("ex1", 0.7)}, lexical: []domain.SearchResult{summaryHit("ex1", 0.4)}}
	originals := &fakeSearcher{
		dense:   []domain.SearchResult{summaryHit("ex1", 0.5)},
		lexical: []domain.SearchResult{summaryHit("ex1", 0.2)},
	}
	examples := fakeExamples{"ex1": {ID: "ex1", Content: "worked example one", Summary: "summary of ex1"}}
	r := New(Sources{
		Embedder: &fakeEmbedder{}, Content: content, Summaries: summaries, Originals: originals, Examples: examples,
	}, WithTopK(2), WithHyDE(&fakeCompleter{reply: "a hypothetical passage"}, llm.CallParams{MaxTokens: 128}))

	w := &Weights{Dense: 0.5, Lexical: 0.5}
	cases := []struct {
		strategy Strategy
		weights  *Weights
		backend  string
	}{
		{StrategyNone, nil, "vector"},
		{StrategyNone, w, "vector_hybrid"},
		{StrategyHyDE, nil, "hyde"},
		{StrategyHyDE, w, "hyde_hybrid"},
		{StrategySummary, nil, "summary"},
		{StrategySummary, w, "summary_hybrid"},
		{StrategySummaryMean, nil, "summary_mean"},
		{StrategySummaryMean, w, "summary_mean_hybrid"},
	}
	seen := map[string]bool{}
	for _, tc := range cases {
		res, err := r.Retrieve(context.Background(), "what is a pn junction?", tc.strategy, tc.weights)
		require.NoError(t, err, tc.backend)
		assert.Equal(t, tc.backend, res.Backend)
		assert.NotEmpty(t, res.Items, tc.backend)
		seen[res.Backend] = true
	}
	assert.Len(t, seen, 8)
}

func TestRetrieve_VectorHasNoExplanation(t *testing.T) {
	content := &fakeSearcher{dense: []domain.SearchResult{hit("c1", "alpha", 0.9), hit("c2", "beta", 0.3)}}
	r := New(Sources{Embedder: &fakeEmbedder{}, Content: content}, WithTopK(5))

	res, err := r.Retrieve(context.Background(), "q", StrategyNone, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Explanation)
	assert.Equal(t, []string{"alpha", "beta"}, texts(res.Items))
	assert.Equal(t, 5, content.denseK)
}

func TestRetrieve_HybridFusesScores(t *testing.T) {
	content := &fakeSearcher{
		dense:   []domain.SearchResult{hit("a", "A", 0.9), hit("b", "B", 0.6)},
		lexical: []domain.SearchResult{hit("b", "B", 1.0), hit("c", "C", 0.7)},
	}
	r := New(Sources{Embedder: &fakeEmbedder{}, Content: content}, WithTopK(3))

	// a = 0.9*0.2 = 0.18, b = 0.6*0.2 + 1.0*0.8 = 0.92, c = 0.7*0.8 = 0.56
	res, err := r.Retrieve(context.Background(), "q", StrategyNone, &Weights{Dense: 0.2, Lexical: 0.8})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"B", "C", "A"}, texts(res.Items)); diff != "" {
		t.Errorf("fused order mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, res.Explanation, "dense 0.20, lexical 0.80")
	assert.Equal(t, 9, content.denseK)
}

func TestRetrieve_HyDEEmbedsPassage(t *testing.T) {
	emb := &fakeEmbedder{}
	gen := &fakeCompleter{reply: "Silicon has an indirect band gap of 1.12 eV."}
	content := &fakeSearcher{dense: []domain.SearchResult{hit("c1", "band gaps", 0.8)}, lexical: []domain.SearchResult{hit("c2", "other", 0.5)}}
	r := New(Sources{Embedder: emb, Content: content}, WithHyDE(gen, llm.CallParams{MaxTokens: 256, Temperature: 0.5}))

	res, err := r.Retrieve(context.Background(), "What is the band gap of Si?", StrategyHyDE, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{gen.reply}, emb.texts)
	assert.Equal(t, "Hypothetical document: "+gen.reply, res.Explanation)
	require.Len(t, gen.reqs, 1)
	assert.Equal(t, "What is the band gap of Si?", gen.reqs[0].User)
	assert.Equal(t, 256, gen.reqs[0].MaxTokens)

	_, err = r.Retrieve(context.Background(), "What is the band gap of Si?", StrategyHyDE, &Weights{Dense: 1, Lexical: 1})
	require.NoError(t, err)
	assert.Equal(t, "What is the band gap of Si?", content.lexQuery)
}

func TestRetrieve_HyDEWithoutGenerator(t *testing.T) {
	r := New(Sources{Embedder: &fakeEmbedder{}, Content: &fakeSearcher{}})
	_, err := r.Retrieve(context.Background(), "q", StrategyHyDE, nil)
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestRetrieve_SummaryResolvesOriginals(t *testing.T) {
	summaries := &fakeSearcher{dense: []domain.SearchResult{
		summaryHit("ex2", 0.9), summaryHit("ex1", 0.6), summaryHit("ex2", 0.5), summaryHit("ghost", 0.4),
	}}
	examples := fakeExamples{
		"ex1": {ID: "ex1", Content: "original one", Summary: "s1", Metadata: map[string]string{"chapter": "3"}},
		"ex2": {ID: "ex2", Content: "original two", Summary: "s2"},
	}
	r := New(Sources{Embedder: &fakeEmbedder{}, Summaries: summaries, Originals: &fakeSearcher{}, Examples: examples}, WithTopK(3))

	res, err := r.Retrieve(context.Background(), "q", StrategySummary, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"original two", "original one"}, texts(res.Items))
	assert.Equal(t, "3", res.Items[1].Metadata["chapter"])
	assert.Equal(t, "ex1", res.Items[1].Metadata["id"])
	assert.Contains(t, res.Explanation, "ex2 (0.900)")
}

func TestRetrieve_SummaryMeanAveragesBothIndexes(t *testing.T) {
	summaries := &fakeSearcher{dense: []domain.SearchResult{summaryHit("ex1", 0.9), summaryHit("ex2", 0.8)}}
	originals := &fakeSearcher{dense: []domain.SearchResult{summaryHit("ex2", 0.8), summaryHit("ex3", 0.7)}}
	examples := fakeExamples{
		"ex1": {ID: "ex1", Content: "one"},
		"ex2": {ID: "ex2", Content: "two"},
		"ex3": {ID: "ex3", Content: "three"},
	}
	r := New(Sources{Embedder: &fakeEmbedder{}, Summaries: summaries, Originals: originals, Examples: examples})

	// ex1 = 0.45, ex2 = 0.8, ex3 = 0.35
	res, err := r.Retrieve(context.Background(), "q", StrategySummaryMean, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "one", "three"}, texts(res.Items))
}

func TestRetrieve_SummaryWithoutIndex(t *testing.T) {
	r := New(Sources{Embedder: &fakeEmbedder{}, Content: &fakeSearcher{}})
	_, err := r.Retrieve(context.Background(), "q", StrategySummary, nil)
	assert.ErrorIs(t, err, ErrNoSummaryIndex)
}

func TestRetrieve_PropagatesErrors(t *testing.T) {
	boom := errors.New("embedding service down")
	r := New(Sources{Embedder: &fakeEmbedder{err: boom}, Content: &fakeSearcher{}})
	_, err := r.Retrieve(context.Background(), "q", StrategyNone, nil)
	assert.ErrorIs(t, err, boom)

	_, err = r.Retrieve(context.Background(), "q", Strategy("bm25"), nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRetrieve_DenseFallsBackToLexicalOnZeroScores(t *testing.T) {
	content := &fakeSearcher{
		dense:   []domain.SearchResult{hit("a", "A", 0)},
		lexical: []domain.SearchResult{hit("b", "B", 0.5)},
	}
	r := New(Sources{Embedder: &fakeEmbedder{}, Content: content})
	res, err := r.Retrieve(context.Background(), "zzz", StrategyNone, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, texts(res.Items))
}

func TestNormalize(t *testing.T) {
	item := domain.ContextItem{Text: "item", Metadata: map[string]string{"k": "v"}}
	got := Normalize(
		item,
		&domain.ContextItem{Text: "pointer"},
		(*domain.ContextItem)(nil),
		hit("c1", "search result", 0.4),
		"plain string",
		"   ",
		map[string]any{"id": "ex1", "page_content": "record", "metadata": map[string]any{"page": 12}},
		map[string]string{"text": "string record"},
		map[string]any{"page_content": ""},
		map[string]any{"title": "no text"},
		[]map[string]any{{"page_content": "from slice"}},
		42,
		nil,
	)
	want := []domain.ContextItem{
		item,
		{Text: "pointer"},
		{Text: "search result"},
		{Text: "plain string"},
		{Text: "   "},
		{Text: "record", Metadata: map[string]string{"id": "ex1", "page": "12"}},
		{Text: "string record"},
		{Text: ""},
		{Text: "from slice"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
}
