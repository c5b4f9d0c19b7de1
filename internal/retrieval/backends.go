package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"seqrag/internal/domain"
	"seqrag/internal/llm"
)

// ErrNoSummaryIndex is returned by the summary backends when the corpus has
// no example collections wired.
var ErrNoSummaryIndex = errors.New("summary index not available")

// Hybrid backends draw this many times topK candidates from each side before fusing.
const candidateFactor = 3

const hydeSystemPrompt = `Write a short factual passage, as it would appear in a textbook or
reference document, that answers the question. Do not mention the question itself.`

func vectorSearch(ctx context.Context, r *Retriever, question string, _ Weights) ([]domain.ContextItem, string, error) {
	hits, err := r.dense(ctx, r.src.Content, question, r.topK)
	if err != nil {
		return nil, "", err
	}
	return chunkItems(hits), "", nil
}

func vectorHybridSearch(ctx context.Context, r *Retriever, question string, w Weights) ([]domain.ContextItem, string, error) {
	p, err := r.hybridPool(ctx, r.src.Content, question, question, chunkKey)
	if err != nil {
		return nil, "", err
	}
	ranked := p.rank(w.fused, r.topK)
	return candidateItems(ranked), fmt.Sprintf("hybrid fusion (%s) over %d candidates", w, p.len()), nil
}

func hydeSearch(ctx context.Context, r *Retriever, question string, _ Weights) ([]domain.ContextItem, string, error) {
	passage, err := r.hypothetical(ctx, question)
	if err != nil {
		return nil, "", err
	}
	hits, err := r.dense(ctx, r.src.Content, passage, r.topK)
	if err != nil {
		return nil, "", err
	}
	return chunkItems(hits), "Hypothetical document: " + passage, nil
}

// hydeHybridSearch fuses dense scores of the hypothetical passage with
// lexical scores of the question itself.
func hydeHybridSearch(ctx context.Context, r *Retriever, question string, w Weights) ([]domain.ContextItem, string, error) {
	passage, err := r.hypothetical(ctx, question)
	if err != nil {
		return nil, "", err
	}
	p, err := r.hybridPool(ctx, r.src.Content, passage, question, chunkKey)
	if err != nil {
		return nil, "", err
	}
	ranked := p.rank(w.fused, r.topK)
	explanation := fmt.Sprintf("Hypothetical document: %s\nhybrid fusion (%s) over %d candidates", passage, w, p.len())
	return candidateItems(ranked), explanation, nil
}

func summarySearch(ctx context.Context, r *Retriever, question string, _ Weights) ([]domain.ContextItem, string, error) {
	if err := r.requireSummaries(); err != nil {
		return nil, "", err
	}
	hits, err := r.dense(ctx, r.src.Summaries, question, r.topK*candidateFactor)
	if err != nil {
		return nil, "", err
	}
	p := newPool()
	p.addDense(hits, parentKey)
	ranked := p.rank(func(c *candidate) float64 { return c.dense }, r.topK)
	items, explanation := r.resolveExamples(ranked, "summary similarity")
	return items, explanation, nil
}

func summaryHybridSearch(ctx context.Context, r *Retriever, question string, w Weights) ([]domain.ContextItem, string, error) {
	if err := r.requireSummaries(); err != nil {
		return nil, "", err
	}
	p, err := r.hybridPool(ctx, r.src.Summaries, question, question, parentKey)
	if err != nil {
		return nil, "", err
	}
	ranked := p.rank(w.fused, r.topK)
	items, explanation := r.resolveExamples(ranked, fmt.Sprintf("hybrid summary fusion (%s)", w))
	return items, explanation, nil
}

// summaryMeanSearch scores each example by the mean of its summary and
// original-text similarity; a side that did not return the example counts as 0.
func summaryMeanSearch(ctx context.Context, r *Retriever, question string, _ Weights) ([]domain.ContextItem, string, error) {
	p, err := r.meanPool(ctx, question)
	if err != nil {
		return nil, "", err
	}
	ranked := p.rank(meanScore, r.topK)
	items, explanation := r.resolveExamples(ranked, "mean of summary and original similarity")
	return items, explanation, nil
}

func summaryMeanHybridSearch(ctx context.Context, r *Retriever, question string, w Weights) ([]domain.ContextItem, string, error) {
	p, err := r.meanPool(ctx, question)
	if err != nil {
		return nil, "", err
	}
	p.addLexical(r.src.Originals.Lexical(question, r.topK*candidateFactor), parentKey)
	ranked := p.rank(func(c *candidate) float64 {
		return w.Dense*meanScore(c) + w.Lexical*c.lexical
	}, r.topK)
	items, explanation := r.resolveExamples(ranked, fmt.Sprintf("hybrid mean fusion (%s)", w))
	return items, explanation, nil
}

func (r *Retriever) requireSummaries() error {
	if r.src.Summaries == nil || r.src.Originals == nil || r.src.Examples == nil {
		return ErrNoSummaryIndex
	}
	return nil
}

// dense embeds text and searches s, falling back to lexical ranking when
// the text shares no vocabulary with the index.
func (r *Retriever) dense(ctx context.Context, s Searcher, text string, k int) ([]domain.SearchResult, error) {
	if s == nil {
		return nil, errors.New("collection not available")
	}
	vec, err := r.src.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(vec) {
		return s.Lexical(text, k), nil
	}
	hits, err := s.Dense(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		if h.Score > 1e-9 {
			return hits, nil
		}
	}
	return s.Lexical(text, k), nil
}

func (r *Retriever) hybridPool(ctx context.Context, s Searcher, denseText, lexicalText string, key func(domain.Chunk) string) (*pool, error) {
	k := r.topK * candidateFactor
	hits, err := r.dense(ctx, s, denseText, k)
	if err != nil {
		return nil, err
	}
	p := newPool()
	p.addDense(hits, key)
	p.addLexical(s.Lexical(lexicalText, k), key)
	return p, nil
}

func (r *Retriever) meanPool(ctx context.Context, question string) (*pool, error) {
	if err := r.requireSummaries(); err != nil {
		return nil, err
	}
	k := r.topK * candidateFactor
	summaries, err := r.dense(ctx, r.src.Summaries, question, k)
	if err != nil {
		return nil, err
	}
	originals, err := r.dense(ctx, r.src.Originals, question, k)
	if err != nil {
		return nil, err
	}
	p := newPool()
	p.addDense(summaries, parentKey)
	p.addAlt(originals, parentKey)
	return p, nil
}

func (r *Retriever) hypothetical(ctx context.Context, question string) (string, error) {
	if r.generator == nil {
		return "", ErrNoGenerator
	}
	passage, err := r.generator.Complete(ctx, llm.Request{
		System:      hydeSystemPrompt,
		User:        question,
		MaxTokens:   r.hydeParams.MaxTokens,
		Temperature: r.hydeParams.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("hypothetical document: %w", err)
	}
	return passage, nil
}

// resolveExamples maps ranked summary candidates back to the full example texts.
func (r *Retriever) resolveExamples(ranked []*candidate, how string) ([]domain.ContextItem, string) {
	items := make([]domain.ContextItem, 0, len(ranked))
	matched := make([]string, 0, len(ranked))
	for _, c := range ranked {
		ex, ok := r.src.Examples.Example(c.key)
		if !ok {
			r.logger.Warn("summary points at unknown example", "parent_id", c.key)
			continue
		}
		meta := map[string]string{"id": ex.ID, "summary": ex.Summary}
		for k, v := range ex.Metadata {
			meta[k] = v
		}
		items = append(items, domain.ContextItem{Text: ex.Content, Metadata: meta})
		matched = append(matched, fmt.Sprintf("%s (%.3f)", ex.ID, c.score))
	}
	if len(matched) == 0 {
		return items, "No matching examples by " + how
	}
	return items, "Examples ranked by " + how + ": " + strings.Join(matched, ", ")
}

type candidate struct {
	key     string
	chunk   domain.Chunk
	dense   float64
	alt     float64
	lexical float64
	score   float64
}

// pool merges scored hits from several searches by key, keeping the best
// score per source.
type pool struct {
	byKey map[string]*candidate
	order []*candidate
}

func newPool() *pool { return &pool{byKey: map[string]*candidate{}} }

func (p *pool) len() int { return len(p.order) }

func (p *pool) get(key string, ch domain.Chunk) *candidate {
	c, ok := p.byKey[key]
	if !ok {
		c = &candidate{key: key, chunk: ch}
		p.byKey[key] = c
		p.order = append(p.order, c)
	}
	return c
}

func (p *pool) addDense(hits []domain.SearchResult, key func(domain.Chunk) string) {
	for _, h := range hits {
		c := p.get(key(h.Chunk), h.Chunk)
		c.dense = max(c.dense, h.Score)
	}
}

func (p *pool) addAlt(hits []domain.SearchResult, key func(domain.Chunk) string) {
	for _, h := range hits {
		c := p.get(key(h.Chunk), h.Chunk)
		c.alt = max(c.alt, h.Score)
	}
}

func (p *pool) addLexical(hits []domain.SearchResult, key func(domain.Chunk) string) {
	for _, h := range hits {
		c := p.get(key(h.Chunk), h.Chunk)
		c.lexical = max(c.lexical, h.Score)
	}
}

// rank scores every candidate and returns the best k, ties in insertion order.
func (p *pool) rank(score func(*candidate) float64, k int) []*candidate {
	out := make([]*candidate, len(p.order))
	copy(out, p.order)
	for _, c := range out {
		c.score = score(c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

func (w Weights) fused(c *candidate) float64 {
	return w.Dense*c.dense + w.Lexical*c.lexical
}

func meanScore(c *candidate) float64 { return (c.dense + c.alt) / 2 }

func chunkKey(ch domain.Chunk) string {
	if ch.ChunkID != "" {
		return ch.ChunkID
	}
	return ch.DocumentID + "#" + strconv.Itoa(ch.Index)
}

func parentKey(ch domain.Chunk) string {
	if id := ch.Metadata["parent_id"]; id != "" {
		return id
	}
	return chunkKey(ch)
}

func chunkItems(hits []domain.SearchResult) []domain.ContextItem {
	items := make([]domain.ContextItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, domain.ContextItem{Text: h.Chunk.Text, Metadata: h.Chunk.Metadata})
	}
	return items
}

func candidateItems(ranked []*candidate) []domain.ContextItem {
	items := make([]domain.ContextItem, 0, len(ranked))
	for _, c := range ranked {
		items = append(items, domain.ContextItem{Text: c.chunk.Text, Metadata: c.chunk.Metadata})
	}
	return items
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
