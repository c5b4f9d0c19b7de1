package service

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"seqrag/internal/domain"
	"seqrag/internal/embedding"
	"seqrag/internal/vectorstore"
)

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Collection is one searchable chunk set backed by a vector store. It keeps
// the chunks in memory as well for lexical scoring.
type Collection struct {
	name  string
	store vectorstore.Storage

	mu     sync.RWMutex
	chunks []domain.Chunk
	tokens []map[string]struct{}
}

func newCollection(name string, store vectorstore.Storage) *Collection {
	return &Collection{name: name, store: store}
}

// Name identifies the collection in logs and errors.
func (c *Collection) Name() string { return c.name }

// Len reports the number of indexed chunks.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

func (c *Collection) reset(chunks []domain.Chunk) {
	tokens := make([]map[string]struct{}, len(chunks))
	for i, ch := range chunks {
		tokens[i] = toTokenSet(ch.Text)
	}
	c.mu.Lock()
	c.chunks, c.tokens = chunks, tokens
	c.mu.Unlock()
}

// Dense runs a vector similarity search.
func (c *Collection) Dense(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	return c.store.Search(ctx, vector, topK)
}

// Search embeds the query and runs a dense search, falling back to lexical
// ranking when the query vector or every score is zero (no shared vocabulary).
func (c *Collection) Search(ctx context.Context, embedder embedding.Embedder, query string, topK int) ([]domain.SearchResult, error) {
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if isZero(vec) {
		return c.Lexical(query, topK), nil
	}
	res, err := c.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.Score > 1e-9 {
			return res, nil
		}
	}
	return c.Lexical(query, topK), nil
}

// Lexical ranks chunks by the Ochiai coefficient of query and chunk word sets.
func (c *Collection) Lexical(query string, topK int) []domain.SearchResult {
	qset := toTokenSet(query)
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]domain.SearchResult, len(c.chunks))
	for i, ch := range c.chunks {
		results[i] = domain.SearchResult{Chunk: ch, Score: ochiai(qset, c.tokens[i])}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK <= 0 {
		topK = 5
	}
	if topK < len(results) {
		results = results[:topK]
	}
	return results
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
