package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"seqrag/internal/domain"
	"seqrag/internal/llm"
	"seqrag/internal/logging"
	"seqrag/internal/metrics"
	"seqrag/internal/service"
)

// ErrNoGenerator is returned by the HyDE backends when no LLM is configured.
var ErrNoGenerator = errors.New("hyde retrieval needs a text generator")

// Searcher is one searchable collection.
type Searcher interface {
	Dense(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Lexical(query string, topK int) []domain.SearchResult
}

// Embedder maps text into the corpus vector space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ExampleLookup resolves a summary's parent id to its example record.
type ExampleLookup interface {
	Example(id string) (domain.Example, bool)
}

// Completer generates the hypothetical passage for HyDE.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Sources are the indexes the backends read from.
type Sources struct {
	Embedder  Embedder
	Content   Searcher
	Summaries Searcher
	Originals Searcher
	Examples  ExampleLookup
}

// FromCorpus wires the three corpus collections as retrieval sources.
func FromCorpus(c *service.Corpus) Sources {
	return Sources{
		Embedder:  c,
		Content:   c.Content(),
		Summaries: c.Summaries(),
		Originals: c.Originals(),
		Examples:  c,
	}
}

// Result is what one retrieval produced.
type Result struct {
	Items       []domain.ContextItem
	Explanation string
	Backend     string
}

type backend func(ctx context.Context, r *Retriever, question string, w Weights) ([]domain.ContextItem, string, error)

type route struct {
	strategy Strategy
	hybrid   bool
}

type namedBackend struct {
	name string
	fn   backend
}

var dispatch = map[route]namedBackend{
	{StrategyNone, false}:        {"vector", vectorSearch},
	{StrategyNone, true}:         {"vector_hybrid", vectorHybridSearch},
	{StrategyHyDE, false}:        {"hyde", hydeSearch},
	{StrategyHyDE, true}:         {"hyde_hybrid", hydeHybridSearch},
	{StrategySummary, false}:     {"summary", summarySearch},
	{StrategySummary, true}:      {"summary_hybrid", summaryHybridSearch},
	{StrategySummaryMean, false}: {"summary_mean", summaryMeanSearch},
	{StrategySummaryMean, true}:  {"summary_mean_hybrid", summaryMeanHybridSearch},
}

// Option configures a Retriever.
type Option func(*Retriever)

func WithTopK(k int) Option { return func(r *Retriever) { r.topK = k } }

func WithLogger(l *log.Logger) Option { return func(r *Retriever) { r.logger = l } }

// WithHyDE sets the generator and call parameters for hypothetical passages.
func WithHyDE(c Completer, params llm.CallParams) Option {
	return func(r *Retriever) { r.generator, r.hydeParams = c, params }
}

// Retriever dispatches a question to one backend per strategy and hybrid
// form. It keeps no per-call state and is safe for concurrent use.
type Retriever struct {
	src        Sources
	topK       int
	generator  Completer
	hydeParams llm.CallParams
	logger     *log.Logger
}

func New(src Sources, opts ...Option) *Retriever {
	r := &Retriever{src: src, topK: 5}
	for _, o := range opts {
		o(r)
	}
	if r.topK <= 0 {
		r.topK = 5
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// Retrieve fetches context for question. A non-nil weights selects the
// hybrid form and is passed to it unchanged. Errors are not retried here.
func (r *Retriever) Retrieve(ctx context.Context, question string, strategy Strategy, weights *Weights) (Result, error) {
	if strategy == "" {
		strategy = StrategyNone
	}
	rt := route{strategy: strategy, hybrid: weights != nil}
	nb, ok := dispatch[rt]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	var w Weights
	if weights != nil {
		w = *weights
	}

	start := time.Now()
	items, explanation, err := nb.fn(ctx, r, question, w)
	if err != nil {
		metrics.RetrievalRequests.WithLabelValues(nb.name, "error").Inc()
		return Result{Backend: nb.name}, fmt.Errorf("%s retrieval: %w", nb.name, err)
	}
	metrics.RetrievalRequests.WithLabelValues(nb.name, "ok").Inc()
	r.logger.Debug("retrieved", "backend", nb.name, "items", len(items), "took", time.Since(start))
	return Result{Items: Normalize(items), Explanation: explanation, Backend: nb.name}, nil
}
