package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"seqrag/internal/domain"
	"seqrag/internal/llm"
	"seqrag/internal/logging"
	"seqrag/internal/metrics"
	"seqrag/internal/retrieval"
)

const seedQuestion = "Initial Context (Pre-retrieved Content & Examples)"

// Config is built once at startup from the application config.
type Config struct {
	Domain             string
	MaxSubquestions    int
	ContextBudget      int
	ContentPreviewDocs int
	ExamplePreviewDocs int
	Decompose          llm.CallParams
	DecomposeSeeded    llm.CallParams
	Synthesis          llm.CallParams
}

// Deps are the external collaborators of a pipeline.
type Deps struct {
	LLM       Completer
	Answerer  Answerer
	Retriever Retriever
	// Tokens is optional; when set, composed context sizes are also reported in tokens.
	Tokens domain.TokenCounter
}

// Pipeline decomposes a query, answers the sub-questions in sequence and
// synthesizes a final answer. Independent runs may execute concurrently.
type Pipeline struct {
	cfg        Config
	decomposer *Decomposer
	runner     *Runner
	aggregator *Aggregator
	logger     *log.Logger
}

func New(deps Deps, cfg Config, logger *log.Logger) *Pipeline {
	logger = logging.OrDiscard(logger)
	if cfg.MaxSubquestions <= 0 {
		cfg.MaxSubquestions = DefaultMaxSubquestions
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	if cfg.ContentPreviewDocs <= 0 {
		cfg.ContentPreviewDocs = 3
	}
	if cfg.ExamplePreviewDocs <= 0 {
		cfg.ExamplePreviewDocs = 2
	}
	return &Pipeline{
		cfg: cfg,
		decomposer: NewDecomposer(deps.LLM, DecomposerConfig{
			Domain: cfg.Domain, Standard: cfg.Decompose, Seeded: cfg.DecomposeSeeded,
		}, logger.WithPrefix("decompose")),
		runner:     NewRunner(deps.Retriever, deps.Answerer, Composer{Budget: cfg.ContextBudget}, deps.Tokens, logger.WithPrefix("step")),
		aggregator: NewAggregator(deps.LLM, cfg.Synthesis, cfg.Domain, logger.WithPrefix("aggregate")),
		logger:     logger,
	}
}

// Process runs the plain variant. It never panics and always returns a
// complete result; failures are reported through Status and the text fields.
func (p *Pipeline) Process(ctx context.Context, query string, opts Options) PipelineResult {
	return p.run(ctx, query, opts, nil)
}

// ProcessWithExpansion seeds decomposition and every step with a preview of
// documents fetched for the query beforehand. Example records are mappings
// with a page_content (or text) key.
func (p *Pipeline) ProcessWithExpansion(ctx context.Context, query string, contentDocs []domain.ContextItem, exampleDocs []map[string]any, opts Options) PipelineResult {
	return p.run(ctx, query, opts, &expansion{content: contentDocs, examples: exampleDocs})
}

type expansion struct {
	content  []domain.ContextItem
	examples []map[string]any
}

func (e *expansion) variant() string {
	if e == nil {
		return "plain"
	}
	return "expansion"
}

func (p *Pipeline) run(ctx context.Context, query string, opts Options, exp *expansion) (res PipelineResult) {
	start := time.Now()
	variant := exp.variant()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("pipeline panicked", "panic", rec, "stack", string(debug.Stack()))
			res = failureResult(query, fmt.Errorf("panic: %v", rec), exp)
		}
		metrics.PipelineRuns.WithLabelValues(variant, string(res.Status)).Inc()
		metrics.PipelineDuration.WithLabelValues(variant).Observe(time.Since(start).Seconds())
		p.logger.Info("pipeline finished", "variant", variant, "status", res.Status,
			"steps", len(res.SubquestionResults), "took", time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return failureResult(query, err, exp)
	}
	limit := opts.MaxSubquestions
	if limit <= 0 {
		limit = p.cfg.MaxSubquestions
	}
	if opts.Strategy == "" {
		opts.Strategy = retrieval.StrategyNone
	}

	var initial string
	var seed *StepResult
	if exp != nil {
		initial = p.initialContext(exp)
		if initial != "" {
			seed = &StepResult{Question: seedQuestion, Answer: initial, StepNumber: 0, Status: StepOK}
		}
	}

	dec := p.decomposer.Decompose(ctx, query, limit, initial)
	results, err := p.runner.Run(ctx, dec.Questions, opts, seed)
	if err != nil {
		return failureResult(query, err, exp)
	}
	syn := p.aggregator.Aggregate(ctx, query, results)
	if err := ctx.Err(); err != nil {
		return failureResult(query, err, exp)
	}

	res = PipelineResult{
		OriginalQuery:         query,
		Subquestions:          dec.Questions,
		SubquestionResults:    results,
		FinalAnswer:           syn.Answer,
		DecompositionFallback: dec.Fallback,
		SynthesisFallback:     syn.Fallback,
		Status:                RunComplete,
	}
	if dec.Fallback || syn.Fallback || anyFailed(results) {
		res.Status = RunDegraded
	}

	var sections, trace []string
	if initial != "" {
		sections = append(sections, "=== Initial Context ===\n"+initial)
		trace = append(trace, "Initial Context:\n"+initial)
	}
	if exp != nil {
		res.AllContextDocs = append(res.AllContextDocs, exp.content...)
	}
	for i, r := range results {
		n := i + 1
		if r.RetrievedContext != "" {
			sections = append(sections, fmt.Sprintf("=== Step %d Retrieved Context ===\n%s", n, r.RetrievedContext))
		}
		res.AllContextDocs = append(res.AllContextDocs, r.Items...)
		trace = append(trace, fmt.Sprintf("Step %d Q: %s\nStep %d A: %s", n, r.Question, n, r.Answer))
	}
	res.CombinedContext = strings.Join(sections, "\n\n")
	res.CumulativeQAContext = strings.Join(trace, "\n\n")
	if exp == nil {
		res.ProcessingSummary = fmt.Sprintf("Processed %d sub-questions with cumulative context", len(dec.Questions))
	} else {
		res.ProcessingSummary = fmt.Sprintf("Processed %d sub-questions with expansion context (content: %d, examples: %d)",
			len(dec.Questions), len(exp.content), len(exp.examples))
	}
	return res
}

// initialContext previews the first few content and example texts.
func (p *Pipeline) initialContext(exp *expansion) string {
	var parts []string
	if texts := itemTexts(retrieval.Normalize(exp.content), p.cfg.ContentPreviewDocs); len(texts) > 0 {
		parts = append(parts, "Available Content:\n"+strings.Join(texts, "\n"))
	}
	if texts := itemTexts(retrieval.Normalize(exp.examples), p.cfg.ExamplePreviewDocs); len(texts) > 0 {
		parts = append(parts, "Available Examples:\n"+strings.Join(texts, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func itemTexts(items []domain.ContextItem, limit int) []string {
	if len(items) > limit {
		items = items[:limit]
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	return texts
}

func anyFailed(results []StepResult) bool {
	for _, r := range results {
		if r.Failed() {
			return true
		}
	}
	return false
}

// failureResult keeps the one-question shape: the query stands in as the
// only sub-question and its step carries the error.
func failureResult(query string, err error, exp *expansion) PipelineResult {
	msg := fmt.Sprintf("Error processing complex query: %s. Please try rephrasing your question.", err)
	summary := "Error occurred during processing"
	if exp != nil {
		msg = fmt.Sprintf("Error processing complex query with expansion: %s. Please try rephrasing your question.", err)
		summary = fmt.Sprintf("Error occurred during expansion processing: %s", err)
	}
	res := PipelineResult{
		OriginalQuery: query,
		Subquestions:  []string{query},
		SubquestionResults: []StepResult{{
			Question:        query,
			PreviousContext: []string{},
			Answer:          msg,
			StepNumber:      1,
			Status:          StepFailed,
			Err:             err.Error(),
		}},
		FinalAnswer:       msg,
		ProcessingSummary: summary,
		Status:            RunFailed,
	}
	if exp != nil {
		res.AllContextDocs = exp.content
	}
	return res
}
