package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"seqrag/internal/domain"
	"seqrag/internal/logging"
	"seqrag/internal/metrics"
	"seqrag/internal/retrieval"
)

// Runner answers sub-questions one after another, each with the answers of
// all earlier steps in its context.
type Runner struct {
	retriever Retriever
	answerer  Answerer
	composer  Composer
	counter   domain.TokenCounter
	logger    *log.Logger
}

func NewRunner(r Retriever, a Answerer, composer Composer, counter domain.TokenCounter, logger *log.Logger) *Runner {
	return &Runner{retriever: r, answerer: a, composer: composer, counter: counter, logger: logging.OrDiscard(logger)}
}

// Run processes questions in order. seed, when non-nil, is prepended to the
// previous results of the first step only; later steps see it through the
// first step's answer. It stops early only when ctx is done.
func (r *Runner) Run(ctx context.Context, questions []string, opts Options, seed *StepResult) ([]StepResult, error) {
	results := make([]StepResult, 0, len(questions))
	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		previous := make([]StepResult, 0, len(results)+1)
		if seed != nil && i == 0 {
			previous = append(previous, *seed)
		}
		previous = append(previous, results...)

		step := i + 1
		r.logger.Info("processing step", "step", step, "of", len(questions), "question", q, "previous", len(previous))
		res := r.RunStep(ctx, q, step, opts, previous)
		results = append(results, res)
	}
	return results, nil
}

// RunStep retrieves, composes and answers one sub-question. Any error or
// panic is recorded in a failed StepResult instead of being returned.
func (r *Runner) RunStep(ctx context.Context, question string, step int, opts Options, previous []StepResult) (res StepResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = failedStep(question, step, fmt.Errorf("panic: %v", p))
		}
		res.Duration = time.Since(start)
		metrics.StepsProcessed.WithLabelValues(string(res.Status)).Inc()
		metrics.StepDuration.Observe(res.Duration.Seconds())
		if res.Failed() {
			r.logger.Warn("step failed", "step", step, "err", res.Err)
		}
	}()

	retrieved, err := r.retriever.Retrieve(ctx, question, opts.Strategy, opts.Weights)
	if err != nil {
		return failedStep(question, step, err)
	}
	items := retrieval.Normalize(retrieved.Items)

	comp := r.composer.Compose(previous, items, step)
	chars := runeLen(comp.Full)
	metrics.ContextChars.Observe(float64(chars))
	if r.counter != nil {
		metrics.ContextTokens.Observe(float64(r.counter.Count(comp.Full)))
	}
	if comp.Truncated {
		metrics.ContextTruncations.WithLabelValues(string(comp.Policy)).Inc()
		r.logger.Debug("context truncated", "step", step, "policy", comp.Policy, "chars", chars)
	}

	answer, err := r.answerer.Answer(ctx, question, comp.Full)
	if err != nil {
		return failedStep(question, step, err)
	}

	return StepResult{
		Question:         question,
		RetrievedContext: comp.Retrieved,
		PreviousContext:  comp.PreviousQA,
		FullContext:      comp.Full,
		Answer:           answer,
		StepNumber:       step,
		Explanation:      retrieved.Explanation,
		Items:            items,
		Status:           StepOK,
		Truncated:        comp.Truncated,
	}
}

func failedStep(question string, step int, err error) StepResult {
	return StepResult{
		Question:        question,
		PreviousContext: []string{},
		Answer:          "Error processing this sub-question: " + err.Error(),
		StepNumber:      step,
		Status:          StepFailed,
		Err:             err.Error(),
	}
}
