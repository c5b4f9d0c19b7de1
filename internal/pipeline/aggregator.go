package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"seqrag/internal/llm"
	"seqrag/internal/logging"
	"seqrag/internal/metrics"
)

// Synthesis is the final answer. Fallback is set when it was assembled from
// the transcript instead of by the model.
type Synthesis struct {
	Answer   string
	Fallback bool
}

// Aggregator synthesizes step answers into one final answer.
type Aggregator struct {
	llm    Completer
	params llm.CallParams
	domain string
	logger *log.Logger
}

func NewAggregator(c Completer, params llm.CallParams, domain string, logger *log.Logger) *Aggregator {
	return &Aggregator{llm: c, params: params, domain: domain, logger: logging.OrDiscard(logger)}
}

// Aggregate always returns a non-empty answer.
func (a *Aggregator) Aggregate(ctx context.Context, query string, results []StepResult) Synthesis {
	if len(results) == 0 {
		return Synthesis{Answer: "Unable to process the complex question: " + query, Fallback: true}
	}

	var transcript strings.Builder
	var contexts []string
	for i, r := range results {
		fmt.Fprintf(&transcript, "%d. Q: %s\n   A: %s\n\n", i+1, r.Question, r.Answer)
		if r.RetrievedContext != "" {
			contexts = append(contexts, fmt.Sprintf("=== Sub-question %d Context ===\n%s", i+1, r.RetrievedContext))
		}
	}

	answer, err := a.llm.Complete(ctx, llm.Request{
		System:      synthesisSystemPrompt(a.domain),
		User:        synthesisUserPrompt(query, transcript.String(), contexts),
		MaxTokens:   a.params.MaxTokens,
		Temperature: a.params.Temperature,
	})
	if err == nil && strings.TrimSpace(answer) != "" {
		return Synthesis{Answer: answer}
	}

	metrics.SynthesisFallbacks.Inc()
	a.logger.Warn("synthesis failed, returning transcript", "err", err)
	return Synthesis{
		Answer: "Based on the sequential analysis of sub-questions:\n\n" + transcript.String() +
			"\n\nThese findings address the original question: " + query,
		Fallback: true,
	}
}
