package pipeline

import (
	"context"
	"time"

	"seqrag/internal/domain"
	"seqrag/internal/llm"
	"seqrag/internal/retrieval"
)

// DefaultMaxSubquestions bounds a decomposition when no limit is given.
const DefaultMaxSubquestions = 5

// Completer runs one chat completion.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Answerer answers one sub-question from its composed context.
type Answerer interface {
	Answer(ctx context.Context, question, context string) (string, error)
}

// Retriever fetches supporting context for one sub-question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, strategy retrieval.Strategy, weights *retrieval.Weights) (retrieval.Result, error)
}

// StepStatus tags whether a step produced a real answer.
type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepFailed StepStatus = "failed"
)

// RunStatus summarizes how a pipeline run went.
type RunStatus string

const (
	// RunComplete means no component fell back.
	RunComplete RunStatus = "complete"
	// RunDegraded means a decomposition, step or synthesis fallback was used.
	RunDegraded RunStatus = "degraded"
	// RunFailed means the run itself failed and the result carries only the error.
	RunFailed RunStatus = "failed"
)

// StepResult is the record of one sub-question. It is built once and never
// modified afterwards.
type StepResult struct {
	Question         string               `json:"question"`
	RetrievedContext string               `json:"retrieved_context"`
	PreviousContext  []string             `json:"previous_context"`
	FullContext      string               `json:"full_context"`
	Answer           string               `json:"answer"`
	StepNumber       int                  `json:"step_number"`
	Explanation      string               `json:"explanation,omitempty"`
	Items            []domain.ContextItem `json:"context_docs,omitempty"`
	Status           StepStatus           `json:"status"`
	Err              string               `json:"error,omitempty"`
	Truncated        bool                 `json:"truncated,omitempty"`
	Duration         time.Duration        `json:"duration_ns"`
}

// Failed reports whether the step recorded an error instead of an answer.
func (s StepResult) Failed() bool { return s.Status == StepFailed }

// PipelineResult is everything one run produced.
type PipelineResult struct {
	OriginalQuery         string               `json:"original_query"`
	Subquestions          []string             `json:"subquestions"`
	SubquestionResults    []StepResult         `json:"subquestion_results"`
	FinalAnswer           string               `json:"final_answer"`
	CombinedContext       string               `json:"combined_context"`
	AllContextDocs        []domain.ContextItem `json:"all_context_docs"`
	CumulativeQAContext   string               `json:"cumulative_qa_context"`
	ProcessingSummary     string               `json:"processing_summary"`
	Status                RunStatus            `json:"status"`
	DecompositionFallback bool                 `json:"decomposition_fallback,omitempty"`
	SynthesisFallback     bool                 `json:"synthesis_fallback,omitempty"`
}

// Options are the per-run knobs. A nil Weights selects the plain form of
// the strategy.
type Options struct {
	Strategy        retrieval.Strategy
	Weights         *retrieval.Weights
	MaxSubquestions int
}
