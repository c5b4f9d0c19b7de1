package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline runs
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqrag_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"variant", "status"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seqrag_pipeline_duration_seconds",
			Help:    "End-to-end pipeline duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"variant"},
	)

	// Steps
	StepsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqrag_steps_total",
			Help: "Total number of sub-question steps processed",
		},
		[]string{"status"},
	)

	StepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seqrag_step_duration_seconds",
			Help:    "Per-step retrieval, composition and generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContextTruncations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqrag_context_truncations_total",
			Help: "Composed contexts that exceeded the budget, by truncation policy",
		},
		[]string{"policy"},
	)

	ContextChars = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seqrag_context_chars",
			Help:    "Size in characters of the context sent to the answer generator",
			Buckets: []float64{500, 1000, 5000, 10000, 20000, 25000, 30000},
		},
	)

	ContextTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seqrag_context_tokens",
			Help:    "Estimated token count of the context sent to the answer generator",
			Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000},
		},
	)

	// Decomposition and synthesis
	DecompositionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqrag_decomposition_fallbacks_total",
			Help: "Decompositions that used fallback questions, by reason",
		},
		[]string{"reason"},
	)

	DecompositionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seqrag_decomposition_latency_seconds",
			Help:    "Query decomposition latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SynthesisFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seqrag_synthesis_fallbacks_total",
			Help: "Final syntheses that fell back to the transcript",
		},
	)

	// Retrieval
	RetrievalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqrag_retrieval_requests_total",
			Help: "Retrieval requests by backend and outcome",
		},
		[]string{"backend", "status"},
	)

	// LLM
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqrag_llm_requests_total",
			Help: "Chat model calls by outcome",
		},
		[]string{"status"},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
