package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"seqrag/internal/config"
	"seqrag/internal/metrics"
	"seqrag/internal/pipeline"
	"seqrag/internal/retrieval"
)

type queryFlags struct {
	expand          bool
	strategy        string
	weights         string
	maxSubquestions int
	metricsAddr     string
}

var askFlags struct {
	queryFlags
	json    bool
	verbose bool
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one complex question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	f := askCmd.Flags()
	addQueryFlags(f, &askFlags.queryFlags)
	f.BoolVar(&askFlags.json, "json", false, "Print the full pipeline result as JSON")
	f.BoolVarP(&askFlags.verbose, "verbose", "v", false, "Print every step's question and answer")
}

type flagSet interface {
	BoolVar(p *bool, name string, value bool, usage string)
	StringVar(p *string, name string, value string, usage string)
	IntVar(p *int, name string, value int, usage string)
}

func addQueryFlags(f flagSet, q *queryFlags) {
	f.BoolVar(&q.expand, "expand", false, "Seed decomposition and steps with pre-fetched content and examples")
	f.StringVar(&q.strategy, "strategy", "", "Retrieval strategy: none, hyde, summary, summary_mean (default from config)")
	f.StringVar(&q.weights, "weights", "", "Hybrid weights as dense,lexical (e.g. 0.7,0.3)")
	f.IntVar(&q.maxSubquestions, "max-subquestions", 0, "Maximum number of sub-questions (default from config)")
	f.StringVar(&q.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

// options merges command flags over the config defaults.
func (q queryFlags) options(cfg *config.AppConfig) (pipeline.Options, error) {
	name := cfg.Retrieval.Strategy
	if q.strategy != "" {
		name = q.strategy
	}
	strategy, err := retrieval.ParseStrategy(name)
	if err != nil {
		return pipeline.Options{}, err
	}
	weights, err := retrieval.WeightsFromSlice(cfg.Retrieval.HybridWeights)
	if err != nil {
		return pipeline.Options{}, err
	}
	if q.weights != "" {
		if weights, err = retrieval.ParseWeights(q.weights); err != nil {
			return pipeline.Options{}, err
		}
	}
	maxSub := cfg.Pipeline.MaxSubquestions
	if q.maxSubquestions > 0 {
		maxSub = q.maxSubquestions
	}
	return pipeline.Options{Strategy: strategy, Weights: weights, MaxSubquestions: maxSub}, nil
}

func (q queryFlags) serveMetrics(cmd *cobra.Command, cfg *config.AppConfig) {
	addr := cfg.Metrics.Addr
	if q.metricsAddr != "" {
		addr = q.metricsAddr
	}
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(cmd.Context(), addr); err != nil {
			logger.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

func runAsk(cmd *cobra.Command, args []string) error {
	opts, err := askFlags.options(appCfg)
	if err != nil {
		return err
	}
	askFlags.serveMetrics(cmd, appCfg)

	a, err := buildApp(cmd.Context(), appCfg)
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")
	res := a.ask(cmd.Context(), query, askFlags.expand, appCfg.Retrieval.TopK, opts)

	out := cmd.OutOrStdout()
	if askFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, res, askFlags.verbose)
	if res.Status == pipeline.RunFailed {
		return fmt.Errorf("pipeline failed: %s", res.SubquestionResults[0].Err)
	}
	return nil
}

func printResult(out io.Writer, res pipeline.PipelineResult, verbose bool) {
	fmt.Fprintf(out, "Sub-questions:\n")
	for i, q := range res.Subquestions {
		fmt.Fprintf(out, "  %d. %s\n", i+1, q)
	}
	if verbose {
		for _, r := range res.SubquestionResults {
			fmt.Fprintf(out, "\n--- Step %d [%s] ---\nQ: %s\nA: %s\n", r.StepNumber, r.Status, r.Question, r.Answer)
		}
	}
	fmt.Fprintf(out, "\nAnswer:\n%s\n\n%s (%s)\n", res.FinalAnswer, res.ProcessingSummary, res.Status)
}
