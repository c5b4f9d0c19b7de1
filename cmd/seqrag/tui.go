package main

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"seqrag/internal/pipeline"
	"seqrag/internal/tui"
)

var tuiFlags queryFlags

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal UI",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	addQueryFlags(tuiCmd.Flags(), &tuiFlags)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	opts, err := tuiFlags.options(appCfg)
	if err != nil {
		return err
	}
	tuiFlags.serveMetrics(cmd, appCfg)
	// Log lines would tear the alternate screen.
	logger.SetOutput(io.Discard)

	a, err := buildApp(cmd.Context(), appCfg)
	if err != nil {
		return err
	}
	ask := func(ctx context.Context, q string) pipeline.PipelineResult {
		return a.ask(ctx, q, tuiFlags.expand, appCfg.Retrieval.TopK, opts)
	}
	m := tui.New(cmd.Context(), ask, a.stats.Summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
