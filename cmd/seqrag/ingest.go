package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index documents and examples and print corpus statistics",
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, _ []string) error {
	counter := tokenCounter(appCfg)
	corpus, err := buildCorpus(appCfg, counter)
	if err != nil {
		return err
	}
	stats, err := ingest(cmd.Context(), corpus)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Documents: %d\n", stats.Documents)
	fmt.Fprintf(out, "Chunks:    %d\n", stats.Chunks)
	fmt.Fprintf(out, "Examples:  %d\n", stats.Examples)
	if stats.AvgChunkTokens > 0 {
		fmt.Fprintf(out, "Avg chunk: %.1f tokens\n", stats.AvgChunkTokens)
	}
	if stats.Summary != "" {
		fmt.Fprintf(out, "\nSummary:\n%s\n", stats.Summary)
	}
	return nil
}
