// seqrag answers complex questions over a local document corpus by
// decomposing them into sub-questions answered in sequence.
//
// Usage:
//
//	seqrag ingest --docs 'docs/*.md' [--examples examples.jsonl]
//	seqrag ask --docs 'docs/*.md' [--expand] [--strategy hyde] [--weights 0.7,0.3] "question"
//	seqrag tui --docs 'docs/*.md' [--examples examples.jsonl]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
