package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"seqrag/internal/config"
	"seqrag/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	docs       []string
	examples   string
	logLevel   string
}

// Set by the persistent pre-run for every subcommand.
var (
	appCfg *config.AppConfig
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "seqrag",
	Short: "Sequential query-decomposition RAG over local documents",
	Long: "seqrag breaks a complex question into simpler sub-questions, answers them in order\n" +
		"with retrieved context and earlier answers, and synthesizes a final answer.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/seqrag/config.yaml)")
	f.StringSliceVar(&rootFlags.docs, "docs", nil, "Document files or globs (.txt, .md) to index")
	f.StringVar(&rootFlags.examples, "examples", "", "JSONL file of worked example records")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.Version = version
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var err error
	if rootFlags.configPath == "" {
		appCfg, _, err = config.LoadDefault()
	} else {
		appCfg, err = config.Load(rootFlags.configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if rootFlags.logLevel != "" {
		appCfg.Log.Level = rootFlags.logLevel
	}
	logger = logging.New(logging.Config{Level: appCfg.Log.Level, JSON: appCfg.Log.JSON, Output: cmd.ErrOrStderr()})
	return nil
}
