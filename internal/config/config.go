package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	CacheSize int                   `yaml:"cache_size"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
	TokenEncoding     string `yaml:"token_encoding"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
// Collection is used as a prefix; each corpus collection gets its own suffix.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// CallConfig holds per-call generation parameters.
type CallConfig struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// LLMConfig configures the chat model used for decomposition, answers and synthesis.
type LLMConfig struct {
	BaseURL        string     `yaml:"base_url"`
	APIKeyEnv      string     `yaml:"api_key_env"`
	Model          string     `yaml:"model"`
	TimeoutSecs    int        `yaml:"timeout_secs"`
	RetryAttempts  int        `yaml:"retry_attempts"`
	RetryBackoffMS int        `yaml:"retry_backoff_ms"`
	Answer         CallConfig `yaml:"answer"`
	Decompose      CallConfig `yaml:"decompose"`
	DecomposeSeed  CallConfig `yaml:"decompose_seeded"`
	Synthesis      CallConfig `yaml:"synthesis"`
	HyDE           CallConfig `yaml:"hyde"`
}

// RetrievalConfig selects the default retrieval strategy.
type RetrievalConfig struct {
	Strategy      string    `yaml:"strategy"`
	HybridWeights []float64 `yaml:"hybrid_weights,omitempty"`
	TopK          int       `yaml:"top_k"`
}

// PipelineConfig bounds the decomposition pipeline.
type PipelineConfig struct {
	// Domain names the subject area for prompts, e.g. "semiconductor physics".
	Domain             string `yaml:"domain,omitempty"`
	MaxSubquestions    int    `yaml:"max_subquestions"`
	ContextBudget      int    `yaml:"context_budget"`
	ContentPreviewDocs int    `yaml:"content_preview_docs"`
	ExamplePreviewDocs int    `yaml:"example_preview_docs"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/seqrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/seqrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "seqrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "section", SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Retrieval:   RetrievalConfig{Strategy: "none"},
		Log:         LogConfig{Level: "info"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 512
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "seqrag"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	llm := &cfg.LLM
	if llm.BaseURL == "" {
		llm.BaseURL = "https://api.openai.com/v1"
	}
	if llm.APIKeyEnv == "" {
		llm.APIKeyEnv = "OPENAI_API_KEY"
	}
	if llm.Model == "" {
		llm.Model = "gpt-4o-mini"
	}
	if llm.TimeoutSecs == 0 {
		llm.TimeoutSecs = 120
	}
	if llm.RetryAttempts == 0 {
		llm.RetryAttempts = 3
	}
	if llm.RetryBackoffMS == 0 {
		llm.RetryBackoffMS = 500
	}
	defaultCall(&llm.Answer, 2000, 0.2)
	defaultCall(&llm.Decompose, 5000, 0.3)
	defaultCall(&llm.DecomposeSeed, 1000, 0.3)
	defaultCall(&llm.Synthesis, 2000, 0.2)
	defaultCall(&llm.HyDE, 512, 0.5)

	if cfg.Retrieval.Strategy == "" {
		cfg.Retrieval.Strategy = "none"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Pipeline.MaxSubquestions == 0 {
		cfg.Pipeline.MaxSubquestions = 5
	}
	if cfg.Pipeline.ContextBudget == 0 {
		cfg.Pipeline.ContextBudget = 25000
	}
	if cfg.Pipeline.ContentPreviewDocs == 0 {
		cfg.Pipeline.ContentPreviewDocs = 3
	}
	if cfg.Pipeline.ExamplePreviewDocs == 0 {
		cfg.Pipeline.ExamplePreviewDocs = 2
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Temperature 0 is a legitimate setting, so it is only filled in together with MaxTokens.
func defaultCall(c *CallConfig, maxTokens int, temperature float64) {
	if c.MaxTokens == 0 {
		c.MaxTokens = maxTokens
		if c.Temperature == 0 {
			c.Temperature = temperature
		}
	}
}
