package llm

import (
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig points the model at any OpenAI-compatible endpoint
// (OpenAI, Ollama, vLLM, LM Studio).
type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

// NewOpenAIModel builds the langchaingo OpenAI model.
func NewOpenAIModel(cfg OpenAIConfig) (llms.Model, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(key),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}
