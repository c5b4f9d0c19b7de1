package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"seqrag/internal/logging"
	"seqrag/internal/metrics"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Request is one chat completion: a system and a user message plus the
// per-call generation parameters.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// CallParams are the generation parameters of one kind of call.
type CallParams struct {
	MaxTokens   int
	Temperature float64
}

// Config configures a Client. It is built once at startup and injected.
type Config struct {
	Model         string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	Answer        CallParams
	// Domain names the subject area used in the answer prompt; empty means general.
	Domain string
}

// Client wraps a langchaingo model with per-call timeouts and retries.
// It is safe for concurrent use.
type Client struct {
	model  llms.Model
	cfg    Config
	logger *log.Logger
}

func New(model llms.Model, cfg Config, logger *log.Logger) *Client {
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{model: model, cfg: cfg, logger: logging.OrDiscard(logger)}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends one request, retrying transient failures with exponential
// backoff. The returned text is trimmed and never empty.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	backoff := retry.NewExponential(c.cfg.RetryBackoff)
	backoff = retry.WithCappedDuration(10*time.Second, backoff)
	backoff = retry.WithJitter(50*time.Millisecond, backoff)
	backoff = retry.WithMaxRetries(uint64(c.cfg.RetryAttempts), backoff)

	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.User))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if c.cfg.Model != "" {
		opts = append(opts, llms.WithModel(c.cfg.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	var text string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		resp, err := c.model.GenerateContent(callCtx, messages, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("llm call failed", "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		text = strings.TrimSpace(resp.Choices[0].Content)
		if text == "" {
			return ErrEmptyResponse
		}
		return nil
	})
	if err != nil {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("llm completion (model %s, %d attempts): %w", c.cfg.Model, attempt, err)
	}
	metrics.LLMRequests.WithLabelValues("ok").Inc()
	return text, nil
}

// Answer generates the answer to one sub-question from its composed context.
func (c *Client) Answer(ctx context.Context, question, contextText string) (string, error) {
	return c.Complete(ctx, Request{
		System:      answerSystemPrompt(c.cfg.Domain),
		User:        answerUserPrompt(question, contextText),
		MaxTokens:   c.cfg.Answer.MaxTokens,
		Temperature: c.cfg.Answer.Temperature,
	})
}

func answerSystemPrompt(domain string) string {
	expert := "a careful expert"
	if domain != "" {
		expert = "an expert in " + domain
	}
	return "You are " + expert + ` answering one step of a multi-step analysis.

Use the provided context: answers to earlier steps and retrieved documents.
Build on the earlier answers where they are relevant, prefer facts stated in the
documents, and say clearly when the context does not contain what is needed.
Answer the question directly and concisely.`
}

func answerUserPrompt(question, contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		return "Question: " + question + "\n\nNo context was retrieved for this question."
	}
	return "Context:\n" + contextText + "\n\nQuestion: " + question
}
