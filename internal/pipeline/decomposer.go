package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"seqrag/internal/llm"
	"seqrag/internal/logging"
	"seqrag/internal/metrics"
)

// Decomposition fallback reasons.
const (
	ReasonUnparsable       = "unparsable"
	ReasonModelError       = "model_error"
	ReasonSeededModelError = "seeded_model_error"
)

// minSubquestionRunes filters headers and noise lines out of model output.
const minSubquestionRunes = 10

// Decomposition is the ordered sub-question list. Fallback is set when the
// list did not come from a successful seeded or standard model call.
type Decomposition struct {
	Questions []string
	Fallback  bool
	Reason    string
}

// DecomposerConfig holds the call parameters for both prompt variants.
type DecomposerConfig struct {
	Domain   string
	Standard llm.CallParams
	Seeded   llm.CallParams
}

// Decomposer splits a complex query into simpler sub-questions.
type Decomposer struct {
	llm    Completer
	cfg    DecomposerConfig
	logger *log.Logger
}

func NewDecomposer(c Completer, cfg DecomposerConfig, logger *log.Logger) *Decomposer {
	return &Decomposer{llm: c, cfg: cfg, logger: logging.OrDiscard(logger)}
}

// Decompose returns between one and limit sub-questions. With a non-empty
// seed the prompt carries the seed material. It never fails: model errors
// and unusable output produce fixed template questions.
func (d *Decomposer) Decompose(ctx context.Context, query string, limit int, seed string) Decomposition {
	start := time.Now()
	defer func() { metrics.DecompositionLatency.Observe(time.Since(start).Seconds()) }()

	if limit <= 0 {
		limit = DefaultMaxSubquestions
	}
	var dec Decomposition
	if strings.TrimSpace(seed) != "" {
		dec = d.seeded(ctx, query, limit, seed)
	} else {
		dec = d.standard(ctx, query, limit)
	}
	if dec.Fallback {
		metrics.DecompositionFallbacks.WithLabelValues(dec.Reason).Inc()
	}
	d.logger.Info("query decomposed", "subquestions", len(dec.Questions), "fallback", dec.Fallback, "reason", dec.Reason)
	return dec
}

func (d *Decomposer) standard(ctx context.Context, query string, limit int) Decomposition {
	text, err := d.llm.Complete(ctx, llm.Request{
		System:      decomposeSystemPrompt(d.cfg.Domain, limit),
		User:        decomposeUserPrompt(query),
		MaxTokens:   d.cfg.Standard.MaxTokens,
		Temperature: d.cfg.Standard.Temperature,
	})
	if err != nil {
		d.logger.Warn("decomposition failed, using fallback questions", "err", err)
		return fallback(modelErrorQuestions(query), limit, ReasonModelError)
	}
	questions := ParseSubquestions(text)
	if len(questions) == 0 {
		d.logger.Warn("no sub-questions in model output, using fallback questions")
		return fallback(unparsableQuestions(query), limit, ReasonUnparsable)
	}
	return Decomposition{Questions: truncate(questions, limit)}
}

func (d *Decomposer) seeded(ctx context.Context, query string, limit int, seed string) Decomposition {
	text, err := d.llm.Complete(ctx, llm.Request{
		System:      seededDecomposeSystemPrompt(d.cfg.Domain, limit),
		User:        seededDecomposeUserPrompt(query, seed),
		MaxTokens:   d.cfg.Seeded.MaxTokens,
		Temperature: d.cfg.Seeded.Temperature,
	})
	if err != nil {
		d.logger.Warn("context-aware decomposition failed, retrying without context", "err", err)
		dec := d.standard(ctx, query, limit)
		if !dec.Fallback {
			dec.Fallback, dec.Reason = true, ReasonSeededModelError
		}
		return dec
	}
	questions := ParseSubquestions(text)
	if len(questions) == 0 {
		d.logger.Warn("no context-aware sub-questions in model output, using fallback questions")
		return fallback(seededUnparsableQuestions(query), limit, ReasonUnparsable)
	}
	return Decomposition{Questions: truncate(questions, limit)}
}

// ParseSubquestions extracts the numbered or dashed lines of a model
// response. Lines whose question text is 10 runes or shorter are dropped.
func ParseSubquestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(line)
		if !unicode.IsDigit(first) && first != '-' {
			continue
		}
		q := line
		if _, after, ok := strings.Cut(line, ". "); ok {
			q = after
		} else if _, after, ok := strings.Cut(line, "- "); ok {
			q = after
		}
		q = strings.TrimSpace(q)
		if utf8.RuneCountInString(q) > minSubquestionRunes {
			out = append(out, q)
		}
	}
	return out
}

func unparsableQuestions(q string) []string {
	return []string{
		"What are the fundamental concepts related to: " + q + "?",
		"What are the key factors that influence: " + q + "?",
		"How can we analyze or solve: " + q + "?",
	}
}

func modelErrorQuestions(q string) []string {
	return []string{
		"What are the basic principles underlying this question: " + q + "?",
		"What specific factors should be considered for: " + q + "?",
	}
}

func seededUnparsableQuestions(q string) []string {
	return []string{
		"What are the fundamental concepts related to: " + q + "?",
		"How can the available examples help understand: " + q + "?",
		"What are the key factors that influence: " + q + "?",
	}
}

func fallback(questions []string, limit int, reason string) Decomposition {
	return Decomposition{Questions: truncate(questions, limit), Fallback: true, Reason: reason}
}

func truncate(questions []string, limit int) []string {
	if limit > 0 && len(questions) > limit {
		return questions[:limit]
	}
	return questions
}
