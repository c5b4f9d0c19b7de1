package tokens

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	encoding string
	mu       sync.Mutex
	tke      *tiktoken.Tiktoken
}

// NewTiktoken resolves modelOrEncoding first as an encoding name, then as a model name.
// An empty value selects cl100k_base.
func NewTiktoken(modelOrEncoding string) (*Tiktoken, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = defaultEncoding
	}
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			return nil, fmt.Errorf("tiktoken encoding %q: %w", modelOrEncoding, err)
		}
	}
	return &Tiktoken{encoding: modelOrEncoding, tke: tke}, nil
}

// Encoding returns the configured encoding or model name.
func (t *Tiktoken) Encoding() string { return t.encoding }

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tke.Encode(text, nil, nil))
}

// Estimator approximates token counts at four characters per token.
// It is used when no BPE encoding can be loaded (offline runs, tests).
type Estimator struct{}

// Count returns ceil(runes/4).
func (Estimator) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
