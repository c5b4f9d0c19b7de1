package retrieval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Strategy selects how supporting context is fetched for a question.
type Strategy string

const (
	StrategyNone        Strategy = "none"
	StrategyHyDE        Strategy = "hyde"
	StrategySummary     Strategy = "summary"
	StrategySummaryMean Strategy = "summary_mean"
)

// ErrUnknownStrategy is returned for strategy names outside the supported set.
var ErrUnknownStrategy = errors.New("unknown retrieval strategy")

// ParseStrategy maps a name to a Strategy. The empty string means none.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyNone:
		return StrategyNone, nil
	case StrategyHyDE:
		return StrategyHyDE, nil
	case StrategySummary:
		return StrategySummary, nil
	case StrategySummaryMean, "summary-mean":
		return StrategySummaryMean, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Weights is the optional [dense, lexical] pair that turns a strategy into its
// hybrid form.
type Weights struct {
	Dense   float64
	Lexical float64
}

func (w Weights) String() string {
	return fmt.Sprintf("dense %.2f, lexical %.2f", w.Dense, w.Lexical)
}

// ParseWeights reads "dense,lexical". An empty string yields nil.
func ParseWeights(s string) (*Weights, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("hybrid weights %q: want two comma separated numbers", s)
	}
	vals := make([]float64, 2)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("hybrid weights %q: %w", s, err)
		}
		vals[i] = v
	}
	return WeightsFromSlice(vals)
}

// WeightsFromSlice converts a config list. A nil or empty list yields nil.
func WeightsFromSlice(vals []float64) (*Weights, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("hybrid weights: want 2 values, got %d", len(vals))
	}
	if vals[0] < 0 || vals[1] < 0 || vals[0]+vals[1] == 0 {
		return nil, fmt.Errorf("hybrid weights %v: must be non-negative and not both zero", vals)
	}
	return &Weights{Dense: vals[0], Lexical: vals[1]}, nil
}
