package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"seqrag/internal/domain"
)

// DefaultContextBudget is the per-step context limit in characters.
const DefaultContextBudget = 25000

const (
	itemSeparator = "\n\n---\n\n"
	sectionJoin   = "\n\n"

	previousReserve  = 500
	minRetrievedRoom = 1000

	noticeRetrievedCut   = "\n\n[Retrieved context truncated due to length]"
	noticeRetrievedShort = "\n[Retrieved context truncated]"
	noticeRecentOnly     = "[Previous Q&A truncated, showing recent parts only]\n"

	previousHeader       = "=== Previous Steps Q&A ==="
	previousRecentHeader = "=== Previous Steps Q&A (Recent) ==="
)

// TruncationPolicy records which rule cut an oversized context.
type TruncationPolicy string

const (
	PolicyNone          TruncationPolicy = "none"
	PolicyKeepPrevious  TruncationPolicy = "keep_previous"
	PolicySplitRecent   TruncationPolicy = "split_recent"
	PolicyRetrievedOnly TruncationPolicy = "retrieved_only"
)

// Section is one labeled block of a composed context.
type Section struct {
	Label string
	Text  string
}

// Composition is the context handed to the answer generator for one step.
// Full is Sections rendered with their headers; Retrieved is the untruncated
// text of the current step's items.
type Composition struct {
	Retrieved  string
	Full       string
	PreviousQA []string
	Sections   []Section
	Truncated  bool
	Policy     TruncationPolicy
}

// Composer builds per-step contexts within a character budget.
type Composer struct {
	Budget int
}

// Compose renders the previous steps and the current items for step. It is
// a pure function of its inputs.
func (c Composer) Compose(previous []StepResult, items []domain.ContextItem, step int) Composition {
	budget := c.Budget
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	texts := make([]string, 0, len(items))
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	retrieved := strings.Join(texts, itemSeparator)

	qa := make([]string, 0, len(previous))
	for _, r := range previous {
		qa = append(qa, fmt.Sprintf("=== Step %d ===\nQuestion: %s\nAnswer: %s", r.StepNumber, r.Question, r.Answer))
	}
	prev := strings.Join(qa, sectionJoin)
	retrievedHeader := fmt.Sprintf("=== Step %d Retrieved Documents ===", step)

	var sections []Section
	if prev != "" {
		sections = append(sections, Section{Label: previousHeader, Text: prev})
	}
	if retrieved != "" {
		sections = append(sections, Section{Label: retrievedHeader, Text: retrieved})
	}
	comp := Composition{
		Retrieved:  retrieved,
		PreviousQA: qa,
		Sections:   sections,
		Full:       render(sections),
		Policy:     PolicyNone,
	}
	if runeLen(comp.Full) <= budget {
		return comp
	}

	comp.Truncated = true
	remaining := budget - (runeLen(prev) + previousReserve)
	switch {
	case prev != "" && remaining > minRetrievedRoom:
		comp.Policy = PolicyKeepPrevious
		sections = []Section{
			{Label: previousHeader, Text: prev},
			{Label: retrievedHeader, Text: head(retrieved, remaining) + noticeRetrievedCut},
		}
	case prev != "":
		comp.Policy = PolicySplitRecent
		half := budget / 2
		sections = []Section{{Label: previousRecentHeader, Text: noticeRecentOnly + tail(prev, half)}}
		if retrieved != "" {
			sections = append(sections, Section{Label: retrievedHeader, Text: head(retrieved, half) + noticeRetrievedShort})
		}
	default:
		comp.Policy = PolicyRetrievedOnly
		sections = []Section{{Label: retrievedHeader, Text: head(retrieved, budget) + noticeRetrievedCut}}
	}
	comp.Sections = sections
	comp.Full = render(sections)
	return comp
}

func render(sections []Section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.Label + "\n" + s.Text
	}
	return strings.Join(parts, sectionJoin)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// head returns the first n runes of s.
func head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := runeLen(s)
	if count <= n {
		return s
	}
	skip := count - n
	i := 0
	for pos := range s {
		if i == skip {
			return s[pos:]
		}
		i++
	}
	return ""
}
