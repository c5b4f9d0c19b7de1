package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqrag/internal/domain"
)

func items(texts ...string) []domain.ContextItem {
	out := make([]domain.ContextItem, len(texts))
	for i, t := range texts {
		out[i] = domain.ContextItem{Text: t}
	}
	return out
}

func prior(step int, q, a string) StepResult {
	return StepResult{StepNumber: step, Question: q, Answer: a, Status: StepOK}
}

func TestCompose_Format(t *testing.T) {
	comp := Composer{}.Compose([]StepResult{prior(1, "Q1", "A1"), prior(2, "Q2", "A2")}, items("d1", "d2"), 3)

	want := "=== Previous Steps Q&A ===\n" +
		"=== Step 1 ===\nQuestion: Q1\nAnswer: A1\n\n" +
		"=== Step 2 ===\nQuestion: Q2\nAnswer: A2\n\n" +
		"=== Step 3 Retrieved Documents ===\nd1\n\n---\n\nd2"
	assert.Equal(t, want, comp.Full)
	assert.Equal(t, "d1\n\n---\n\nd2", comp.Retrieved)
	assert.False(t, comp.Truncated)
	assert.Equal(t, PolicyNone, comp.Policy)

	wantSections := []Section{
		{Label: "=== Previous Steps Q&A ===", Text: "=== Step 1 ===\nQuestion: Q1\nAnswer: A1\n\n=== Step 2 ===\nQuestion: Q2\nAnswer: A2"},
		{Label: "=== Step 3 Retrieved Documents ===", Text: "d1\n\n---\n\nd2"},
	}
	if diff := cmp.Diff(wantSections, comp.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{
		"=== Step 1 ===\nQuestion: Q1\nAnswer: A1",
		"=== Step 2 ===\nQuestion: Q2\nAnswer: A2",
	}, comp.PreviousQA)
}

func TestCompose_SeedIsStepZero(t *testing.T) {
	seed := StepResult{Question: seedQuestion, Answer: "Available Content:\nx", StepNumber: 0}
	comp := Composer{}.Compose([]StepResult{seed}, nil, 1)
	assert.Equal(t, "=== Previous Steps Q&A ===\n=== Step 0 ===\nQuestion: "+seedQuestion+"\nAnswer: Available Content:\nx", comp.Full)
}

func TestCompose_EmptyInputs(t *testing.T) {
	comp := Composer{}.Compose(nil, nil, 1)
	assert.Empty(t, comp.Full)
	assert.Empty(t, comp.Retrieved)
	assert.Empty(t, comp.Sections)

	comp = Composer{}.Compose(nil, items("only doc"), 1)
	assert.Equal(t, "=== Step 1 Retrieved Documents ===\nonly doc", comp.Full)
}

func TestCompose_Idempotent(t *testing.T) {
	prev := []StepResult{prior(1, "Q1", strings.Repeat("a", 3000))}
	its := items(strings.Repeat("b", 4000), strings.Repeat("c", 4000))
	c := Composer{Budget: 5000}

	first := c.Compose(prev, its, 2)
	second := c.Compose(prev, its, 2)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("compose not deterministic (-first +second):\n%s", diff)
	}
}

func TestCompose_AtBudgetIsNotTruncated(t *testing.T) {
	header := "=== Step 1 Retrieved Documents ===\n"
	budget := 200
	doc := strings.Repeat("z", budget-len(header))
	comp := Composer{Budget: budget}.Compose(nil, items(doc), 1)
	assert.Equal(t, budget, utf8.RuneCountInString(comp.Full))
	assert.False(t, comp.Truncated)

	comp = Composer{Budget: budget}.Compose(nil, items(doc+"z"), 1)
	assert.True(t, comp.Truncated)
}

func TestCompose_KeepsPreviousWhenRoomRemains(t *testing.T) {
	budget := 5000
	prev := []StepResult{prior(1, "What is mobility?", strings.Repeat("m", 1000))}
	retrieved := strings.Repeat("r", 10000)
	comp := Composer{Budget: budget}.Compose(prev, items(retrieved), 2)

	require.True(t, comp.Truncated)
	assert.Equal(t, PolicyKeepPrevious, comp.Policy)
	require.Len(t, comp.Sections, 2)

	prevBlock := comp.PreviousQA[0]
	assert.Equal(t, Section{Label: "=== Previous Steps Q&A ===", Text: prevBlock}, comp.Sections[0])

	remaining := budget - (utf8.RuneCountInString(prevBlock) + 500)
	require.Greater(t, remaining, 1000)
	notice := "\n\n[Retrieved context truncated due to length]"
	got := comp.Sections[1].Text
	assert.True(t, strings.HasSuffix(got, notice))
	assert.Equal(t, remaining, utf8.RuneCountInString(strings.TrimSuffix(got, notice)))
	assert.Equal(t, retrieved, comp.Retrieved)
	assert.LessOrEqual(t, utf8.RuneCountInString(comp.Full), budget)
}

func TestCompose_SplitsRecentWhenPreviousIsLarge(t *testing.T) {
	budget := 5000
	answer := strings.Repeat("p", 4000) + "TAIL"
	prev := []StepResult{prior(1, "Q1", answer)}
	comp := Composer{Budget: budget}.Compose(prev, items(strings.Repeat("r", 3000)), 2)

	require.True(t, comp.Truncated)
	assert.Equal(t, PolicySplitRecent, comp.Policy)
	require.Len(t, comp.Sections, 2)

	recent := comp.Sections[0]
	assert.Equal(t, "=== Previous Steps Q&A (Recent) ===", recent.Label)
	assert.True(t, strings.HasPrefix(recent.Text, "[Previous Q&A truncated, showing recent parts only]\n"))
	assert.True(t, strings.HasSuffix(recent.Text, "TAIL"))
	body := strings.TrimPrefix(recent.Text, "[Previous Q&A truncated, showing recent parts only]\n")
	assert.Equal(t, budget/2, utf8.RuneCountInString(body))

	docs := comp.Sections[1]
	assert.Equal(t, "=== Step 2 Retrieved Documents ===", docs.Label)
	assert.True(t, strings.HasSuffix(docs.Text, "\n[Retrieved context truncated]"))
	assert.Equal(t, budget/2, utf8.RuneCountInString(strings.TrimSuffix(docs.Text, "\n[Retrieved context truncated]")))
}

func TestCompose_RetrievedOnlyTruncation(t *testing.T) {
	budget := 1000
	comp := Composer{Budget: budget}.Compose(nil, items(strings.Repeat("x", 3000)), 1)

	require.True(t, comp.Truncated)
	assert.Equal(t, PolicyRetrievedOnly, comp.Policy)
	require.Len(t, comp.Sections, 1)
	assert.Equal(t, "=== Step 1 Retrieved Documents ===", comp.Sections[0].Label)
	assert.Equal(t, strings.Repeat("x", budget)+"\n\n[Retrieved context truncated due to length]", comp.Sections[0].Text)
}

func TestCompose_BudgetCountsRunes(t *testing.T) {
	budget := 100
	header := "=== Step 1 Retrieved Documents ===\n"
	// Multi-byte text that fits in runes but not in bytes.
	doc := strings.Repeat("é", budget-len(header))
	comp := Composer{Budget: budget}.Compose(nil, items(doc), 1)
	assert.False(t, comp.Truncated)

	comp = Composer{Budget: budget}.Compose(nil, items(strings.Repeat("é", 200)), 1)
	require.True(t, comp.Truncated)
	assert.True(t, utf8.ValidString(comp.Full))
	assert.Equal(t, strings.Repeat("é", budget), strings.TrimSuffix(comp.Sections[0].Text, "\n\n[Retrieved context truncated due to length]"))
}

func TestHeadTail(t *testing.T) {
	assert.Equal(t, "héll", head("héllo", 4))
	assert.Equal(t, "héllo", head("héllo", 10))
	assert.Empty(t, head("héllo", 0))
	assert.Equal(t, "llo", tail("héllo", 3))
	assert.Equal(t, "héllo", tail("héllo", 9))
	assert.Empty(t, tail("héllo", 0))
}
