package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"seqrag/internal/pipeline"
)

// AskFunc runs one query through the pipeline.
type AskFunc func(ctx context.Context, query string) pipeline.PipelineResult

type resultMsg struct {
	query  string
	result pipeline.PipelineResult
}

// Model is the Bubble Tea model for the TUI application. Page 0 is the final
// answer; pages 1..n are the sub-question steps.
type Model struct {
	ctx       context.Context
	ask       AskFunc
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	result    *pipeline.PipelineResult
	summary   string
	status    string
	page      int
	ready     bool
	running   bool
	lastQuery string
}

// New creates a new TUI model instance. summary is shown under the header.
func New(ctx context.Context, ask AskFunc, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a complex question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{ctx: ctx, ask: ask, input: ti, viewport: vp, spinner: sp, summary: summary, status: "Corpus loaded. Ask a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and pipeline events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderPage())
		return m, nil
	case resultMsg:
		m.running = false
		res := msg.result
		m.result = &res
		m.page = 0
		m.lastQuery = msg.query
		m.status = fmt.Sprintf("%s: %d steps (%s). Up/down or PgUp/PgDn to page.", res.Status, len(res.SubquestionResults), res.ProcessingSummary)
		m.viewport.SetContent(m.renderPage())
		m.viewport.GotoTop()
		return m, nil
	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.running {
				return m, nil
			}
			m.running = true
			m.status = fmt.Sprintf("Working on %q", q)
			return m, tea.Batch(m.spinner.Tick, m.askCmd(q))
		case "down":
			if n := m.pages(); n > 0 {
				m.page = (m.page + 1) % n
				m.viewport.SetContent(m.renderPage())
				m.viewport.GotoTop()
				return m, nil
			}
		case "up":
			if n := m.pages(); n > 0 {
				m.page = (m.page - 1 + n) % n
				m.viewport.SetContent(m.renderPage())
				m.viewport.GotoTop()
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) askCmd(q string) tea.Cmd {
	ctx, ask := m.ctx, m.ask
	return func() tea.Msg {
		return resultMsg{query: q, result: ask(ctx, q)}
	}
}

// View renders the TUI layout and current page.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Sequential RAG")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	statusText := m.status
	if m.running {
		statusText = m.spinner.View() + " " + statusText
	}
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(statusText)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) pages() int {
	if m.result == nil {
		return 0
	}
	return 1 + len(m.result.SubquestionResults)
}

func (m Model) renderPage() string {
	if m.result == nil {
		return "No answer yet."
	}
	if m.page == 0 {
		return m.renderFinal()
	}
	return m.renderStep(m.result.SubquestionResults[m.page-1])
}

func (m Model) renderFinal() string {
	res := m.result
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render(fmt.Sprintf("Final answer  [%s]", res.Status)))
	b.WriteString(res.FinalAnswer)
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Sub-questions"))
	b.WriteString("\n")
	for i, r := range res.SubquestionResults {
		mark := "✓"
		if r.Failed() {
			mark = failedStyle.Render("✗")
		}
		fmt.Fprintf(&b, "%s %d. %s\n", mark, i+1, r.Question)
	}
	return b.String()
}

func (m Model) renderStep(r pipeline.StepResult) string {
	var b strings.Builder
	title := fmt.Sprintf("Step %d/%d  [%s]", r.StepNumber, len(m.result.SubquestionResults), r.Status)
	if r.Truncated {
		title += "  context truncated"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString("Q: " + r.Question + "\n\n")
	if r.Failed() {
		b.WriteString(failedStyle.Render(r.Answer))
	} else {
		b.WriteString(highlightBestSentence(r.Answer, m.lastQuery+" "+r.Question))
	}
	if r.Explanation != "" {
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render(r.Explanation))
	}
	if r.RetrievedContext != "" {
		fmt.Fprintf(&b, "\n\n%s\n%s", titleStyle.Render(fmt.Sprintf("Retrieved (%d documents)", len(r.Items))), dimStyle.Render(r.RetrievedContext))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the sentence sharing most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		end = loc[1]
	}
	// Model answers often end without punctuation.
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		sentences = append(sentences, rest)
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
