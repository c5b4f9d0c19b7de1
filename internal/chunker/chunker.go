package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"seqrag/internal/domain"
)

var (
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	// '#' and '##' open a new section; deeper headings stay in the body.
	sectionHeadingRe = regexp.MustCompile(`(?m)^#{1,2}\s+\S.*$`)
)

// SentenceChunker splits text into sentence-based chunks with overlap.
// With splitSections set, markdown documents are first cut at '#'/'##'
// headings so that no chunk spans two sections.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitSections     bool
	counter           domain.TokenCounter
}

// Option customizes a SentenceChunker.
type Option func(*SentenceChunker)

// WithSections enables markdown section splitting.
func WithSections() Option {
	return func(c *SentenceChunker) { c.splitSections = true }
}

// WithTokenCounter records a token_count metadata entry on every chunk.
func WithTokenCounter(counter domain.TokenCounter) Option {
	return func(c *SentenceChunker) { c.counter = counter }
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int, opts ...Option) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	c := &SentenceChunker{sentencesPerChunk: sentencesPerChunk, overlapSentences: overlapSentences}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sections := []section{{body: document.Content}}
	if c.splitSections {
		sections = splitSections(document.Content)
	}
	var chunks []domain.Chunk
	for _, sec := range sections {
		for _, text := range c.windows(sec.body) {
			idx := len(chunks)
			meta := map[string]string{"source": document.Path}
			if sec.heading != "" {
				meta["section"] = sec.heading
			}
			if c.counter != nil {
				meta["token_count"] = strconv.Itoa(c.counter.Count(text))
			}
			chunks = append(chunks, domain.Chunk{
				DocumentID: document.ID,
				ChunkID:    document.ID + ":" + strconv.Itoa(idx),
				Text:       text,
				Index:      idx,
				Metadata:   meta,
			})
		}
	}
	return chunks, nil
}

func (c *SentenceChunker) windows(text string) []string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	var out []string
	for i := 0; i < len(sentences); {
		end := min(i+c.sentencesPerChunk, len(sentences))
		out = append(out, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return out
}

type section struct {
	heading string
	body    string
}

// splitSections cuts content before every '#'/'##' heading. The heading line
// stays part of its section body so that it is embedded with the text.
func splitSections(content string) []section {
	locs := sectionHeadingRe.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return []section{{body: content}}
	}
	var out []section
	if pre := strings.TrimSpace(content[:locs[0][0]]); pre != "" {
		out = append(out, section{body: pre})
	}
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(content[loc[0]:end])
		if body == "" {
			continue
		}
		heading := strings.TrimSpace(strings.TrimLeft(content[loc[0]:loc[1]], "#"))
		out = append(out, section{heading: heading, body: body})
	}
	return out
}
