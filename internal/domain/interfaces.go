package domain

// Document represents a single text or markdown file loaded into the corpus.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
	Metadata   map[string]string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Example is a worked example record. Summary is what the summary index
// embeds; Content is what retrieval hands back to the pipeline.
type Example struct {
	ID       string            `json:"id"`
	Content  string            `json:"page_content"`
	Summary  string            `json:"summary,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ContextItem is one unit of retrieved material handed to the pipeline.
type ContextItem struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// TokenCounter reports how many model tokens a text occupies.
type TokenCounter interface {
	Count(text string) int
}
