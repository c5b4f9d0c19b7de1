package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"seqrag/internal/domain"
	"seqrag/internal/embedding"
	"seqrag/internal/logging"
	"seqrag/internal/vectorstore"
)

// ErrNoDocuments is returned when ingestion finds neither documents nor examples.
var ErrNoDocuments = errors.New("no .txt or .md documents found")

// Stores holds one vector store per corpus collection.
type Stores struct {
	Content   vectorstore.Storage
	Summaries vectorstore.Storage
	Originals vectorstore.Storage
}

// Stats describes the outcome of an ingestion.
type Stats struct {
	Documents      int
	Chunks         int
	Examples       int
	AvgChunkTokens float64
	Summary        string
}

// Corpus owns the indexed document chunks and example records and answers
// dense and lexical searches over them.
type Corpus struct {
	chunker             domain.Chunker
	embedder            embedding.Embedder
	summarizer          domain.Summarizer
	summaryMaxSentences int
	counter             domain.TokenCounter
	concurrency         int
	logger              *log.Logger

	content   *Collection
	summaries *Collection
	originals *Collection

	mu       sync.RWMutex
	examples map[string]domain.Example
}

// Option customizes a Corpus.
type Option func(*Corpus)

func WithLogger(l *log.Logger) Option { return func(c *Corpus) { c.logger = l } }

// WithTokenCounter enables the average-tokens statistic.
func WithTokenCounter(tc domain.TokenCounter) Option { return func(c *Corpus) { c.counter = tc } }

// WithConcurrency bounds the number of in-flight embedding calls.
func WithConcurrency(n int) Option { return func(c *Corpus) { c.concurrency = n } }

func NewCorpus(chunker domain.Chunker, embedder embedding.Embedder, summarizer domain.Summarizer, summaryMaxSentences int, stores Stores, opts ...Option) *Corpus {
	c := &Corpus{
		chunker:             chunker,
		embedder:            embedder,
		summarizer:          summarizer,
		summaryMaxSentences: summaryMaxSentences,
		concurrency:         4,
		content:             newCollection("content", stores.Content),
		summaries:           newCollection("summaries", stores.Summaries),
		originals:           newCollection("originals", stores.Originals),
		examples:            map[string]domain.Example{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	if c.concurrency <= 0 {
		c.concurrency = 1
	}
	return c
}

// Content is the collection of document chunks.
func (c *Corpus) Content() *Collection { return c.content }

// Summaries is the collection of example summaries; metadata parent_id names the example.
func (c *Corpus) Summaries() *Collection { return c.summaries }

// Originals is the collection of full example texts; metadata parent_id names the example.
func (c *Corpus) Originals() *Collection { return c.originals }

// Embed embeds text in the corpus vector space.
func (c *Corpus) Embed(ctx context.Context, text string) ([]float64, error) {
	return c.embedder.Embed(ctx, text)
}

// Example looks up an example record by id.
func (c *Corpus) Example(id string) (domain.Example, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ex, ok := c.examples[id]
	return ex, ok
}

// Ingest loads the .txt/.md files matched by paths (globs allowed) plus the
// example records, and rebuilds every collection.
func (c *Corpus) Ingest(ctx context.Context, paths []string, examples []domain.Example) (Stats, error) {
	documents, err := loadDocuments(paths)
	if err != nil {
		return Stats{}, err
	}
	if len(documents) == 0 && len(examples) == 0 {
		return Stats{}, ErrNoDocuments
	}

	var contentChunks []domain.Chunk
	var allText strings.Builder
	for _, d := range documents {
		chunks, err := c.chunker.Chunk(d)
		if err != nil {
			return Stats{}, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		contentChunks = append(contentChunks, chunks...)
		allText.WriteString("\n")
		allText.WriteString(d.Content)
	}

	summaryChunks, originalChunks, byID, err := c.exampleChunks(examples)
	if err != nil {
		return Stats{}, err
	}

	corpus := make([]string, 0, len(contentChunks)+len(summaryChunks)+len(originalChunks))
	for _, set := range [][]domain.Chunk{contentChunks, summaryChunks, originalChunks} {
		for _, ch := range set {
			corpus = append(corpus, ch.Text)
		}
	}
	if err := c.embedder.Prepare(corpus); err != nil {
		return Stats{}, fmt.Errorf("prepare embedder: %w", err)
	}

	for _, job := range []struct {
		coll   *Collection
		chunks []domain.Chunk
	}{
		{c.content, contentChunks},
		{c.summaries, summaryChunks},
		{c.originals, originalChunks},
	} {
		if err := c.index(ctx, job.coll, job.chunks); err != nil {
			return Stats{}, fmt.Errorf("index %s: %w", job.coll.name, err)
		}
	}

	c.mu.Lock()
	c.examples = byID
	c.mu.Unlock()

	stats := Stats{Documents: len(documents), Chunks: len(contentChunks), Examples: len(byID)}
	if c.counter != nil && len(contentChunks) > 0 {
		total := 0
		for _, ch := range contentChunks {
			total += c.counter.Count(ch.Text)
		}
		stats.AvgChunkTokens = float64(total) / float64(len(contentChunks))
	}
	if allText.Len() > 0 {
		stats.Summary, err = c.summarizer.Summarize(allText.String(), c.summaryMaxSentences)
		if err != nil {
			return Stats{}, fmt.Errorf("summarize corpus: %w", err)
		}
	}
	c.logger.Info("corpus indexed",
		"documents", stats.Documents, "chunks", stats.Chunks, "examples", stats.Examples)
	return stats, nil
}

// Prefetch runs the query expansion lookups for the expansion pipeline:
// the nContent best document chunks and the nExamples best examples, the
// latter as mapping records with id, page_content and metadata keys.
func (c *Corpus) Prefetch(ctx context.Context, query string, nContent, nExamples int) ([]domain.ContextItem, []map[string]any, error) {
	var contentDocs []domain.ContextItem
	if nContent > 0 && c.content.Len() > 0 {
		hits, err := c.content.Search(ctx, c.embedder, query, nContent)
		if err != nil {
			return nil, nil, fmt.Errorf("prefetch content: %w", err)
		}
		for _, h := range hits {
			contentDocs = append(contentDocs, domain.ContextItem{Text: h.Chunk.Text, Metadata: h.Chunk.Metadata})
		}
	}

	var exampleDocs []map[string]any
	if nExamples > 0 && c.summaries.Len() > 0 {
		hits, err := c.summaries.Search(ctx, c.embedder, query, nExamples)
		if err != nil {
			return nil, nil, fmt.Errorf("prefetch examples: %w", err)
		}
		for _, h := range hits {
			ex, ok := c.Example(h.Chunk.Metadata["parent_id"])
			if !ok {
				continue
			}
			exampleDocs = append(exampleDocs, map[string]any{
				"id":           ex.ID,
				"page_content": ex.Content,
				"metadata":     ex.Metadata,
			})
		}
	}
	return contentDocs, exampleDocs, nil
}

func (c *Corpus) exampleChunks(examples []domain.Example) ([]domain.Chunk, []domain.Chunk, map[string]domain.Example, error) {
	byID := make(map[string]domain.Example, len(examples))
	var summaries, originals []domain.Chunk
	for i, ex := range examples {
		if strings.TrimSpace(ex.Content) == "" {
			c.logger.Warn("skipping example without content", "index", i, "id", ex.ID)
			continue
		}
		if ex.ID == "" {
			ex.ID = "example_" + strconv.Itoa(i)
		}
		if strings.TrimSpace(ex.Summary) == "" {
			s, err := c.summarizer.Summarize(ex.Content, c.summaryMaxSentences)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("summarize example %s: %w", ex.ID, err)
			}
			ex.Summary = s
		}
		byID[ex.ID] = ex
		meta := map[string]string{"parent_id": ex.ID, "example_id": ex.ID}
		for k, v := range ex.Metadata {
			meta[k] = v
		}
		summaries = append(summaries, domain.Chunk{
			DocumentID: ex.ID, ChunkID: "summary:" + ex.ID, Text: ex.Summary, Index: len(summaries), Metadata: meta,
		})
		originals = append(originals, domain.Chunk{
			DocumentID: ex.ID, ChunkID: "original:" + ex.ID, Text: ex.Content, Index: len(originals), Metadata: meta,
		})
	}
	return summaries, originals, byID, nil
}

// index embeds chunks concurrently and replaces the collection's contents.
func (c *Corpus) index(ctx context.Context, coll *Collection, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		if err := coll.store.Clear(ctx); err != nil {
			return err
		}
		coll.reset(nil)
		return nil
	}
	vectors := make([][]float64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			vec, err := c.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed %s: %w", chunks[i].ChunkID, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := coll.store.Clear(ctx); err != nil {
		return err
	}
	if err := coll.store.Init(ctx, len(vectors[0])); err != nil {
		return err
	}
	if err := coll.store.Upsert(ctx, chunks, vectors); err != nil {
		return err
	}
	coll.reset(chunks)
	return nil
}

func loadDocuments(paths []string) ([]domain.Document, error) {
	var documents []domain.Document
	seen := map[string]struct{}{}
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("document pattern %q: %w", p, err)
		}
		if matches == nil && !strings.ContainsAny(p, "*?[") {
			matches = []string{p}
		}
		for _, m := range matches {
			ext := strings.ToLower(filepath.Ext(m))
			if ext != ".txt" && ext != ".md" {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			documents = append(documents, domain.Document{ID: hashString(m), Path: m, Content: string(data)})
		}
	}
	return documents, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
