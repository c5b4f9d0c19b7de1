package main

import (
	"context"
	"fmt"
	"time"

	"seqrag/internal/chunker"
	"seqrag/internal/config"
	"seqrag/internal/domain"
	"seqrag/internal/embedding"
	"seqrag/internal/embedding/openai"
	"seqrag/internal/embedding/tfidf"
	"seqrag/internal/llm"
	"seqrag/internal/pipeline"
	"seqrag/internal/retrieval"
	"seqrag/internal/service"
	"seqrag/internal/summarizer"
	"seqrag/internal/tokens"
	"seqrag/internal/vectorstore"
	"seqrag/internal/vectorstore/memory"
	"seqrag/internal/vectorstore/qdrant"
)

// tokenCounter prefers tiktoken and falls back to a rune estimate when the
// encoding cannot be loaded (it is fetched on first use). The encoding name
// "estimate" skips tiktoken entirely.
func tokenCounter(cfg *config.AppConfig) domain.TokenCounter {
	enc := cfg.Chunker.TokenEncoding
	if enc == "estimate" {
		return tokens.Estimator{}
	}
	if enc == "" {
		enc = cfg.LLM.Model
	}
	tk, err := tokens.NewTiktoken(enc)
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens", "encoding", enc, "err", err)
		return tokens.Estimator{}
	}
	return tk
}

func buildEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:  cfg.Embedder.OpenAI.APIKeyEnv,
			Model:      cfg.Embedder.OpenAI.Model,
			Timeout:    time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Embedder.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	if cfg.Embedder.CacheSize > 0 {
		cached, err := embedding.NewCached(emb, cfg.Embedder.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		return cached, nil
	}
	return emb, nil
}

func buildStores(cfg *config.AppConfig) (service.Stores, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return service.Stores{Content: memory.NewStorage(), Summaries: memory.NewStorage(), Originals: memory.NewStorage()}, nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return service.Stores{}, fmt.Errorf("qdrant config missing")
		}
		store := func(suffix string) vectorstore.Storage {
			return qdrant.NewStorage(qdrant.Config{
				URL:        q.URL,
				APIKey:     q.APIKey,
				Collection: q.Collection + "_" + suffix,
				Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
			})
		}
		return service.Stores{Content: store("content"), Summaries: store("summaries"), Originals: store("originals")}, nil
	}
	return service.Stores{}, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
}

func buildCorpus(cfg *config.AppConfig, counter domain.TokenCounter) (*service.Corpus, error) {
	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences, chunker.WithTokenCounter(counter))
	case "section", "":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences,
			chunker.WithSections(), chunker.WithTokenCounter(counter))
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	stores, err := buildStores(cfg)
	if err != nil {
		return nil, err
	}
	return service.NewCorpus(ch, emb, sum, cfg.Summarizer.MaxSentences, stores,
		service.WithLogger(logger.WithPrefix("corpus")), service.WithTokenCounter(counter)), nil
}

// ingest builds the corpus from the --docs and --examples flags.
func ingest(ctx context.Context, corpus *service.Corpus) (service.Stats, error) {
	var examples []domain.Example
	if rootFlags.examples != "" {
		var err error
		examples, err = service.LoadExamples(rootFlags.examples)
		if err != nil {
			return service.Stats{}, fmt.Errorf("load examples: %w", err)
		}
	}
	return corpus.Ingest(ctx, rootFlags.docs, examples)
}

type app struct {
	corpus   *service.Corpus
	stats    service.Stats
	pipeline *pipeline.Pipeline
}

// buildApp indexes the corpus and wires the pipeline around the chat model.
func buildApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	counter := tokenCounter(cfg)
	corpus, err := buildCorpus(cfg, counter)
	if err != nil {
		return nil, err
	}
	stats, err := ingest(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	model, err := llm.NewOpenAIModel(llm.OpenAIConfig{BaseURL: cfg.LLM.BaseURL, APIKeyEnv: cfg.LLM.APIKeyEnv, Model: cfg.LLM.Model})
	if err != nil {
		return nil, fmt.Errorf("llm init: %w", err)
	}
	client := llm.New(model, llm.Config{
		Model:         cfg.LLM.Model,
		Timeout:       time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		RetryAttempts: cfg.LLM.RetryAttempts,
		RetryBackoff:  time.Duration(cfg.LLM.RetryBackoffMS) * time.Millisecond,
		Answer:        callParams(cfg.LLM.Answer),
		Domain:        cfg.Pipeline.Domain,
	}, logger.WithPrefix("llm"))

	retriever := retrieval.New(retrieval.FromCorpus(corpus),
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithHyDE(client, callParams(cfg.LLM.HyDE)),
		retrieval.WithLogger(logger.WithPrefix("retrieval")))

	p := pipeline.New(pipeline.Deps{LLM: client, Answerer: client, Retriever: retriever, Tokens: counter}, pipeline.Config{
		Domain:             cfg.Pipeline.Domain,
		MaxSubquestions:    cfg.Pipeline.MaxSubquestions,
		ContextBudget:      cfg.Pipeline.ContextBudget,
		ContentPreviewDocs: cfg.Pipeline.ContentPreviewDocs,
		ExamplePreviewDocs: cfg.Pipeline.ExamplePreviewDocs,
		Decompose:          callParams(cfg.LLM.Decompose),
		DecomposeSeeded:    callParams(cfg.LLM.DecomposeSeed),
		Synthesis:          callParams(cfg.LLM.Synthesis),
	}, logger.WithPrefix("pipeline"))

	return &app{corpus: corpus, stats: stats, pipeline: p}, nil
}

func callParams(c config.CallConfig) llm.CallParams {
	return llm.CallParams{MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

// ask runs one query, pre-fetching expansion documents when expand is set.
func (a *app) ask(ctx context.Context, query string, expand bool, prefetch int, opts pipeline.Options) pipeline.PipelineResult {
	if !expand {
		return a.pipeline.Process(ctx, query, opts)
	}
	content, examples, err := a.corpus.Prefetch(ctx, query, prefetch, prefetch)
	if err != nil {
		logger.Warn("prefetch failed, continuing without expansion documents", "err", err)
	}
	return a.pipeline.ProcessWithExpansion(ctx, query, content, examples, opts)
}
