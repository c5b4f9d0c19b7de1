package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"seqrag/internal/domain"
	"seqrag/internal/llm"
	"seqrag/internal/retrieval"
)

type reply struct {
	text string
	err  error
}

// fakeLLM routes requests by prompt kind. Decomposition replies are consumed
// in order, the last one repeating.
type fakeLLM struct {
	mu             sync.Mutex
	decompose      []reply
	synthesis      reply
	panicDecompose bool
	decomposeCalls []llm.Request
	synthesisCalls []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.Contains(req.System, "breaking complex questions"):
		if f.panicDecompose {
			panic("decomposer exploded")
		}
		f.decomposeCalls = append(f.decomposeCalls, req)
		if len(f.decompose) == 0 {
			return "", errors.New("no decomposition scripted")
		}
		r := f.decompose[0]
		if len(f.decompose) > 1 {
			f.decompose = f.decompose[1:]
		}
		return r.text, r.err
	case strings.Contains(req.System, "synthesizing"):
		f.synthesisCalls = append(f.synthesisCalls, req)
		return f.synthesis.text, f.synthesis.err
	}
	return "", errors.New("unexpected request")
}

type fakeAnswerer struct {
	mu       sync.Mutex
	fail     map[string]error
	panics   map[string]bool
	contexts map[string]string
}

func (f *fakeAnswerer) Answer(_ context.Context, question, contextText string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contexts == nil {
		f.contexts = map[string]string{}
	}
	f.contexts[question] = contextText
	if f.panics[question] {
		panic("answerer exploded")
	}
	if err := f.fail[question]; err != nil {
		return "", err
	}
	return "Answer to: " + question, nil
}

type fakeRetriever struct {
	mu         sync.Mutex
	fail       map[string]error
	panics     map[string]bool
	items      map[string][]domain.ContextItem
	strategies []retrieval.Strategy
	weights    []*retrieval.Weights
}

func (f *fakeRetriever) Retrieve(_ context.Context, question string, strategy retrieval.Strategy, weights *retrieval.Weights) (retrieval.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies = append(f.strategies, strategy)
	f.weights = append(f.weights, weights)
	if f.panics[question] {
		panic("retriever exploded")
	}
	if err := f.fail[question]; err != nil {
		return retrieval.Result{}, err
	}
	if items, ok := f.items[question]; ok {
		return retrieval.Result{Items: items, Explanation: "scripted"}, nil
	}
	return retrieval.Result{Items: []domain.ContextItem{{Text: "doc for " + question}}}, nil
}
