package vectorstore

import (
	"context"

	"seqrag/internal/domain"
)

// Storage persists vectors and supports similarity search.
// Scores are cosine similarities; vectors are expected to be L2-normalized.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
}
