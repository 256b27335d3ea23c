package retrieve

import (
	"context"
	"fmt"
	"strconv"

	"github.com/buildkb/buildkb/llm"
	"github.com/buildkb/buildkb/store"
)

// StoreSearcher implements VectorSearcher over the sqlite-vec store,
// embedding queries with the configured embedder. Hits below the
// similarity threshold are dropped.
type StoreSearcher struct {
	store     *store.Store
	embedder  llm.Provider
	threshold float64
}

// NewStoreSearcher creates a searcher. A threshold of 0 keeps every hit.
func NewStoreSearcher(s *store.Store, embedder llm.Provider, threshold float64) *StoreSearcher {
	return &StoreSearcher{store: s, embedder: embedder, threshold: threshold}
}

func (s *StoreSearcher) Search(ctx context.Context, query, partition string, limit int) ([]Hit, error) {
	embs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieve: embedding query: %w", err)
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("retrieve: embedder returned no vectors")
	}

	found, err := s.store.VectorSearch(ctx, embs[0], partition, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieve: vector search: %w", err)
	}

	hits := make([]Hit, 0, len(found))
	for _, f := range found {
		if f.Score < s.threshold {
			continue
		}
		hits = append(hits, Hit{
			Content:   f.Content,
			Score:     f.Score,
			Partition: f.Partition,
			Metadata: map[string]string{
				"fragment_id": strconv.FormatInt(f.FragmentID, 10),
				"document_id": strconv.FormatInt(f.DocumentID, 10),
				"chapter_id":  f.ChapterID,
				"title":       f.Title,
				"filename":    f.Filename,
			},
		})
	}
	return hits, nil
}
