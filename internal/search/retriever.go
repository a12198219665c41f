// Package search answers queries over the artifact store: lexical retrieval
// with optional vector rerank, and retrieval-augmented answers.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
	"github.com/yangwenmai/vidlens/internal/provider"
	"github.com/yangwenmai/vidlens/internal/store"
)

// DefaultLimit is the number of results returned when none is requested.
const DefaultLimit = 10

// overFetch is how many lexical candidates are fetched per requested result.
const overFetch = 3

// Store is the read side the retriever needs.
type Store interface {
	SearchFTS(ctx context.Context, query string, limit int, videoID string) ([]model.SearchResult, error)
	EmbeddingsFor(ctx context.Context, artifactIDs []string, embedModel string) (map[string][]float32, error)
}

// Retriever runs hybrid search. embedder may be nil for lexical-only search.
type Retriever struct {
	store    Store
	embedder provider.Embedder
	log      *logger.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(s Store, e provider.Embedder, log *logger.Logger) *Retriever {
	if log == nil {
		log = logger.Nop()
	}
	return &Retriever{store: s, embedder: e, log: log}
}

// Search returns up to limit results for query, optionally within one video.
func (r *Retriever) Search(ctx context.Context, query string, limit int, videoID string) (*model.SearchResponse, error) {
	start := time.Now()
	if limit <= 0 {
		limit = DefaultLimit
	}

	candidates, err := r.store.SearchFTS(ctx, query, limit*overFetch, videoID)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	results := []model.SearchResult{}
	if len(candidates) > 0 {
		results = r.rerank(ctx, query, candidates, limit)
	}
	return &model.SearchResponse{
		Query:     query,
		Results:   results,
		Total:     len(results),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

// rerank orders candidates by cosine similarity to the query when any of
// them has a stored embedding. Candidates without one score 0. Every
// failure falls back to the lexical order.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []model.SearchResult, limit int) []model.SearchResult {
	lexical := truncate(candidates, limit)
	if r.embedder == nil {
		return lexical
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.ArtifactID != "" {
			ids = append(ids, c.ArtifactID)
		}
	}
	stored, err := r.store.EmbeddingsFor(ctx, ids, r.embedder.EmbedModel())
	if err != nil {
		r.log.Warn("loading embeddings failed, using lexical ranking", "error", err)
		return lexical
	}
	if len(stored) == 0 {
		return lexical
	}

	vecs, _, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		r.log.Warn("query embedding failed, using lexical ranking", "error", err)
		return lexical
	}
	qv := vecs[0]

	scored := make([]model.SearchResult, len(candidates))
	for i, c := range candidates {
		c.Score = 0
		if v, ok := stored[c.ArtifactID]; ok {
			sim, err := Cosine(qv, v)
			if err != nil {
				r.log.Warn("similarity failed, using lexical ranking", "error", err)
				return lexical
			}
			c.Score = sim
		}
		scored[i] = c
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	out := truncate(scored, limit)
	for i := range out {
		out[i].Rank = i + 1
		out[i].Score = store.Round4(out[i].Score)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero
// vector. Vectors of different length are an error.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions differ: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

func truncate(rs []model.SearchResult, n int) []model.SearchResult {
	if len(rs) > n {
		rs = rs[:n]
	}
	out := make([]model.SearchResult, len(rs))
	copy(out, rs)
	return out
}
