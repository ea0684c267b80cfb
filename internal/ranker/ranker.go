// Package ranker scores text chunks by how central they are to the document
// they came from, so the most representative ones can be picked first.
package ranker

import (
	"sort"

	"learnhub/internal/chunker"
)

// Tunable PageRank hyperparameters.
const (
	DefaultDamping       = 0.85
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 100
)

// RankedChunk is a chunk with its centrality score in [0,1].
type RankedChunk struct {
	Chunk chunker.Chunk
	Score float64
}

type Ranker struct {
	damping   float64
	tolerance float64
	maxIter   int
}

type Option func(*Ranker)

func WithDamping(d float64) Option {
	return func(r *Ranker) { r.damping = d }
}

func WithTolerance(tol float64) Option {
	return func(r *Ranker) { r.tolerance = tol }
}

func WithMaxIterations(n int) Option {
	return func(r *Ranker) { r.maxIter = n }
}

func New(opts ...Option) *Ranker {
	r := &Ranker{
		damping:   DefaultDamping,
		tolerance: DefaultTolerance,
		maxIter:   DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank scores chunks with PageRank over their TF-IDF cosine similarity graph
// and returns them most central first. Equal scores keep document order.
func (r *Ranker) Rank(chunks []chunker.Chunk) []RankedChunk {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = c.Text
	}
	scores := pageRank(similarityMatrix(tfidf(docs)), r.damping, r.tolerance, r.maxIter)

	ranked := make([]RankedChunk, len(chunks))
	for i, c := range chunks {
		ranked[i] = RankedChunk{Chunk: c, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// TopK returns the first k ranked chunks, or all of them if there are fewer.
func TopK(ranked []RankedChunk, k int) []RankedChunk {
	if k < 0 {
		k = 0
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}
