package ranker

import (
	"testing"

	"learnhub/internal/chunker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunks(texts ...string) []chunker.Chunk {
	out := make([]chunker.Chunk, len(texts))
	for i, t := range texts {
		out[i] = chunker.Chunk{Index: i, Text: t}
	}
	return out
}

func TestRankCentralChunksFirst(t *testing.T) {
	in := chunks(
		"The goalkeeper saved a penalty in the final minute of the match.",
		"Mitochondria convert glucose into ATP during cellular respiration.",
		"Cellular respiration in mitochondria releases energy stored in glucose.",
		"ATP produced by mitochondria powers cellular processes.",
	)

	ranked := New().Rank(in)
	require.Len(t, ranked, 4)
	assert.Equal(t, 0, ranked[3].Chunk.Index, "unrelated chunk ranks last")

	var sum float64
	for i, r := range ranked {
		sum += r.Score
		if i > 0 {
			assert.GreaterOrEqual(t, ranked[i-1].Score, r.Score)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRankTiesKeepDocumentOrder(t *testing.T) {
	// no usable tokens: every chunk is dangling and scores are uniform
	in := chunks("a", "the of", "?!", "I")
	ranked := New().Rank(in)
	require.Len(t, ranked, 4)
	for i, r := range ranked {
		assert.Equal(t, i, r.Chunk.Index)
		assert.InDelta(t, 0.25, r.Score, 1e-12)
	}
}

func TestRankEmpty(t *testing.T) {
	assert.Nil(t, New().Rank(nil))
}

func TestTopK(t *testing.T) {
	in := chunks(
		"Photosynthesis turns light into chemical energy in chloroplasts.",
		"Chloroplasts capture light energy for photosynthesis.",
		"Stock markets fell sharply on Tuesday.",
		"Light energy drives photosynthesis inside chloroplasts of plant cells.",
		"The recipe calls for two cups of flour.",
	)
	ranked := New().Rank(in)

	top := TopK(ranked, 2)
	require.Len(t, top, 2)
	assert.Equal(t, ranked[:2], top)
	for _, r := range top {
		assert.NotContains(t, []int{2, 4}, r.Chunk.Index)
	}
	for _, r := range ranked[2:] {
		assert.LessOrEqual(t, r.Score, top[1].Score)
	}

	assert.Len(t, TopK(ranked, 10), 5)
	assert.Empty(t, TopK(ranked, -1))
}

// Hub 0 with leaves 1 and 2, and a chain 0-3-4-5.
func starAndChain() [][]float64 {
	adj := make([][]float64, 6)
	for i := range adj {
		adj[i] = make([]float64, 6)
	}
	for _, e := range [][2]int{{0, 1}, {0, 2}, {0, 3}, {3, 4}, {4, 5}} {
		adj[e[0]][e[1]] = 1
		adj[e[1]][e[0]] = 1
	}
	return adj
}

func TestPageRankStarAndChain(t *testing.T) {
	scores := pageRank(starAndChain(), DefaultDamping, DefaultTolerance, DefaultMaxIterations)
	require.Len(t, scores, 6)

	assert.InDelta(t, 0.2869, scores[0], 1e-3)
	assert.InDelta(t, 0.1996, scores[4], 1e-3)
	assert.InDelta(t, 0.1911, scores[3], 1e-3)
	assert.InDelta(t, 0.1098, scores[5], 1e-3)
	assert.Equal(t, scores[1], scores[2], "symmetric leaves score the same")
	assert.Greater(t, scores[5], scores[1])
}

func TestTopKExactOrder(t *testing.T) {
	// Chunk 2 shares a term with chunks 0, 1 and 3; chunks 3, 4 and 5 form a chain.
	in := chunks(
		"basalt basalt",
		"quartz",
		"granite basalt quartz marble",
		"marble slate",
		"slate obsidian",
		"obsidian pumice",
	)
	ranked := New().Rank(in)

	var order []int
	for _, r := range ranked {
		order = append(order, r.Chunk.Index)
	}
	assert.Equal(t, []int{2, 4, 3, 0, 1, 5}, order)
	assert.Equal(t, ranked[3].Score, ranked[4].Score, "tied leaves keep document order")

	top := TopK(ranked, 3)
	require.Len(t, top, 3)
	assert.Equal(t, 2, top[0].Chunk.Index)
	assert.Equal(t, 4, top[1].Chunk.Index)
	assert.Equal(t, 3, top[2].Chunk.Index)
	assert.InDelta(t, 0.2765, top[0].Score, 1e-3)
}

func TestRankIsDeterministic(t *testing.T) {
	page := "Terms of service apply. Copyright holders reserve rights. Contact support for licensing questions."
	in := chunks(
		page,
		page+" Revision one.",
		page+" Revision two.",
		"Licensing terms differ per region and product tier.",
		page,
	)
	want := New().Rank(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, want, New().Rank(in))
	}
}

func TestCosineWalksSharedTerms(t *testing.T) {
	a := vector{ids: []int{0, 2, 5}, weights: []float64{0.5, 0.5, 0.5}}
	b := vector{ids: []int{1, 2, 5, 7}, weights: []float64{0.1, 0.2, 0.4, 0.3}}
	assert.InDelta(t, 0.3, cosine(a, b), 1e-12)
	assert.InDelta(t, 0.3, cosine(b, a), 1e-12)
	assert.Zero(t, cosine(a, vector{}))
}

func TestPageRankOptions(t *testing.T) {
	r := New(WithDamping(0.5), WithTolerance(1e-9), WithMaxIterations(5))
	assert.Equal(t, 0.5, r.damping)
	assert.Equal(t, 1e-9, r.tolerance)
	assert.Equal(t, 5, r.maxIter)
}
