package ranker

import "math"

// pageRank runs weighted PageRank by power iteration over a symmetric
// adjacency matrix. Rows with no outgoing weight are dangling and spread their
// mass uniformly. The returned scores sum to 1.
func pageRank(adj [][]float64, damping, tolerance float64, maxIter int) []float64 {
	n := len(adj)
	if n == 0 {
		return nil
	}

	outWeight := make([]float64, n)
	for i, row := range adj {
		for _, w := range row {
			outWeight[i] += w
		}
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = 1 / float64(n)
	}

	for iter := 0; iter < maxIter; iter++ {
		next := make([]float64, n)
		var dangling float64
		for i, row := range adj {
			if outWeight[i] == 0 {
				dangling += x[i]
				continue
			}
			share := damping * x[i] / outWeight[i]
			for j, w := range row {
				if w > 0 {
					next[j] += share * w
				}
			}
		}

		base := (damping*dangling + 1 - damping) / float64(n)
		var delta float64
		for j := range next {
			next[j] += base
			delta += math.Abs(next[j] - x[j])
		}
		x = next
		if delta < float64(n)*tolerance {
			break
		}
	}
	return x
}
