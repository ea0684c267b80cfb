package ranker

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// vector is a sparse term-weight vector. ids are vocabulary indexes in
// ascending order and weights[k] belongs to ids[k], so every sum over a
// vector runs in the same order.
type vector struct {
	ids     []int
	weights []float64
}

// tokenize lowercases text and returns word tokens of two or more runes
// that are not English stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// tfidf builds one L2-normalized TF-IDF vector per document using raw term
// counts and smoothed inverse document frequency: ln((1+n)/(1+df)) + 1.
// A document with no usable tokens gets an empty vector.
func tfidf(docs []string) []vector {
	n := len(docs)
	vocab := make(map[string]int)
	counts := make([]map[int]int, n)
	df := make(map[int]int)

	for i, doc := range docs {
		counts[i] = make(map[int]int)
		for _, tok := range tokenize(doc) {
			id, ok := vocab[tok]
			if !ok {
				id = len(vocab)
				vocab[tok] = id
			}
			if counts[i][id] == 0 {
				df[id]++
			}
			counts[i][id]++
		}
	}

	vectors := make([]vector, n)
	for i := range docs {
		ids := make([]int, 0, len(counts[i]))
		for id := range counts[i] {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		weights := make([]float64, len(ids))
		var norm float64
		for k, id := range ids {
			idf := math.Log(float64(1+n)/float64(1+df[id])) + 1
			w := float64(counts[i][id]) * idf
			weights[k] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range weights {
				weights[k] /= norm
			}
		}
		vectors[i] = vector{ids: ids, weights: weights}
	}
	return vectors
}

// cosine assumes both vectors are already L2-normalized. It walks the shared
// term ids in ascending order.
func cosine(a, b vector) float64 {
	var dot float64
	for i, j := 0, 0; i < len(a.ids) && j < len(b.ids); {
		switch {
		case a.ids[i] < b.ids[j]:
			i++
		case a.ids[i] > b.ids[j]:
			j++
		default:
			dot += a.weights[i] * b.weights[j]
			i++
			j++
		}
	}
	return dot
}

// similarityMatrix returns pairwise cosine similarities with a zero diagonal.
func similarityMatrix(vectors []vector) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := cosine(vectors[i], vectors[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m
}
