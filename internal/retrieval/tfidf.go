package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\b\w\w+\b`)

// Tokenize lowercases text and returns word tokens of at least two characters.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Term is one non-zero entry of a SparseVector.
type Term struct {
	Index  int
	Weight float64
}

// SparseVector holds non-zero weights ordered by ascending vocabulary index.
// Sums over it always run in that order, so equal inputs give bit-equal results.
type SparseVector []Term

// Dot returns the inner product of two sparse vectors.
func (v SparseVector) Dot(other SparseVector) float64 {
	sum := 0.0
	i, j := 0, 0
	for i < len(v) && j < len(other) {
		switch {
		case v[i].Index < other[j].Index:
			i++
		case v[i].Index > other[j].Index:
			j++
		default:
			sum += v[i].Weight * other[j].Weight
			i++
			j++
		}
	}
	return sum
}

// Vectorizer converts text to L2-normalised TF-IDF vectors using raw term
// counts and smoothed inverse document frequency ln((1+n)/(1+df)) + 1.
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// FitVectorizer learns the vocabulary and idf weights from docs.
func FitVectorizer(docs []string) *Vectorizer {
	vocab := make(map[string]int)
	var df []int
	for _, doc := range docs {
		seen := make(map[int]struct{})
		for _, tok := range Tokenize(doc) {
			idx, ok := vocab[tok]
			if !ok {
				idx = len(vocab)
				vocab[tok] = idx
				df = append(df, 0)
			}
			if _, dup := seen[idx]; !dup {
				seen[idx] = struct{}{}
				df[idx]++
			}
		}
	}

	n := float64(len(docs))
	idf := make([]float64, len(df))
	for i, d := range df {
		idf[i] = math.Log((1+n)/(1+float64(d))) + 1
	}
	return &Vectorizer{vocabulary: vocab, idf: idf}
}

// Transform vectorises text. Tokens outside the vocabulary are ignored.
func (v *Vectorizer) Transform(text string) SparseVector {
	counts := make(map[int]float64)
	for _, tok := range Tokenize(text) {
		if idx, ok := v.vocabulary[tok]; ok {
			counts[idx]++
		}
	}
	vec := make(SparseVector, 0, len(counts))
	for idx, tf := range counts {
		vec = append(vec, Term{Index: idx, Weight: tf * v.idf[idx]})
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].Index < vec[j].Index })

	norm := 0.0
	for _, t := range vec {
		norm += t.Weight * t.Weight
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i].Weight /= norm
	}
	return vec
}

// VocabularySize reports the number of distinct terms learned.
func (v *Vectorizer) VocabularySize() int { return len(v.vocabulary) }
