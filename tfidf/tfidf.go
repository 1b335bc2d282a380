// Package tfidf builds sparse TF-IDF sentence vectors over the vocabulary
// of a single document.
package tfidf

import (
	"math"
	"sort"

	"github.com/brunobiangulo/distill/segment"
)

// Term is one non-zero component of a Vector.
type Term struct {
	ID     int
	Weight float64
}

// Vector is a sparse term-weight vector sorted by term ID.
type Vector []Term

// IsZero reports whether the vector has no non-zero component.
func (v Vector) IsZero() bool { return len(v) == 0 }

// Dot returns the dot product of two vectors. Components are visited in
// ascending term ID, so the result does not depend on map iteration.
func (v Vector) Dot(o Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v) && j < len(o) {
		switch {
		case v[i].ID == o[j].ID:
			sum += v[i].Weight * o[j].Weight
			i++
			j++
		case v[i].ID < o[j].ID:
			i++
		default:
			j++
		}
	}
	return sum
}

// Cosine returns the cosine similarity of two L2-normalized vectors,
// clamped to [0, 1]. Zero vectors are dissimilar to everything.
func Cosine(a, b Vector) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	s := a.Dot(b)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Model is the result of vectorizing one sentence set.
type Model struct {
	Terms   []string  // term ID -> term, in first-seen order
	IDF     []float64 // term ID -> inverse document frequency
	Vectors []Vector  // sentence index -> vector
}

// Vectorizer turns sentences into TF-IDF vectors.
type Vectorizer struct {
	terms func(string) []string
}

// Option configures a Vectorizer.
type Option func(*Vectorizer)

// WithTermFunc replaces the tokenizer. The function must already drop
// stop-words.
func WithTermFunc(fn func(string) []string) Option {
	return func(v *Vectorizer) { v.terms = fn }
}

// NewVectorizer returns a Vectorizer that uses segment.Terms by default.
func NewVectorizer(opts ...Option) *Vectorizer {
	v := &Vectorizer{terms: segment.Terms}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Vectorize computes one vector per sentence. IDF is log(N/(1+df)) over
// the given sentences only; terms whose IDF is not positive get no weight.
// Each vector is L2-normalized.
func (vz *Vectorizer) Vectorize(sentences []string) *Model {
	n := len(sentences)
	m := &Model{Vectors: make([]Vector, n)}
	index := make(map[string]int)

	counts := make([]map[int]int, n)
	var df []int
	for i, s := range sentences {
		c := make(map[int]int)
		for _, t := range vz.terms(s) {
			id, ok := index[t]
			if !ok {
				id = len(m.Terms)
				index[t] = id
				m.Terms = append(m.Terms, t)
				df = append(df, 0)
			}
			if c[id] == 0 {
				df[id]++
			}
			c[id]++
		}
		counts[i] = c
	}

	m.IDF = make([]float64, len(m.Terms))
	for id, d := range df {
		m.IDF[id] = math.Log(float64(n) / float64(1+d))
	}

	for i, c := range counts {
		vec := make(Vector, 0, len(c))
		for id, tf := range c {
			if w := float64(tf) * m.IDF[id]; w > 0 {
				vec = append(vec, Term{ID: id, Weight: w})
			}
		}
		sort.Slice(vec, func(a, b int) bool { return vec[a].ID < vec[b].ID })
		m.Vectors[i] = normalize(vec)
	}
	return m
}

// Vectorize is a shortcut for NewVectorizer().Vectorize(sentences).
func Vectorize(sentences []string) *Model {
	return NewVectorizer().Vectorize(sentences)
}

func normalize(v Vector) Vector {
	var sq float64
	for _, t := range v {
		sq += t.Weight * t.Weight
	}
	if sq == 0 {
		return nil
	}
	norm := math.Sqrt(sq)
	for i := range v {
		v[i].Weight /= norm
	}
	return v
}
