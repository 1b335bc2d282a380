package tfidf

import (
	"math"
	"testing"
)

const eps = 1e-12

func TestVectorizeIDF(t *testing.T) {
	m := Vectorize([]string{
		"Graphs rank sentences.",
		"Graphs link words.",
		"Graphs help.",
	})

	idf := make(map[string]float64)
	for id, term := range m.Terms {
		idf[term] = m.IDF[id]
	}

	// "graphs" is in every sentence: log(3/4) < 0, so it carries no weight.
	if idf["graphs"] >= 0 {
		t.Errorf("idf(graphs) = %v, want negative", idf["graphs"])
	}
	if want := math.Log(3.0 / 2.0); math.Abs(idf["rank"]-want) > eps {
		t.Errorf("idf(rank) = %v, want %v", idf["rank"], want)
	}

	for i, v := range m.Vectors {
		for _, term := range v {
			if m.Terms[term.ID] == "graphs" {
				t.Errorf("sentence %d: term in every sentence has weight %v", i, term.Weight)
			}
		}
	}
}

func TestVectorizeNormalized(t *testing.T) {
	m := Vectorize([]string{
		"Power iteration converges quickly on small graphs.",
		"Damping keeps the random walk ergodic.",
		"Cosine similarity compares sentence vectors.",
	})
	for i, v := range m.Vectors {
		if v.IsZero() {
			t.Fatalf("sentence %d: unexpected zero vector", i)
		}
		if got := v.Dot(v); math.Abs(got-1) > 1e-9 {
			t.Errorf("sentence %d: |v|^2 = %v, want 1", i, got)
		}
		for k := 1; k < len(v); k++ {
			if v[k-1].ID >= v[k].ID {
				t.Errorf("sentence %d: terms not sorted by ID", i)
			}
		}
	}
}

func TestVectorizeStopWordsOnly(t *testing.T) {
	m := Vectorize([]string{
		"It is what it is.",
		"Sparse vectors save memory.",
		"Dense vectors waste memory.",
	})
	if !m.Vectors[0].IsZero() {
		t.Fatalf("stop-word sentence: got %v, want zero vector", m.Vectors[0])
	}
	for j := range m.Vectors {
		if got := Cosine(m.Vectors[0], m.Vectors[j]); got != 0 {
			t.Errorf("Cosine(zero, %d) = %v, want 0", j, got)
		}
	}
}

func TestVectorizeEmpty(t *testing.T) {
	m := Vectorize(nil)
	if len(m.Vectors) != 0 || len(m.Terms) != 0 {
		t.Errorf("Vectorize(nil) = %+v, want empty model", m)
	}
}

func TestCosine(t *testing.T) {
	a := Vector{{ID: 0, Weight: 0.6}, {ID: 2, Weight: 0.8}}
	b := Vector{{ID: 1, Weight: 1}}
	c := Vector{{ID: 0, Weight: 0.6}, {ID: 2, Weight: 0.8}}

	if got := Cosine(a, b); got != 0 {
		t.Errorf("Cosine(disjoint) = %v, want 0", got)
	}
	if got := Cosine(a, c); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(same) = %v, want 1", got)
	}
	if got := Cosine(a, c); got > 1 {
		t.Errorf("Cosine exceeded 1: %v", got)
	}
	if Cosine(a, b) != Cosine(b, a) {
		t.Error("Cosine is not symmetric")
	}
}

func TestWithTermFunc(t *testing.T) {
	calls := 0
	vz := NewVectorizer(WithTermFunc(func(s string) []string {
		calls++
		return []string{s}
	}))
	m := vz.Vectorize([]string{"x", "y", "z"})
	if calls != 3 {
		t.Errorf("term func called %d times, want 3", calls)
	}
	if len(m.Terms) != 3 {
		t.Errorf("vocabulary size = %d, want 3", len(m.Terms))
	}
}
