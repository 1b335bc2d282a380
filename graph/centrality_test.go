package graph

import (
	"context"
	"errors"
	"math"
	"testing"
)

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// starGraph connects node 0 to every other node with weight 1.
func starGraph(n int) *Graph {
	adj := make([][]Edge, n)
	for j := 1; j < n; j++ {
		adj[0] = append(adj[0], Edge{To: j, Weight: 1})
		adj[j] = append(adj[j], Edge{To: 0, Weight: 1})
	}
	return &Graph{Adj: adj, Threshold: DefaultThreshold}
}

func TestRankStar(t *testing.T) {
	r, err := Rank(context.Background(), starGraph(5), DefaultRankOptions())
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !r.Converged {
		t.Errorf("did not converge after %d iterations (delta %v)", r.Iterations, r.Delta)
	}
	if math.Abs(sum(r.Scores)-1) > 1e-9 {
		t.Errorf("scores sum to %v, want 1", sum(r.Scores))
	}
	for j := 1; j < 5; j++ {
		if r.Scores[0] <= r.Scores[j] {
			t.Errorf("hub score %v not above leaf %d score %v", r.Scores[0], j, r.Scores[j])
		}
		if r.Scores[j] != r.Scores[1] {
			t.Errorf("leaf scores differ: %v vs %v", r.Scores[j], r.Scores[1])
		}
	}
}

func TestRankNoEdgesIsUniform(t *testing.T) {
	g := &Graph{Adj: make([][]Edge, 4)}
	r, err := Rank(context.Background(), g, DefaultRankOptions())
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	for i, s := range r.Scores {
		if math.Abs(s-0.25) > 1e-12 {
			t.Errorf("score[%d] = %v, want 0.25", i, s)
		}
	}
	if !r.Converged || r.Iterations != 1 {
		t.Errorf("Converged=%v Iterations=%d, want true after 1", r.Converged, r.Iterations)
	}
}

func TestRankIsolatedNodesKeepScore(t *testing.T) {
	g, err := NewBuilder(DefaultThreshold, 1).Build(context.Background(), testVectors())
	if err != nil {
		t.Fatal(err)
	}
	r, err := Rank(context.Background(), g, DefaultRankOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Scores) != 5 {
		t.Fatalf("got %d scores, want 5", len(r.Scores))
	}
	for i, s := range r.Scores {
		if s <= 0 {
			t.Errorf("score[%d] = %v, want positive", i, s)
		}
	}
	if math.Abs(sum(r.Scores)-1) > 1e-9 {
		t.Errorf("scores sum to %v, want 1", sum(r.Scores))
	}
	if r.Scores[1] <= r.Scores[3] {
		t.Errorf("connected node 1 (%v) should outrank isolated node 3 (%v)", r.Scores[1], r.Scores[3])
	}
	if r.Scores[3] != r.Scores[4] {
		t.Errorf("isolated nodes differ: %v vs %v", r.Scores[3], r.Scores[4])
	}
}

func TestRankDeterministic(t *testing.T) {
	g, err := NewBuilder(DefaultThreshold, 4).Build(context.Background(), ringVectors(parallelMinNodes+100))
	if err != nil {
		t.Fatal(err)
	}
	// Break the ring's symmetry so scores are not all equal.
	g.Adj[0] = append(g.Adj[0][:0:0], g.Adj[0]...)
	for k := range g.Adj[0] {
		g.Adj[0][k].Weight = 0.9
		to := g.Adj[0][k].To
		for m := range g.Adj[to] {
			if g.Adj[to][m].To == 0 {
				g.Adj[to][m].Weight = 0.9
			}
		}
	}

	opts := DefaultRankOptions()
	opts.Concurrency = 1
	base, err := Rank(context.Background(), g, opts)
	if err != nil {
		t.Fatal(err)
	}

	for _, workers := range []int{1, 3, 8, 16} {
		opts.Concurrency = workers
		for run := 0; run < 3; run++ {
			r, err := Rank(context.Background(), g, opts)
			if err != nil {
				t.Fatal(err)
			}
			if r.Iterations != base.Iterations {
				t.Fatalf("workers=%d: iterations %d, want %d", workers, r.Iterations, base.Iterations)
			}
			for i := range r.Scores {
				if math.Float64bits(r.Scores[i]) != math.Float64bits(base.Scores[i]) {
					t.Fatalf("workers=%d run=%d: score[%d] = %v, want %v", workers, run, i, r.Scores[i], base.Scores[i])
				}
			}
		}
	}
}

func TestRankIterationCap(t *testing.T) {
	opts := DefaultRankOptions()
	opts.MaxIterations = 1
	r, err := Rank(context.Background(), starGraph(6), opts)
	if err != nil {
		t.Fatalf("hitting the cap must not fail: %v", err)
	}
	if r.Converged {
		t.Error("Converged = true after a single iteration on a star")
	}
	if r.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", r.Iterations)
	}
	if len(r.Scores) != 6 || math.Abs(sum(r.Scores)-1) > 1e-9 {
		t.Errorf("best-effort scores invalid: %v", r.Scores)
	}
}

func TestRankEmpty(t *testing.T) {
	r, err := Rank(context.Background(), &Graph{}, DefaultRankOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Scores) != 0 || !r.Converged {
		t.Errorf("empty graph ranking = %+v", r)
	}
}

func TestRankInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*RankOptions)
	}{
		{"damping one", func(o *RankOptions) { o.Damping = 1 }},
		{"negative damping", func(o *RankOptions) { o.Damping = -0.1 }},
		{"zero tolerance", func(o *RankOptions) { o.Tolerance = 0 }},
		{"zero iterations", func(o *RankOptions) { o.MaxIterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultRankOptions()
			tt.mod(&opts)
			_, err := Rank(context.Background(), starGraph(3), opts)
			if !errors.Is(err, ErrInvalidRankOptions) {
				t.Errorf("err = %v, want ErrInvalidRankOptions", err)
			}
		})
	}
}

func TestRankCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Rank(ctx, starGraph(3), DefaultRankOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
