package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Defaults for Rank.
const (
	DefaultDamping       = 0.85
	DefaultTolerance     = 1e-4
	DefaultMaxIterations = 100
)

// parallelMinNodes is the graph size below which an iteration step runs on
// the calling goroutine.
const parallelMinNodes = 512

// ErrInvalidRankOptions is returned when RankOptions are out of range.
var ErrInvalidRankOptions = errors.New("invalid rank options")

// RankOptions controls the LexRank power iteration.
type RankOptions struct {
	Damping       float64 // probability of following an edge, in [0, 1)
	Tolerance     float64 // L1 change below which iteration stops
	MaxIterations int
	Concurrency   int
}

// DefaultRankOptions returns the standard LexRank settings.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		Damping:       DefaultDamping,
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		Concurrency:   defaultConcurrency,
	}
}

func (o RankOptions) validate() error {
	switch {
	case math.IsNaN(o.Damping) || o.Damping < 0 || o.Damping >= 1:
		return fmt.Errorf("%w: damping %v outside [0, 1)", ErrInvalidRankOptions, o.Damping)
	case !(o.Tolerance > 0):
		return fmt.Errorf("%w: tolerance %v must be positive", ErrInvalidRankOptions, o.Tolerance)
	case o.MaxIterations < 1:
		return fmt.Errorf("%w: max iterations %d must be at least 1", ErrInvalidRankOptions, o.MaxIterations)
	}
	return nil
}

// Ranking holds the centrality scores of one graph.
type Ranking struct {
	Scores     []float64 // indexed by node
	Iterations int
	Converged  bool
	Delta      float64 // L1 change of the last iteration
}

// Rank computes LexRank scores by power iteration over the row-stochastic
// transition matrix of g. A node without edges jumps uniformly. The walk
// follows the matrix with probability Damping and jumps uniformly
// otherwise.
//
// Reaching MaxIterations is not an error: the last iterate is returned
// with Converged set to false.
//
// Every sum is taken in ascending node order, so identical inputs give
// bit-identical scores for any Concurrency.
func Rank(ctx context.Context, g *Graph, opts RankOptions) (*Ranking, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	n := g.Len()
	if n == 0 {
		return &Ranking{Converged: true}, nil
	}

	// coef[i][k] is the transition probability from Adj[i][k].To into i.
	// The graph is symmetric, so i's in-edges are its adjacency list.
	outWeight := make([]float64, n)
	for j, edges := range g.Adj {
		for _, e := range edges {
			outWeight[j] += e.Weight
		}
	}
	coef := make([][]float64, n)
	for i, edges := range g.Adj {
		coef[i] = make([]float64, len(edges))
		for k, e := range edges {
			coef[i][k] = e.Weight / outWeight[e.To]
		}
	}

	nf := float64(n)
	jump := (1 - opts.Damping) / nf

	p := make([]float64, n)
	next := make([]float64, n)
	for i := range p {
		p[i] = 1 / nf
	}

	step := func(lo, hi int, dangling float64) {
		for i := lo; i < hi; i++ {
			var sum float64
			for k, e := range g.Adj[i] {
				sum += p[e.To] * coef[i][k]
			}
			next[i] = jump + opts.Damping*(dangling/nf+sum)
		}
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}

	r := &Ranking{}
	for it := 1; it <= opts.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var dangling float64
		for j := 0; j < n; j++ {
			if outWeight[j] == 0 {
				dangling += p[j]
			}
		}

		if n < parallelMinNodes || workers == 1 {
			step(0, n, dangling)
		} else {
			var wg sync.WaitGroup
			chunk := (n + workers - 1) / workers
			for lo := 0; lo < n; lo += chunk {
				hi := min(lo+chunk, n)
				wg.Add(1)
				go func() {
					defer wg.Done()
					step(lo, hi, dangling)
				}()
			}
			wg.Wait()
		}

		var delta float64
		for i := 0; i < n; i++ {
			delta += math.Abs(next[i] - p[i])
		}
		p, next = next, p

		r.Iterations = it
		r.Delta = delta
		if delta < opts.Tolerance {
			r.Converged = true
			break
		}
	}

	r.Scores = p
	return r, nil
}
