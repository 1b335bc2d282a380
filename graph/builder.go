// Package graph builds the sentence similarity graph and ranks its nodes
// by LexRank centrality.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/distill/tfidf"
)

// DefaultThreshold is the minimum cosine similarity kept as an edge.
const DefaultThreshold = 0.1

// defaultConcurrency bounds the number of rows computed in parallel.
const defaultConcurrency = 8

// Edge is one weighted neighbour in an adjacency list.
type Edge struct {
	To     int
	Weight float64
}

// Graph is an undirected similarity graph. Adj[i] lists the neighbours of
// node i sorted by index; every edge appears in both endpoint lists with
// the same weight and no node lists itself.
type Graph struct {
	Adj       [][]Edge
	Threshold float64
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Adj) }

// Degree returns the number of neighbours of node i.
func (g *Graph) Degree(i int) int { return len(g.Adj[i]) }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.Adj {
		n += len(edges)
	}
	return n / 2
}

// Weight returns the weight of edge (i, j) and whether it exists.
func (g *Graph) Weight(i, j int) (float64, bool) {
	for _, e := range g.Adj[i] {
		if e.To == j {
			return e.Weight, true
		}
		if e.To > j {
			break
		}
	}
	return 0, false
}

// Isolated returns the nodes without neighbours, in ascending order.
func (g *Graph) Isolated() []int {
	var out []int
	for i, edges := range g.Adj {
		if len(edges) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Builder computes pairwise similarities and keeps the edges at or above
// its threshold.
type Builder struct {
	threshold   float64
	concurrency int
}

// NewBuilder creates a Builder. A non-positive concurrency uses the
// default.
func NewBuilder(threshold float64, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Builder{threshold: threshold, concurrency: concurrency}
}

// Build computes the similarity of every unordered pair of vectors. Rows
// are processed concurrently; each row owns its slot in upper, so the
// result is the same for any schedule.
func (b *Builder) Build(ctx context.Context, vectors []tfidf.Vector) (*Graph, error) {
	if b.threshold < 0 || b.threshold > 1 {
		return nil, fmt.Errorf("similarity threshold %v outside [0, 1]", b.threshold)
	}

	n := len(vectors)
	start := time.Now()

	upper := make([][]Edge, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var row []Edge
			for j := i + 1; j < n; j++ {
				sim := tfidf.Cosine(vectors[i], vectors[j])
				if sim > 0 && sim >= b.threshold {
					row = append(row, Edge{To: j, Weight: sim})
				}
			}
			upper[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building similarity graph: %w", err)
	}

	// Lower-triangle entries first so each list stays sorted by index.
	adj := make([][]Edge, n)
	for i, row := range upper {
		for _, e := range row {
			adj[e.To] = append(adj[e.To], Edge{To: i, Weight: e.Weight})
		}
	}
	for i, row := range upper {
		adj[i] = append(adj[i], row...)
	}

	graph := &Graph{Adj: adj, Threshold: b.threshold}
	slog.Debug("graph: similarity graph built",
		"nodes", n, "edges", graph.EdgeCount(), "threshold", b.threshold,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return graph, nil
}
