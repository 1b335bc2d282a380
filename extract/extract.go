// Package extract selects the most central sentences of a document with
// LexRank.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/distill/graph"
	"github.com/brunobiangulo/distill/metrics"
	"github.com/brunobiangulo/distill/segment"
	"github.com/brunobiangulo/distill/tfidf"
)

// DefaultSentenceCount is used when a caller asks for zero sentences.
const DefaultSentenceCount = 10

var (
	// ErrEmptyDocument is returned when segmentation finds no sentence.
	ErrEmptyDocument = errors.New("empty document: no sentences after segmentation")

	// ErrEmptyResult is returned when the selected sentences join to blank
	// text.
	ErrEmptyResult = errors.New("empty result: selected text is blank")
)

// Config holds the extraction parameters.
type Config struct {
	SentenceCount       int     `json:"sentence_count" yaml:"sentence_count"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	DampingFactor       float64 `json:"damping_factor" yaml:"damping_factor"`
	ConvergenceTol      float64 `json:"convergence_threshold" yaml:"convergence_threshold"`
	MaxIterations       int     `json:"max_iterations" yaml:"max_iterations"`
	Concurrency         int     `json:"concurrency" yaml:"concurrency"`
}

// DefaultConfig returns the standard LexRank extraction settings.
func DefaultConfig() Config {
	return Config{
		SentenceCount:       DefaultSentenceCount,
		SimilarityThreshold: graph.DefaultThreshold,
		DampingFactor:       graph.DefaultDamping,
		ConvergenceTol:      graph.DefaultTolerance,
		MaxIterations:       graph.DefaultMaxIterations,
	}
}

// Sentence is one selected sentence.
type Sentence struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Result is the outcome of one extraction.
type Result struct {
	Text       string     `json:"text"`
	Sentences  []Sentence `json:"sentences"` // ascending Index
	Total      int        `json:"total"`     // sentences in the document
	Requested  int        `json:"requested"` // k after defaulting and clamping
	Iterations int        `json:"iterations"`
	Converged  bool       `json:"converged"`
	Edges      int        `json:"edges"`
	Isolated   int        `json:"isolated"`
	Components int        `json:"components"`
}

// Extractor runs segmentation, vectorization, graph construction, ranking
// and selection.
type Extractor struct {
	cfg        Config
	vectorizer *tfidf.Vectorizer
	builder    *graph.Builder
	metrics    metrics.Recorder
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMetrics sets the recorder for ranking measurements.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Extractor) { e.metrics = r }
}

// WithVectorizer replaces the default TF-IDF vectorizer.
func WithVectorizer(v *tfidf.Vectorizer) Option {
	return func(e *Extractor) { e.vectorizer = v }
}

// New creates an Extractor. Zero SentenceCount, ConvergenceTol and
// MaxIterations take their defaults. SimilarityThreshold and DampingFactor
// are used as given, so start from DefaultConfig.
func New(cfg Config, opts ...Option) *Extractor {
	def := DefaultConfig()
	if cfg.SentenceCount <= 0 {
		cfg.SentenceCount = def.SentenceCount
	}
	if cfg.ConvergenceTol == 0 {
		cfg.ConvergenceTol = def.ConvergenceTol
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = def.MaxIterations
	}

	e := &Extractor{
		cfg:        cfg,
		vectorizer: tfidf.NewVectorizer(),
		builder:    graph.NewBuilder(cfg.SimilarityThreshold, cfg.Concurrency),
		metrics:    metrics.Nop{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Extract selects k sentences from text. k == 0 uses the configured
// count; any other k is clamped to [1, number of sentences]. The
// selection keeps document order.
func (e *Extractor) Extract(ctx context.Context, text string, k int) (*Result, error) {
	start := time.Now()
	if k == 0 {
		k = e.cfg.SentenceCount
	}

	sentences := segment.Split(text)
	if len(sentences) == 0 {
		return nil, ErrEmptyDocument
	}

	k = clamp(k, 1, len(sentences))

	model := e.vectorizer.Vectorize(sentences)

	g, err := e.builder.Build(ctx, model.Vectors)
	if err != nil {
		return nil, err
	}

	ranking, err := graph.Rank(ctx, g, graph.RankOptions{
		Damping:       e.cfg.DampingFactor,
		Tolerance:     e.cfg.ConvergenceTol,
		MaxIterations: e.cfg.MaxIterations,
		Concurrency:   e.cfg.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("ranking sentences: %w", err)
	}
	e.metrics.Ranking(ranking.Iterations, ranking.Converged)
	if !ranking.Converged {
		slog.Warn("extract: lexrank stopped at iteration cap",
			"iterations", ranking.Iterations, "delta", ranking.Delta,
			"tolerance", e.cfg.ConvergenceTol)
	}

	picked := Select(ranking.Scores, k)
	selected := make([]Sentence, len(picked))
	texts := make([]string, len(picked))
	for i, idx := range picked {
		selected[i] = Sentence{Index: idx, Text: sentences[idx], Score: ranking.Scores[idx]}
		texts[i] = sentences[idx]
	}

	joined := strings.Join(texts, " ")
	if strings.TrimSpace(joined) == "" {
		return nil, ErrEmptyResult
	}

	components := graph.Components(g)
	res := &Result{
		Text:       joined,
		Sentences:  selected,
		Total:      len(sentences),
		Requested:  k,
		Iterations: ranking.Iterations,
		Converged:  ranking.Converged,
		Edges:      g.EdgeCount(),
		Isolated:   len(g.Isolated()),
		Components: len(components),
	}

	slog.Info("extract: sentences selected",
		"total", res.Total, "selected", len(selected), "requested", k,
		"edges", res.Edges, "components", res.Components,
		"largest_component", graph.LargestComponent(components),
		"iterations", res.Iterations,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}
