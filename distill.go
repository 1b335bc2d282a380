// Package distill summarizes documents in two phases: LexRank selects the
// most central sentences, then a generation model rewrites them into a
// short summary.
package distill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/brunobiangulo/distill/extract"
	"github.com/brunobiangulo/distill/llm"
	"github.com/brunobiangulo/distill/metrics"
	"github.com/brunobiangulo/distill/parser"
	"github.com/brunobiangulo/distill/pipeline"
	"github.com/brunobiangulo/distill/rewrite"
	"github.com/brunobiangulo/distill/store"
)

// Default summary bounds in words.
const (
	DefaultMaxLength = 150
	DefaultMinLength = 50
)

// Engine is the main entry point for summarization.
type Engine interface {
	// Summarize acquires the document at path, extracts its central
	// sentences and rewrites them. A failed stage is reported as a
	// *pipeline.Failure.
	Summarize(ctx context.Context, path string, opts ...Option) (*Summary, error)

	// Extract runs only the extraction stage on text.
	Extract(ctx context.Context, text string, k int) (*extract.Result, error)

	// Runs lists recorded runs, newest first.
	Runs(ctx context.Context, limit int) ([]store.Run, error)

	// Run returns one recorded run.
	Run(ctx context.Context, runID string) (*store.Run, error)

	// Close releases the history database.
	Close() error
}

// Summary is the result of a successful run.
type Summary struct {
	RunID          string                           `json:"run_id"`
	Text           string                           `json:"summary"`
	Words          int                              `json:"words"`
	Source         string                           `json:"source"`
	Format         string                           `json:"format"`
	Method         string                           `json:"method"`
	Pages          int                              `json:"pages"`
	OCRPages       int                              `json:"ocr_pages"`
	Sentences      []extract.Sentence               `json:"sentences"`
	TotalSentences int                              `json:"total_sentences"`
	Converged      bool                             `json:"converged"`
	MaxLength      int                              `json:"max_length"`
	MinLength      int                              `json:"min_length"`
	Trace          []pipeline.Transition            `json:"trace"`
	StageDurations map[pipeline.State]time.Duration `json:"stage_durations"`
	Elapsed        time.Duration                    `json:"elapsed"`
}

// Option adjusts one Summarize call.
type Option func(*summarizeOptions)

type summarizeOptions struct {
	sentences int
	maxLength int
	minLength int
}

// WithSentenceCount sets how many sentences extraction keeps.
func WithSentenceCount(n int) Option {
	return func(o *summarizeOptions) { o.sentences = n }
}

// WithLength sets the summary bounds in words.
func WithLength(maxWords, minWords int) Option {
	return func(o *summarizeOptions) { o.maxLength, o.minLength = maxWords, minWords }
}

// WithLengthPreset sets the bounds from a named preset. See LengthPreset.
func WithLengthPreset(name string) Option {
	return func(o *summarizeOptions) { o.maxLength, o.minLength = LengthPreset(name) }
}

// LengthPreset maps "short", "medium" and "long" to (max, min) word
// bounds. Any other name gets the medium bounds.
func LengthPreset(name string) (maxWords, minWords int) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "short":
		return 80, 30
	case "long":
		return 300, 100
	default:
		return DefaultMaxLength, DefaultMinLength
	}
}

func checkLength(maxWords, minWords int) error {
	if maxWords <= 0 {
		return fmt.Errorf("max_length %d must be positive", maxWords)
	}
	if minWords < 0 || minWords > maxWords {
		return fmt.Errorf("min_length %d must be in [0, %d]", minWords, maxWords)
	}
	return nil
}

// EngineOption configures New.
type EngineOption func(*engineOptions)

type engineOptions struct {
	model    *rewrite.Model
	recorder metrics.Recorder
	tracer   trace.TracerProvider
}

// WithModel uses m instead of loading the process-wide model.
func WithModel(m *rewrite.Model) EngineOption {
	return func(o *engineOptions) { o.model = m }
}

// WithRecorder sets the metrics recorder, overriding Config.Metrics.
func WithRecorder(r metrics.Recorder) EngineOption {
	return func(o *engineOptions) { o.recorder = r }
}

// WithTracerProvider sets the provider for pipeline spans.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(o *engineOptions) { o.tracer = tp }
}

type engine struct {
	cfg       Config
	store     *store.Store
	model     *rewrite.Model
	extractor *extract.Extractor
	pipe      *pipeline.Pipeline
}

// New creates an engine. The rewriting model is loaded once per process
// and shared by every engine.
func New(ctx context.Context, cfg Config, opts ...EngineOption) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &engineOptions{}
	for _, fn := range opts {
		fn(o)
	}

	rec := o.recorder
	if rec == nil {
		if cfg.Metrics {
			rec = metrics.NewPrometheus()
		} else {
			rec = metrics.Nop{}
		}
	}

	var vision llm.VisionProvider
	if cfg.Vision.Provider != "" {
		p, err := llm.NewProvider(cfg.Vision)
		if err != nil {
			return nil, fmt.Errorf("creating vision provider: %w", err)
		}
		vp, ok := p.(llm.VisionProvider)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrVisionUnsupported, cfg.Vision.Provider)
		}
		vision = vp
	}

	model := o.model
	if model == nil {
		m, err := rewrite.Shared(ctx, cfg.Rewrite)
		if err != nil {
			return nil, err
		}
		model = m
	}

	var s *store.Store
	if cfg.History.Enabled {
		var err error
		s, err = store.New(cfg.resolveDBPath())
		if err != nil {
			return nil, fmt.Errorf("opening run history: %w", err)
		}
		if cfg.History.Retention > 0 {
			n, err := s.PruneRuns(ctx, time.Now().Add(-cfg.History.Retention))
			if err != nil {
				slog.Warn("distill: pruning run history failed", "error", err)
			} else if n > 0 {
				slog.Info("distill: pruned run history", "removed", n, "retention", cfg.History.Retention)
			}
		}
	}

	ex := extract.New(cfg.Extract, extract.WithMetrics(rec))
	pipeOpts := []pipeline.Option{pipeline.WithMetrics(rec)}
	if o.tracer != nil {
		pipeOpts = append(pipeOpts, pipeline.WithTracerProvider(o.tracer))
	}
	pipe := pipeline.New(
		parser.New(cfg.Acquire, vision),
		ex,
		rewrite.NewRewriter(model, cfg.Rewrite, rewrite.WithMetrics(rec)),
		pipeOpts...,
	)

	return &engine{cfg: cfg, store: s, model: model, extractor: ex, pipe: pipe}, nil
}

func (e *engine) Summarize(ctx context.Context, path string, opts ...Option) (*Summary, error) {
	o := summarizeOptions{
		sentences: e.cfg.Extract.SentenceCount,
		maxLength: e.cfg.MaxLength,
		minLength: e.cfg.MinLength,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if err := checkLength(o.maxLength, o.minLength); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLength, err)
	}

	res, err := e.pipe.Run(ctx, pipeline.Request{
		Path:      path,
		Sentences: o.sentences,
		MaxWords:  o.maxLength,
		MinWords:  o.minLength,
	})
	e.record(ctx, res)
	if err != nil {
		return nil, err
	}

	doc, ex := res.Document, res.Extraction
	return &Summary{
		RunID:          res.RunID,
		Text:           res.Summary,
		Words:          len(strings.Fields(res.Summary)),
		Source:         res.Source,
		Format:         doc.Format,
		Method:         doc.Method,
		Pages:          doc.Pages,
		OCRPages:       doc.OCRPages,
		Sentences:      ex.Sentences,
		TotalSentences: ex.Total,
		Converged:      ex.Converged,
		MaxLength:      o.maxLength,
		MinLength:      o.minLength,
		Trace:          res.Trace,
		StageDurations: res.StageDurations,
		Elapsed:        res.Elapsed,
	}, nil
}

// record writes res to the history. Failures to write are logged only.
func (e *engine) record(ctx context.Context, res *pipeline.Result) {
	if e.store == nil || res == nil {
		return
	}
	run := runRecord(res, e.model.Name)
	if err := e.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("distill: recording run failed", "run_id", res.RunID, "error", err)
	}
}

func runRecord(res *pipeline.Result, model string) store.Run {
	run := store.Run{
		RunID:     res.RunID,
		Source:    res.Source,
		State:     string(res.State),
		Summary:   res.Summary,
		Model:     model,
		ElapsedMS: res.Elapsed.Milliseconds(),
		CreatedAt: res.Started,
	}
	run.SummaryWords = len(strings.Fields(res.Summary))
	if d := res.Document; d != nil {
		run.Format, run.Method, run.Pages, run.OCRPages = d.Format, d.Method, d.Pages, d.OCRPages
		run.ContentHash = store.HashContent(d.Text)
	}
	if x := res.Extraction; x != nil {
		run.SentencesTotal, run.SentencesSelected = x.Total, len(x.Sentences)
		run.Iterations, run.Converged = x.Iterations, x.Converged
	}
	if f := res.Failure; f != nil {
		run.FailedStage, run.FailureKind, run.FailureReason = string(f.Stage), f.Kind, f.Reason
	}
	if b, err := json.Marshal(res.Trace); err == nil {
		run.Trace = string(b)
	}
	ms := make(map[pipeline.State]int64, len(res.StageDurations))
	for st, d := range res.StageDurations {
		ms[st] = d.Milliseconds()
	}
	if b, err := json.Marshal(ms); err == nil {
		run.StageDurations = string(b)
	}
	return run
}

func (e *engine) Extract(ctx context.Context, text string, k int) (*extract.Result, error) {
	return e.extractor.Extract(ctx, text, k)
}

func (e *engine) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	return e.store.ListRuns(ctx, limit)
}

func (e *engine) Run(ctx context.Context, runID string) (*store.Run, error) {
	if e.store == nil {
		return nil, ErrHistoryDisabled
	}
	r, err := e.store.GetRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
