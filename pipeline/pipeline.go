// Package pipeline runs the acquire, extract and rewrite stages of one
// summarization as a fail-fast state machine.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/brunobiangulo/distill/extract"
	"github.com/brunobiangulo/distill/logging"
	"github.com/brunobiangulo/distill/metrics"
	"github.com/brunobiangulo/distill/parser"
	"github.com/brunobiangulo/distill/rewrite"
)

// Acquirer reads the text of a document.
type Acquirer interface {
	Acquire(ctx context.Context, path string) (*parser.Document, error)
}

// Extractor selects the central sentences of a text.
type Extractor interface {
	Extract(ctx context.Context, text string, k int) (*extract.Result, error)
}

// Rewriter compresses text to a length range in words.
type Rewriter interface {
	Compress(ctx context.Context, text string, maxWords, minWords int) (string, error)
}

// Request describes one run.
type Request struct {
	Path      string
	Sentences int // extractive sentence count, 0 = extractor default
	MaxWords  int
	MinWords  int
}

// Result is the record of one run. On failure Summary is empty and
// Extraction is nil; the trace and durations are kept.
type Result struct {
	RunID          string                  `json:"run_id"`
	Source         string                  `json:"source"`
	State          State                   `json:"state"`
	Summary        string                  `json:"summary,omitempty"`
	Document       *parser.Document        `json:"document,omitempty"`
	Extraction     *extract.Result         `json:"extraction,omitempty"`
	Trace          []Transition            `json:"trace"`
	StageDurations map[State]time.Duration `json:"stage_durations"`
	Failure        *Failure                `json:"failure,omitempty"`
	Started        time.Time               `json:"started"`
	Elapsed        time.Duration           `json:"elapsed"`
}

// Pipeline sequences the three stages. It holds no per-run state and is
// safe for concurrent use.
type Pipeline struct {
	acquirer  Acquirer
	extractor Extractor
	rewriter  Rewriter
	metrics   metrics.Recorder
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics sets the recorder for stage measurements.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = r }
}

// WithTracerProvider sets the provider stage spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer(tracerName) }
}

const tracerName = "github.com/brunobiangulo/distill/pipeline"

var spanNames = map[State]string{
	Acquiring:  "pipeline.acquire",
	Extracting: "pipeline.extract",
	Rewriting:  "pipeline.rewrite",
}

// New creates a Pipeline.
func New(acq Acquirer, ex Extractor, rw Rewriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		acquirer:  acq,
		extractor: ex,
		rewriter:  rw,
		metrics:   metrics.Nop{},
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes one summarization. The returned error is a *Failure when a
// stage fails; the Result is returned either way.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{
		RunID:          uuid.NewString(),
		Source:         req.Path,
		StageDurations: make(map[State]time.Duration),
		Started:        p.now(),
	}
	ctx = logging.WithRun(ctx, res.RunID)
	log := logging.FromContext(ctx)

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("distill.run_id", res.RunID),
		attribute.String("distill.source", req.Path),
	))
	defer span.End()

	m := newMachine(p.now)
	var (
		doc    *parser.Document
		ex     *extract.Result
		output string
	)

	stages := []struct {
		state State
		run   func(ctx context.Context) error
	}{
		{Acquiring, func(ctx context.Context) (err error) {
			doc, err = p.acquirer.Acquire(ctx, req.Path)
			if err == nil && (doc == nil || strings.TrimSpace(doc.Text) == "") {
				doc, err = nil, parser.ErrNoReadableText
			}
			return err
		}},
		{Extracting, func(ctx context.Context) (err error) {
			ex, err = p.extractor.Extract(ctx, doc.Text, req.Sentences)
			return err
		}},
		{Rewriting, func(ctx context.Context) (err error) {
			output, err = p.rewriter.Compress(ctx, ex.Text, req.MaxWords, req.MinWords)
			if err == nil && strings.TrimSpace(output) == "" {
				err = rewrite.ErrEmptyOutput
			}
			return err
		}},
	}

	for _, st := range stages {
		if f := p.runStage(ctx, m, res, st.state, st.run); f != nil {
			_ = m.advance(Failed)
			res.State, res.Trace, res.Failure = m.state, m.trace, f
			res.Document = doc
			res.Elapsed = p.now().Sub(res.Started)

			p.metrics.StageFailure(string(f.Stage), f.Kind)
			p.metrics.RunFinished(string(Failed))
			span.SetStatus(codes.Error, f.Error())
			span.SetAttributes(attribute.String("distill.failed_stage", string(f.Stage)))
			log.Error("pipeline: run failed",
				"stage", f.Stage, "kind", f.Kind, "error", f.Reason,
				"elapsed", res.Elapsed.Round(time.Millisecond))
			return res, f
		}
		switch st.state {
		case Acquiring:
			span.SetAttributes(attribute.String("distill.method", doc.Method))
		case Extracting:
			span.SetAttributes(attribute.Int("distill.sentences", ex.Total))
		}
	}

	_ = m.advance(Done)
	res.State, res.Trace = m.state, m.trace
	res.Summary, res.Document, res.Extraction = output, doc, ex
	res.Elapsed = p.now().Sub(res.Started)
	p.metrics.RunFinished(string(Done))
	span.SetStatus(codes.Ok, "")

	log.Info("pipeline: run done",
		"source", req.Path, "sentences", ex.Total, "selected", len(ex.Sentences),
		"summary_words", len(strings.Fields(output)),
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// runStage enters state and runs fn under its own span. A context that is
// already done fails the stage without calling fn.
func (p *Pipeline) runStage(ctx context.Context, m *machine, res *Result, state State, fn func(context.Context) error) *Failure {
	if err := ctx.Err(); err != nil {
		return newFailure(state, err)
	}
	_ = m.advance(state)

	ctx, span := p.tracer.Start(ctx, spanNames[state])
	defer span.End()

	start := p.now()
	err := fn(ctx)
	d := p.now().Sub(start)
	res.StageDurations[state] = d
	p.metrics.StageDuration(string(state), d)

	if err != nil {
		f := newFailure(state, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, f.Kind)
		return f
	}
	span.SetStatus(codes.Ok, "")
	logging.FromContext(ctx).Debug("pipeline: stage done", "stage", state, "elapsed", d.Round(time.Millisecond))
	return nil
}
