package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/brunobiangulo/distill/extract"
	"github.com/brunobiangulo/distill/llm"
	"github.com/brunobiangulo/distill/parser"
	"github.com/brunobiangulo/distill/rewrite"
)

const report = "The river flooded the valley after three days of heavy rain. " +
	"Heavy rain for three days made the river flood the valley. " +
	"Farmers asked the council for relief. " +
	"The council promised relief and new funding. " +
	"New funding arrives next month."

func writeText(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// chatModel answers every request with reply.
type chatModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  llm.ChatRequest
}

func (c *chatModel) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = req
	if c.err != nil {
		return nil, c.err
	}
	return &llm.ChatResponse{Content: c.reply}, nil
}

type recorder struct {
	mu       sync.Mutex
	stages   []string
	failures []string
	outcomes []string
}

func (r *recorder) StageDuration(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) StageFailure(stage, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage+"/"+kind)
}

func (r *recorder) RunFinished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) Ranking(int, bool)       {}
func (r *recorder) RewriteOutput(int, bool) {}

type harness struct {
	pipe     *Pipeline
	model    *chatModel
	metrics  *recorder
	exporter *tracetest.InMemoryExporter
}

func newHarness(t *testing.T, reply string) *harness {
	t.Helper()
	h := &harness{
		model:    &chatModel{reply: reply},
		metrics:  &recorder{},
		exporter: tracetest.NewInMemoryExporter(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(h.exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	rw := rewrite.NewRewriter(&rewrite.Model{Provider: h.model, Name: "test"}, rewrite.Config{})
	h.pipe = New(
		parser.NewAcquirer(parser.NewRegistry()),
		extract.New(extract.DefaultConfig()),
		rw,
		WithMetrics(h.metrics),
		WithTracerProvider(tp),
	)
	return h
}

func (h *harness) spans() map[string]sdktrace.ReadOnlySpan {
	out := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range h.exporter.GetSpans().Snapshots() {
		out[s.Name()] = s
	}
	return out
}

func states(trace []Transition) []string {
	out := make([]string, len(trace))
	for i, tr := range trace {
		out[i] = fmt.Sprintf("%s->%s", tr.From, tr.To)
	}
	return out
}

func TestRunDone(t *testing.T) {
	h := newHarness(t, "  Floods hit the valley and the council promised funding.  ")
	res, err := h.pipe.Run(context.Background(), Request{
		Path:      writeText(t, "report.txt", report),
		Sentences: 3,
		MaxWords:  40,
		MinWords:  5,
	})
	require.NoError(t, err)

	assert.Equal(t, Done, res.State)
	assert.Equal(t, "Floods hit the valley and the council promised funding.", res.Summary)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{
		"idle->acquiring", "acquiring->extracting", "extracting->rewriting", "rewriting->done",
	}, states(res.Trace))
	assert.Len(t, res.StageDurations, 3)
	require.NotNil(t, res.Extraction)
	assert.Len(t, res.Extraction.Sentences, 3)

	// The model sees the extracted sentences, not the whole document.
	assert.Contains(t, h.model.last.Messages[1].Content, res.Extraction.Text)
	assert.NotContains(t, h.model.last.Messages[1].Content, "Farmers asked")

	assert.Equal(t, []string{"acquiring", "extracting", "rewriting"}, h.metrics.stages)
	assert.Equal(t, []string{"done"}, h.metrics.outcomes)
	assert.Empty(t, h.metrics.failures)
}

func TestRunSpans(t *testing.T) {
	h := newHarness(t, "A summary.")
	_, err := h.pipe.Run(context.Background(), Request{
		Path: writeText(t, "report.txt", report), Sentences: 2, MaxWords: 20, MinWords: 1,
	})
	require.NoError(t, err)

	spans := h.spans()
	require.Len(t, spans, 4)
	root := spans["pipeline.run"]
	require.NotNil(t, root)
	for _, name := range []string{"pipeline.acquire", "pipeline.extract", "pipeline.rewrite"} {
		s, ok := spans[name]
		require.True(t, ok, name)
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID(), name)
		assert.Equal(t, codes.Ok, s.Status().Code, name)
	}
}

// Acquisition finds no text, so rewriting never runs.
func TestRunFailsAtAcquiring(t *testing.T) {
	h := newHarness(t, "unused")
	res, err := h.pipe.Run(context.Background(), Request{
		Path: writeText(t, "blank.txt", " \n\t "), Sentences: 3, MaxWords: 40, MinWords: 5,
	})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Acquiring, f.Stage)
	assert.Equal(t, KindAcquisition, f.Kind)
	assert.ErrorIs(t, err, ErrAcquisition)
	assert.ErrorIs(t, err, parser.ErrNoReadableText)

	assert.Zero(t, h.model.calls)
	assert.Equal(t, Failed, res.State)
	assert.Empty(t, res.Summary)
	assert.Equal(t, []string{"idle->acquiring", "acquiring->failed"}, states(res.Trace))
	assert.Equal(t, []string{"acquiring/acquisition"}, h.metrics.failures)
	assert.Equal(t, []string{"failed"}, h.metrics.outcomes)

	spans := h.spans()
	assert.Equal(t, codes.Error, spans["pipeline.acquire"].Status().Code)
	assert.Equal(t, codes.Error, spans["pipeline.run"].Status().Code)
	_, extracted := spans["pipeline.extract"]
	assert.False(t, extracted)
}

func TestRunFailsAtExtracting(t *testing.T) {
	h := newHarness(t, "unused")
	_, err := h.pipe.Run(context.Background(), Request{
		Path: writeText(t, "dots.txt", "... !!! ???"), Sentences: 3, MaxWords: 40, MinWords: 5,
	})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Extracting, f.Stage)
	assert.Equal(t, KindEmptyDocument, f.Kind)
	assert.ErrorIs(t, err, extract.ErrEmptyDocument)
	assert.Zero(t, h.model.calls)
}

// Extraction succeeds but the model answers with blank text; the
// extracted sentences are not offered as a fallback summary.
func TestRunFailsAtRewriting(t *testing.T) {
	h := newHarness(t, "   \n ")
	res, err := h.pipe.Run(context.Background(), Request{
		Path: writeText(t, "report.txt", report), Sentences: 3, MaxWords: 40, MinWords: 5,
	})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Rewriting, f.Stage)
	assert.Equal(t, KindRewriting, f.Kind)
	assert.ErrorIs(t, err, ErrRewriting)
	assert.ErrorIs(t, err, rewrite.ErrEmptyOutput)

	assert.Equal(t, 1, h.model.calls)
	assert.Empty(t, res.Summary)
	assert.Nil(t, res.Extraction)
	assert.Equal(t, []string{
		"idle->acquiring", "acquiring->extracting", "extracting->rewriting", "rewriting->failed",
	}, states(res.Trace))
}

func TestRunRewriterError(t *testing.T) {
	h := newHarness(t, "")
	h.model.err = &llm.APIError{Provider: "test", StatusCode: 401, Body: "bad key"}
	_, err := h.pipe.Run(context.Background(), Request{
		Path: writeText(t, "report.txt", report), Sentences: 3, MaxWords: 40, MinWords: 5,
	})
	assert.ErrorIs(t, err, ErrRewriting)
	var apiErr *llm.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestRunCanceledBeforeStart(t *testing.T) {
	h := newHarness(t, "unused")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.pipe.Run(ctx, Request{Path: writeText(t, "report.txt", report), MaxWords: 40})
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Acquiring, f.Stage)
	assert.Equal(t, KindCanceled, f.Kind)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []string{"idle->failed"}, states(res.Trace))
	assert.Empty(t, h.metrics.stages)
}

// cancelingAcquirer cancels the run after reading the document, so the
// next stage sees a done context.
type cancelingAcquirer struct {
	inner  Acquirer
	cancel context.CancelFunc
}

func (c cancelingAcquirer) Acquire(ctx context.Context, path string) (*parser.Document, error) {
	doc, err := c.inner.Acquire(ctx, path)
	c.cancel()
	return doc, err
}

func TestRunCanceledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := &chatModel{reply: "unused"}
	p := New(
		cancelingAcquirer{inner: parser.NewAcquirer(parser.NewRegistry()), cancel: cancel},
		extract.New(extract.DefaultConfig()),
		rewrite.NewRewriter(&rewrite.Model{Provider: model}, rewrite.Config{}),
	)

	res, err := p.Run(ctx, Request{Path: writeText(t, "report.txt", report), MaxWords: 40})
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Extracting, f.Stage)
	assert.Equal(t, KindCanceled, f.Kind)
	assert.Equal(t, []string{"idle->acquiring", "acquiring->failed"}, states(res.Trace))
	assert.NotNil(t, res.Document)
	assert.Zero(t, model.calls)
}

// stubAcquirer returns a fixed document.
type stubAcquirer struct{ doc *parser.Document }

func (s stubAcquirer) Acquire(context.Context, string) (*parser.Document, error) {
	return s.doc, nil
}

// stubRewriter returns a fixed summary.
type stubRewriter struct{ out string }

func (s stubRewriter) Compress(context.Context, string, int, int) (string, error) {
	return s.out, nil
}

func TestRunBlankDocumentFailsAtAcquiring(t *testing.T) {
	for name, doc := range map[string]*parser.Document{
		"nil document":   nil,
		"blank document": {Text: "  \n ", Source: "scan.pdf"},
	} {
		t.Run(name, func(t *testing.T) {
			p := New(stubAcquirer{doc: doc}, extract.New(extract.DefaultConfig()), stubRewriter{out: "unused"})
			res, err := p.Run(context.Background(), Request{Path: "scan.pdf", MaxWords: 40})

			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, Acquiring, f.Stage)
			assert.Equal(t, KindAcquisition, f.Kind)
			assert.ErrorIs(t, err, ErrAcquisition)
			assert.ErrorIs(t, err, parser.ErrNoReadableText)
			assert.Equal(t, []string{"idle->acquiring", "acquiring->failed"}, states(res.Trace))
			assert.Nil(t, res.Document)
		})
	}
}

func TestRunBlankSummaryFailsAtRewriting(t *testing.T) {
	p := New(
		parser.NewAcquirer(parser.NewRegistry()),
		extract.New(extract.DefaultConfig()),
		stubRewriter{out: "   "},
	)
	res, err := p.Run(context.Background(), Request{Path: writeText(t, "report.txt", report), MaxWords: 40})

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Rewriting, f.Stage)
	assert.Equal(t, KindRewriting, f.Kind)
	assert.ErrorIs(t, err, ErrRewriting)
	assert.ErrorIs(t, err, rewrite.ErrEmptyOutput)
	assert.Equal(t, Failed, res.State)
	assert.Empty(t, res.Summary)
}

func TestRunConcurrent(t *testing.T) {
	h := newHarness(t, "Short summary.")
	path := writeText(t, "report.txt", report)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.pipe.Run(context.Background(), Request{Path: path, Sentences: 2, MaxWords: 20, MinWords: 1})
			errs[i] = err
			if res != nil {
				ids[i] = res.RunID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, id := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

func TestMachine(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := newMachine(func() time.Time { return at })

	assert.Error(t, m.advance(Extracting))
	require.NoError(t, m.advance(Acquiring))
	require.NoError(t, m.advance(Failed))
	assert.Error(t, m.advance(Extracting))
	assert.Error(t, m.advance(Failed))
	assert.Equal(t, []Transition{
		{From: Idle, To: Acquiring, At: at},
		{From: Acquiring, To: Failed, At: at},
	}, m.trace)
}

func TestNewFailureKinds(t *testing.T) {
	tests := []struct {
		stage State
		err   error
		kind  string
		is    error
	}{
		{Acquiring, parser.ErrUnsupportedFormat, KindAcquisition, ErrAcquisition},
		{Extracting, extract.ErrEmptyResult, KindEmptyResult, extract.ErrEmptyResult},
		{Extracting, errors.New("ranking sentences: boom"), KindExtraction, nil},
		{Rewriting, fmt.Errorf("call: %w", context.DeadlineExceeded), KindDeadline, context.DeadlineExceeded},
		{Rewriting, rewrite.ErrInvalidBounds, KindRewriting, ErrRewriting},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage)+"/"+tt.kind, func(t *testing.T) {
			f := newFailure(tt.stage, tt.err)
			assert.Equal(t, tt.kind, f.Kind)
			assert.ErrorIs(t, f, tt.err)
			if tt.is != nil {
				assert.ErrorIs(t, f, tt.is)
			}
			assert.Contains(t, f.Error(), string(tt.stage))
		})
	}
}
