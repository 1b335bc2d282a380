// Package rewrite compresses extracted sentences into a fluent summary
// with a generation model.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/brunobiangulo/distill/llm"
	"github.com/brunobiangulo/distill/metrics"
	"github.com/brunobiangulo/distill/resilience/circuitbreaker"
	"github.com/brunobiangulo/distill/resilience/retry"
)

var (
	// ErrEmptyInput is returned when there is nothing to compress.
	ErrEmptyInput = errors.New("rewrite: empty input")

	// ErrEmptyOutput is returned when the model answers with blank text.
	ErrEmptyOutput = errors.New("rewrite: model returned empty output")

	// ErrInvalidBounds is returned for a non-positive maximum or a minimum
	// above the maximum.
	ErrInvalidBounds = errors.New("rewrite: invalid length bounds")
)

// Config configures the model handle and the call policy around it.
type Config struct {
	LLM         llm.Config `json:"llm" yaml:"llm"`
	Temperature float64    `json:"temperature" yaml:"temperature"`
	Sample      bool       `json:"sample" yaml:"sample"` // greedy decoding unless set
	WarmUp      bool       `json:"warm_up" yaml:"warm_up"`

	RequestsPerMinute int                   `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited
	MaxInputChars     int                   `json:"max_input_chars" yaml:"max_input_chars"`         // 0 = no limit
	Retry             retry.Config          `json:"retry" yaml:"retry"`
	Breaker           circuitbreaker.Config `json:"breaker" yaml:"breaker"`
}

// DefaultConfig returns the default rewriting settings for a local Ollama
// model.
func DefaultConfig() Config {
	return Config{
		LLM:           llm.Config{Provider: "ollama", Model: "llama3.1:8b"},
		MaxInputChars: 12000,
		Retry:         retry.DefaultConfig(),
		Breaker:       circuitbreaker.DefaultConfig("rewrite-model"),
	}
}

// Rewriter calls the model with rate limiting, a circuit breaker and
// retries on transient errors.
type Rewriter struct {
	model         *Model
	limiter       *rate.Limiter
	breaker       *circuitbreaker.CircuitBreaker
	retry         retry.Config
	maxInputChars int
	metrics       metrics.Recorder
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithMetrics sets the recorder for output length measurements.
func WithMetrics(r metrics.Recorder) Option {
	return func(rw *Rewriter) { rw.metrics = r }
}

// NewRewriter creates a Rewriter over a loaded model.
func NewRewriter(model *Model, cfg Config, opts ...Option) *Rewriter {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = circuitbreaker.DefaultConfig("rewrite-model")
	}

	rw := &Rewriter{
		model:         model,
		limiter:       rate.NewLimiter(limit, 1),
		breaker:       circuitbreaker.New(cfg.Breaker),
		retry:         cfg.Retry,
		maxInputChars: cfg.MaxInputChars,
		metrics:       metrics.Nop{},
	}
	for _, o := range opts {
		o(rw)
	}
	return rw
}

// Compress rewrites text into a summary of roughly minWords to maxWords
// words. The bounds are passed to the model as a target; output outside
// them is still returned.
func (rw *Rewriter) Compress(ctx context.Context, text string, maxWords, minWords int) (string, error) {
	if maxWords <= 0 || minWords < 0 || minWords > maxWords {
		return "", fmt.Errorf("%w: max %d, min %d", ErrInvalidBounds, maxWords, minWords)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	if cut, truncated := truncate(text, rw.maxInputChars); truncated {
		slog.Warn("rewrite: input truncated",
			"original_chars", len(text), "truncated_chars", len(cut), "limit", rw.maxInputChars)
		text = cut
	}

	req := llm.ChatRequest{
		Model: rw.model.Name,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt(text, maxWords, minWords)},
		},
		Temperature: rw.model.Temperature,
		MaxTokens:   maxTokensFor(maxWords),
	}

	start := time.Now()
	var resp *llm.ChatResponse
	err := retry.WithBackoff(ctx, rw.retry, func() error {
		if err := rw.limiter.Wait(ctx); err != nil {
			return err
		}
		return rw.breaker.Execute(func() error {
			var err error
			resp, err = rw.model.Provider.Chat(ctx, req)
			return err
		})
	})
	if err != nil {
		return "", fmt.Errorf("rewrite model call: %w", err)
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", ErrEmptyOutput
	}

	words := wordCount(out)
	within := words >= minWords && words <= maxWords
	rw.metrics.RewriteOutput(words, within)
	if !within {
		slog.Warn("rewrite: output outside requested bounds",
			"words", words, "min_words", minWords, "max_words", maxWords)
	}

	slog.Info("rewrite: summary generated",
		"input_chars", len(text), "words", words,
		"prompt_tokens", resp.PromptTokens, "completion_tokens", resp.CompletionTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}
