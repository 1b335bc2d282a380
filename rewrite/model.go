package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brunobiangulo/distill/llm"
)

// Model is the read-only handle to the generation model. It is built once
// per process and passed to every Rewriter.
type Model struct {
	Provider    llm.Provider
	Name        string
	Temperature float64 // 0 unless sampling is enabled
}

// Loader initializes a Model at most once. The zero value is ready to use.
type Loader struct {
	// New builds the provider. Nil means llm.NewProvider.
	New func(llm.Config) (llm.Provider, error)

	once  sync.Once
	model *Model
	err   error
}

// Load builds the model on the first call and returns the same handle and
// error on every later call, whatever cfg they pass.
func (l *Loader) Load(ctx context.Context, cfg Config) (*Model, error) {
	l.once.Do(func() {
		l.model, l.err = l.load(ctx, cfg)
	})
	return l.model, l.err
}

func (l *Loader) load(ctx context.Context, cfg Config) (*Model, error) {
	start := time.Now()
	newProvider := l.New
	if newProvider == nil {
		newProvider = llm.NewProvider
	}
	p, err := newProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("loading rewrite model: %w", err)
	}

	m := &Model{Provider: p, Name: cfg.LLM.Model}
	if cfg.Sample {
		m.Temperature = cfg.Temperature
	}

	if cfg.WarmUp {
		_, err := p.Chat(ctx, llm.ChatRequest{
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: "Reply with OK."}},
			MaxTokens: 4,
		})
		if err != nil {
			return nil, fmt.Errorf("warming up rewrite model %s: %w", cfg.LLM.Model, err)
		}
	}

	slog.Info("rewrite: model ready",
		"provider", cfg.LLM.Provider, "model", cfg.LLM.Model,
		"sampling", cfg.Sample, "warm_up", cfg.WarmUp,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return m, nil
}

var shared Loader

// Shared loads the process-wide model.
func Shared(ctx context.Context, cfg Config) (*Model, error) {
	return shared.Load(ctx, cfg)
}
