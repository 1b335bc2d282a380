package parser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/distill/llm"
)

// Config selects the fallbacks available to the acquirer.
type Config struct {
	OCR    OCRConfig    `json:"ocr" yaml:"ocr"`
	Remote RemoteConfig `json:"remote" yaml:"remote"`
}

// DefaultConfig enables OCR and leaves the remote parser off.
func DefaultConfig() Config {
	return Config{OCR: DefaultOCRConfig()}
}

// Document is the acquired text of one file.
type Document struct {
	Text     string            `json:"-"`
	Source   string            `json:"source"`
	Format   string            `json:"format"`
	Method   string            `json:"method"`
	Pages    int               `json:"pages"`
	OCRPages int               `json:"ocr_pages"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Acquirer resolves a parser by file extension and returns the document
// text.
type Acquirer struct {
	registry *Registry
}

// NewAcquirer wraps a registry.
func NewAcquirer(reg *Registry) *Acquirer {
	return &Acquirer{registry: reg}
}

// New builds an acquirer from configuration. vision may be nil.
func New(cfg Config, vision llm.VisionProvider) *Acquirer {
	reg := NewRegistry()
	var ocr *OCR
	if cfg.OCR.Enabled {
		ocr = NewOCR(cfg.OCR, nil)
	}
	reg.Add(NewPDFParser(ocr, vision))
	if cfg.Remote.APIKey != "" {
		reg.Add(NewRemoteParser(cfg.Remote))
	}
	return NewAcquirer(reg)
}

// Registry returns the underlying parser registry.
func (a *Acquirer) Registry() *Registry { return a.registry }

// Acquire reads path and returns its text. Blank text from every method
// is ErrNoReadableText.
func (a *Acquirer) Acquire(ctx context.Context, path string) (*Document, error) {
	start := time.Now()
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	p, err := a.registry.Get(format)
	if err != nil {
		return nil, err
	}

	res, err := p.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoReadableText, filepath.Base(path))
	}

	doc := &Document{
		Text:     text,
		Source:   path,
		Format:   format,
		Method:   res.Method,
		Pages:    len(res.Pages),
		Metadata: res.Metadata,
	}
	for _, pg := range res.Pages {
		if pg.Method == MethodOCR && strings.TrimSpace(pg.Text) != "" {
			doc.OCRPages++
		}
	}

	slog.Info("acquire: document read",
		"path", path, "format", format, "method", doc.Method,
		"pages", doc.Pages, "ocr_pages", doc.OCRPages, "chars", len(text),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return doc, nil
}
