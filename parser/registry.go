package parser

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps lower-case file extensions, without the dot, to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in parsers. The PDF parser
// has no OCR or vision fallback; register a configured one to add them.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{
		NewPDFParser(nil, nil),
		&TextParser{},
		&DOCXParser{},
		&XLSXParser{},
		&PPTXParser{},
		&HTMLParser{},
	} {
		r.Add(p)
	}
	return r
}

// Add registers p for every format it supports.
func (r *Registry) Add(p Parser) {
	for _, f := range p.SupportedFormats() {
		r.parsers[f] = p
	}
}

// Register sets the parser for one format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[strings.ToLower(format)] = p
}

// Get returns the parser for format.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[strings.ToLower(strings.TrimPrefix(format, "."))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return p, nil
}

// Formats lists the registered formats in sorted order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
