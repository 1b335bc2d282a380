// Package parser acquires plain text from document files. PDFs are read
// page by page from the text layer, with OCR and vision fallbacks for
// pages that have none.
package parser

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoReadableText is returned when every acquisition path produced
	// blank text.
	ErrNoReadableText = errors.New("no readable text found in document")

	// ErrUnsupportedFormat is returned for a file extension with no parser.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Acquisition methods.
const (
	MethodText   = "text"   // embedded text layer or plain file
	MethodOCR    = "ocr"    // rasterized and recognized
	MethodVision = "vision" // transcribed by a vision model
	MethodRemote = "remote" // converted by a remote parsing service
	MethodMixed  = "mixed"  // pages came from more than one method
)

// Page is the text of one page, slide or sheet.
type Page struct {
	Number int    `json:"number"` // 1-based
	Text   string `json:"text"`
	Method string `json:"method"`
}

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Pages    []Page
	Method   string
	Metadata map[string]string
}

// Text joins the non-blank pages with newlines.
func (r *ParseResult) Text() string {
	parts := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// methodOf summarizes the methods of the non-blank pages.
func methodOf(pages []Page) string {
	method := ""
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		switch method {
		case "":
			method = p.Method
		case p.Method:
		default:
			return MethodMixed
		}
	}
	return method
}
