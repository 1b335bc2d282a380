package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/distill/llm"
)

// PDFParser reads the text layer of each page. Blank pages go to OCR when
// it is configured, and a document that is still blank goes to the vision
// model when one is configured.
type PDFParser struct {
	ocr    *OCR
	vision *PDFVisionParser
}

// NewPDFParser creates a PDF parser. Either fallback may be nil.
func NewPDFParser(ocr *OCR, vision llm.VisionProvider) *PDFParser {
	p := &PDFParser{ocr: ocr}
	if vision != nil {
		p.vision = NewPDFVisionParser(vision)
	}
	return p
}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	start := time.Now()
	pages, err := readTextLayer(path)
	if err != nil {
		if p.ocr == nil {
			return nil, err
		}
		slog.Warn("pdf: text layer unreadable, using OCR", "path", path, "error", err)
		pages, err = p.ocr.All(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("ocr fallback: %w", err)
		}
	} else if p.ocr != nil {
		if err := p.fillBlankPages(ctx, path, pages); err != nil {
			return nil, err
		}
	}

	res := &ParseResult{Pages: pages, Method: methodOf(pages)}
	if strings.TrimSpace(res.Text()) == "" && p.vision != nil {
		slog.Info("pdf: no text from text layer or OCR, trying vision model", "path", path)
		vres, err := p.vision.Parse(ctx, path)
		if err != nil {
			return nil, err
		}
		res = vres
	}

	res.Metadata = map[string]string{"page_count": fmt.Sprint(len(res.Pages))}
	slog.Info("pdf: parsed", "path", path, "pages", len(res.Pages), "method", res.Method,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (p *PDFParser) fillBlankPages(ctx context.Context, path string, pages []Page) error {
	done := 0
	for i := range pages {
		if strings.TrimSpace(pages[i].Text) != "" {
			continue
		}
		if limit := p.ocr.MaxPages(); limit > 0 && done >= limit {
			slog.Warn("pdf: OCR page budget reached", "path", path, "max_pages", limit)
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := p.ocr.Page(ctx, path, pages[i].Number)
		done++
		if err != nil {
			slog.Warn("pdf: OCR failed for page", "page", pages[i].Number, "error", err)
			continue
		}
		pages[i].Text = text
		pages[i].Method = MethodOCR
	}
	return nil
}

// readTextLayer extracts plain text per page. The pdf package panics on
// some malformed files; that is reported as an error.
func readTextLayer(path string) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("reading PDF %s: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	n := reader.NumPage()
	pages = make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		page := Page{Number: i, Method: MethodText}
		pg := reader.Page(i)
		if !pg.V.IsNull() {
			if text, err := pg.GetPlainText(nil); err == nil {
				page.Text = strings.TrimSpace(text)
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}
