package parser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/brunobiangulo/distill/llm"
)

const visionPrompt = `Transcribe all running text in this document as plain prose.
Keep the original wording and reading order. Skip page numbers, headers and footers.
Do not add commentary.`

// PDFVisionParser asks a vision model to transcribe a whole PDF. It is the
// last resort for scans that OCR could not read.
type PDFVisionParser struct {
	provider  llm.VisionProvider
	maxTokens int
}

func NewPDFVisionParser(provider llm.VisionProvider) *PDFVisionParser {
	return &PDFVisionParser{provider: provider, maxTokens: 4096}
}

func (p *PDFVisionParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFVisionParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading PDF for vision: %w", err)
	}

	resp, err := p.provider.ChatWithImages(ctx, llm.VisionChatRequest{
		Messages: []llm.VisionMessage{{
			Role: llm.RoleUser,
			Content: []llm.ContentPart{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &llm.ImageURL{
					URL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("vision extraction failed: %w", err)
	}

	return &ParseResult{
		Pages:  []Page{{Number: 1, Text: resp.Content, Method: MethodVision}},
		Method: MethodVision,
	}, nil
}
