package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// HTMLParser extracts the main article text of a saved web page.
type HTMLParser struct{}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HTML: %w", err)
	}
	abs, _ := filepath.Abs(path)
	article, err := readability.FromReader(bytes.NewReader(data), &url.URL{Scheme: "file", Path: abs})
	if err != nil {
		return nil, fmt.Errorf("extracting article: %w", err)
	}

	meta := map[string]string{}
	if article.Title != "" {
		meta["title"] = article.Title
	}
	if article.Byline != "" {
		meta["byline"] = article.Byline
	}
	return &ParseResult{
		Pages:    []Page{{Number: 1, Text: strings.TrimSpace(article.TextContent), Method: MethodText}},
		Method:   MethodText,
		Metadata: meta,
	}, nil
}
