package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser renders each sheet as one page with a sentence per row, so
// rows segment cleanly.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var pages []Page
	meta := map[string]string{}
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		var b strings.Builder
		for _, row := range rows {
			if line := rowSentence(row); line != "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(line)
			}
		}
		pages = append(pages, Page{Number: i + 1, Text: b.String(), Method: MethodText})
		meta["sheet_"+fmt.Sprint(i+1)] = sheet
	}

	return &ParseResult{Pages: pages, Method: MethodText, Metadata: meta}, nil
}

// rowSentence joins non-empty cells with commas and ends the row with a
// full stop unless it already ends a sentence.
func rowSentence(row []string) string {
	cells := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	if len(cells) == 0 {
		return ""
	}
	s := strings.Join(cells, ", ")
	if !strings.ContainsAny(s[len(s)-1:], ".!?") {
		s += "."
	}
	return s
}
