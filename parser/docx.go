package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DOCXParser reads the paragraphs of word/document.xml in document order.
// Table rows become one sentence each.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	data, err := readZipEntry(&r.Reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	text, err := docxText(data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}
	return &ParseResult{
		Pages:  []Page{{Number: 1, Text: text, Method: MethodText}},
		Method: MethodText,
	}, nil
}

func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

func docxText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		lines  []string
		para   strings.Builder
		cell   strings.Builder
		row    []string
		inText bool
		inCell int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab", "br":
				para.WriteByte(' ')
			case "tr":
				row = row[:0]
			case "tc":
				inCell++
				cell.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.Join(strings.Fields(para.String()), " ")
				para.Reset()
				switch {
				case text == "":
				case inCell > 0:
					if cell.Len() > 0 {
						cell.WriteByte(' ')
					}
					cell.WriteString(text)
				default:
					lines = append(lines, text)
				}
			case "tc":
				row = append(row, cell.String())
				inCell--
			case "tr":
				if s := rowSentence(row); s != "" {
					lines = append(lines, s)
				}
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
