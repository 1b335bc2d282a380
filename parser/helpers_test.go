package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/brunobiangulo/distill/llm"
)

// writePDF writes a PDF with one Helvetica text line per page. An empty
// string gives a page without text.
func writePDF(t *testing.T, pages ...string) string {
	t.Helper()
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // pages, filled below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	kids := make([]string, len(pages))
	for i, text := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
		content := "q Q"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	return writeFile(t, "doc.pdf", b.Bytes())
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeZip writes an OOXML-style archive from name/content pairs.
func writeZip(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for n, content := range files {
		f, err := w.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return writeFile(t, name, buf.Bytes())
}

// fakeRunner imitates pdftoppm and tesseract. Rendered images are empty
// files named after their page; tesseract returns texts[page].
type fakeRunner struct {
	mu       sync.Mutex
	calls    [][]string
	texts    map[int]string
	numPages int // pages produced by a full render
	failTess bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		if args[0] == "-f" {
			return nil, nil, os.WriteFile(fmt.Sprintf("%s-%s.png", prefix, args[1]), nil, 0o644)
		}
		for i := 1; i <= f.numPages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%02d.png", prefix, i), nil, 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		if f.failTess {
			return nil, []byte("tesseract: not installed"), fmt.Errorf("exit status 1")
		}
		var page int
		base := strings.TrimSuffix(filepath.Base(args[0]), ".png")
		fmt.Sscanf(strings.TrimPrefix(base, "page-"), "%d", &page)
		return []byte(f.texts[page] + "\n"), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c[0] == name {
			n++
		}
	}
	return n
}

type fakeVision struct {
	text  string
	calls int
}

func (f *fakeVision) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: f.text}, nil
}

func (f *fakeVision) ChatWithImages(_ context.Context, req llm.VisionChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	return &llm.ChatResponse{Content: f.text}, nil
}
