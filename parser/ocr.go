package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Runner runs an external command. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("ocr: exec failed",
			"cmd", name, "args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err, "stderr", clip(errb.String(), 8<<10))
	} else {
		slog.Debug("ocr: exec ok",
			"cmd", name, "duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len())
	}
	return out.Bytes(), errb.Bytes(), err
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// OCRConfig configures rasterization and recognition.
type OCRConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Pdftoppm    string `json:"pdftoppm" yaml:"pdftoppm"`
	Tesseract   string `json:"tesseract" yaml:"tesseract"`
	Lang        string `json:"lang" yaml:"lang"`
	DPI         int    `json:"dpi" yaml:"dpi"`
	MaxPages    int    `json:"max_pages" yaml:"max_pages"` // 0 = all
	TessdataDir string `json:"tessdata_dir" yaml:"tessdata_dir"`
}

// DefaultOCRConfig uses poppler and tesseract from PATH.
func DefaultOCRConfig() OCRConfig {
	return OCRConfig{
		Enabled:   true,
		Pdftoppm:  "pdftoppm",
		Tesseract: "tesseract",
		Lang:      "eng",
		DPI:       300,
	}
}

// OCR rasterizes PDF pages with pdftoppm and recognizes them with
// tesseract.
type OCR struct {
	cfg    OCRConfig
	runner Runner
}

// NewOCR creates an OCR engine. A nil runner executes real commands.
func NewOCR(cfg OCRConfig, runner Runner) *OCR {
	def := DefaultOCRConfig()
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = def.Pdftoppm
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = def.Tesseract
	}
	if cfg.Lang == "" {
		cfg.Lang = def.Lang
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if runner == nil {
		runner = execRunner{}
	}
	return &OCR{cfg: cfg, runner: runner}
}

// MaxPages returns the page budget, 0 meaning unlimited.
func (o *OCR) MaxPages() int { return o.cfg.MaxPages }

// Page recognizes one 1-based page of a PDF.
func (o *OCR) Page(ctx context.Context, pdfPath string, n int) (string, error) {
	dir, err := os.MkdirTemp("", "distill-ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	num := strconv.Itoa(n)
	_, errb, err := o.runner.Run(ctx, o.cfg.Pdftoppm,
		"-f", num, "-l", num, "-r", strconv.Itoa(o.cfg.DPI), "-png", pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("rendering page %d: %w: %s", n, err, clip(string(errb), 512))
	}
	images, _ := filepath.Glob(prefix + "-*.png")
	if len(images) == 0 {
		return "", fmt.Errorf("rendering page %d: no image produced", n)
	}
	return o.recognize(ctx, images[0])
}

// All renders every page and recognizes each one. Used when the PDF
// cannot be opened for its text layer.
func (o *OCR) All(ctx context.Context, pdfPath string) ([]Page, error) {
	dir, err := os.MkdirTemp("", "distill-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(o.cfg.DPI), "-png"}
	if o.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(o.cfg.MaxPages))
	}
	args = append(args, pdfPath, prefix)
	if _, errb, err := o.runner.Run(ctx, o.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("rendering pages: %w: %s", err, clip(string(errb), 512))
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order.
	images, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(images)
	if len(images) == 0 {
		return nil, fmt.Errorf("rendering pages: no images produced")
	}

	pages := make([]Page, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := o.recognize(ctx, img)
		if err != nil {
			slog.Warn("ocr: page failed", "page", i+1, "error", err)
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text, Method: MethodOCR})
	}
	return pages, nil
}

func (o *OCR) recognize(ctx context.Context, image string) (string, error) {
	args := []string{image, "stdout", "-l", o.cfg.Lang}
	if o.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", o.cfg.TessdataDir)
	}
	out, errb, err := o.runner.Run(ctx, o.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w: %s", filepath.Base(image), err, clip(string(errb), 512))
	}
	return strings.TrimSpace(string(out)), nil
}
