package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFTextLayer(t *testing.T) {
	path := writePDF(t, "The first page has text.", "The second page too.")
	res, err := NewPDFParser(nil, nil).Parse(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, res.Pages, 2)
	assert.Contains(t, res.Pages[0].Text, "first page")
	assert.Contains(t, res.Pages[1].Text, "second page")
	assert.Equal(t, MethodText, res.Method)
	assert.Equal(t, "2", res.Metadata["page_count"])
}

func TestPDFBlankPageUsesOCR(t *testing.T) {
	path := writePDF(t, "Printed text.", "")
	runner := &fakeRunner{texts: map[int]string{2: "Scanned words."}}
	res, err := NewPDFParser(NewOCR(DefaultOCRConfig(), runner), nil).Parse(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, res.Pages, 2)
	assert.Equal(t, MethodText, res.Pages[0].Method)
	assert.Equal(t, MethodOCR, res.Pages[1].Method)
	assert.Equal(t, "Scanned words.", res.Pages[1].Text)
	assert.Equal(t, MethodMixed, res.Method)

	assert.Equal(t, 1, runner.count("pdftoppm"))
	assert.Equal(t, []string{"pdftoppm", "-f", "2", "-l", "2", "-r", "300", "-png", path}, runner.calls[0][:9])
	assert.Equal(t, []string{"-l", "eng"}, runner.calls[1][3:5])
}

func TestPDFOCRPageBudget(t *testing.T) {
	path := writePDF(t, "", "", "")
	runner := &fakeRunner{texts: map[int]string{1: "Only this one."}}
	cfg := DefaultOCRConfig()
	cfg.MaxPages = 1
	res, err := NewPDFParser(NewOCR(cfg, runner), nil).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.count("tesseract"))
	assert.Equal(t, "Only this one.", res.Text())
}

func TestPDFOCRFailureLeavesPageBlank(t *testing.T) {
	path := writePDF(t, "Kept text.", "")
	runner := &fakeRunner{failTess: true}
	res, err := NewPDFParser(NewOCR(DefaultOCRConfig(), runner), nil).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Kept text.", strings.TrimSpace(res.Text()))
	assert.Equal(t, MethodText, res.Method)
}

func TestPDFUnreadableUsesFullOCR(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("this is not a pdf"))
	runner := &fakeRunner{numPages: 2, texts: map[int]string{1: "Page one.", 2: "Page two."}}
	res, err := NewPDFParser(NewOCR(DefaultOCRConfig(), runner), nil).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Page one.\nPage two.", res.Text())
	assert.Equal(t, MethodOCR, res.Method)
}

func TestPDFUnreadableWithoutOCR(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("garbage"))
	_, err := NewPDFParser(nil, nil).Parse(context.Background(), path)
	assert.Error(t, err)
}

func TestPDFVisionFallback(t *testing.T) {
	path := writePDF(t, "")
	runner := &fakeRunner{texts: map[int]string{}}
	vision := &fakeVision{text: "Transcribed by the model."}
	res, err := NewPDFParser(NewOCR(DefaultOCRConfig(), runner), vision).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, vision.calls)
	assert.Equal(t, MethodVision, res.Method)
	assert.Equal(t, "Transcribed by the model.", res.Text())
}

func TestPDFVisionNotCalledWhenTextFound(t *testing.T) {
	path := writePDF(t, "Readable.")
	vision := &fakeVision{text: "unused"}
	_, err := NewPDFParser(nil, vision).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, vision.calls)
}

func TestPDFOCRCanceled(t *testing.T) {
	path := writePDF(t, "", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPDFParser(NewOCR(DefaultOCRConfig(), &fakeRunner{}), nil).Parse(ctx, path)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}
