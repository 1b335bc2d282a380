//go:build cgo

package distill

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeRecordsRuns(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")
	e, _ := newTestEngine(t, cfg, "The valley flooded.")
	ctx := context.Background()

	ok, err := e.Summarize(ctx, writeDoc(t, "report.txt", report), WithSentenceCount(3))
	require.NoError(t, err)
	_, err = e.Summarize(ctx, writeDoc(t, "blank.txt", " "))
	require.Error(t, err)

	runs, err := e.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	got, err := e.Run(ctx, ok.RunID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.State)
	assert.Equal(t, "The valley flooded.", got.Summary)
	assert.Equal(t, 3, got.SentencesSelected)
	assert.Equal(t, 5, got.SentencesTotal)
	assert.Equal(t, "stub", got.Model)
	assert.NotEmpty(t, got.ContentHash)

	var trace []map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Trace), &trace))
	assert.Len(t, trace, 4)

	var failed int
	for _, r := range runs {
		if r.State == "failed" {
			failed++
			assert.Equal(t, "acquiring", r.FailedStage)
			assert.Equal(t, "acquisition", r.FailureKind)
			assert.Empty(t, r.Summary)
		}
	}
	assert.Equal(t, 1, failed)

	_, err = e.Run(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
