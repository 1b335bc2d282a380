package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/distill"
	"github.com/brunobiangulo/distill/extract"
	"github.com/brunobiangulo/distill/pipeline"
)

const maxSentences = 1000

type handler struct {
	engine distill.Engine
}

func newHandler(e distill.Engine) *handler {
	return &handler{engine: e}
}

type summarizeRequest struct {
	Path      string `json:"path"`
	Length    string `json:"length,omitempty"` // short, medium, long
	MaxLength int    `json:"max_length,omitempty"`
	MinLength int    `json:"min_length,omitempty"`
	Sentences int    `json:"sentences,omitempty"`
}

func (req summarizeRequest) options() []distill.Option {
	var opts []distill.Option
	if req.Length != "" {
		opts = append(opts, distill.WithLengthPreset(req.Length))
	}
	if req.MaxLength > 0 {
		opts = append(opts, distill.WithLength(req.MaxLength, req.MinLength))
	}
	if req.Sentences != 0 {
		opts = append(opts, distill.WithSentenceCount(sentenceCount(req.Sentences)))
	}
	return opts
}

// sentenceCount clamps a requested sentence count to [1, maxSentences].
// Zero means unset and is left to the engine default.
func sentenceCount(n int) int {
	if n == 0 {
		return 0
	}
	return min(max(n, 1), maxSentences)
}

// POST /summarize
// Accepts a multipart file upload or JSON with a file path.
func (h *handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			h.summarizeUpload(ctx, w, r, file, filepath.Base(header.Filename))
			return
		}
	}

	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	summary, err := h.engine.Summarize(ctx, absPath, req.options()...)
	if err != nil {
		writeSummarizeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// summarizeUpload stores the upload in a temporary file that keeps the
// original extension and removes it once the run is over.
func (h *handler) summarizeUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, file io.Reader, name string) {
	req := summarizeRequest{Length: r.FormValue("length")}
	if v := r.FormValue("sentences"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "sentences must be an integer")
			return
		}
		req.Sentences = n
	}

	dst, err := os.CreateTemp("", "distill-*"+filepath.Ext(name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return
	}
	tmpPath := dst.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return
	}
	dst.Close()

	summary, err := h.engine.Summarize(ctx, tmpPath, req.options()...)
	if err != nil {
		writeSummarizeError(w, err)
		return
	}
	summary.Source = name
	writeJSON(w, http.StatusOK, summary)
}

// POST /extract
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		Sentences int    `json:"sentences,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.engine.Extract(r.Context(), req.Text, sentenceCount(req.Sentences))
	if err != nil {
		if errors.Is(err, extract.ErrEmptyDocument) || errors.Is(err, extract.ErrEmptyResult) {
			writeSummarizeError(w, &pipeline.Failure{
				Stage:  pipeline.Extracting,
				Kind:   extractKind(err),
				Reason: err.Error(),
				Err:    err,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "extraction failed")
		slog.Error("extract error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func extractKind(err error) string {
	if errors.Is(err, extract.ErrEmptyResult) {
		return pipeline.KindEmptyResult
	}
	return pipeline.KindEmptyDocument
}

// GET /runs
func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := h.engine.Runs(r.Context(), limit)
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GET /runs/{id}
func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// failureStatus maps a failed stage to an HTTP status: the document is at
// fault for acquisition and extraction, the model backend for rewriting.
func failureStatus(f *pipeline.Failure) int {
	if f.Stage == pipeline.Rewriting {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func writeSummarizeError(w http.ResponseWriter, err error) {
	var f *pipeline.Failure
	switch {
	case errors.As(err, &f):
		writeJSON(w, failureStatus(f), map[string]string{
			"stage": string(f.Stage),
			"kind":  f.Kind,
			"error": f.Reason,
		})
	case errors.Is(err, distill.ErrInvalidLength):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "summarization failed")
		slog.Error("summarize error", "error", err)
	}
}

func writeHistoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, distill.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case errors.Is(err, distill.ErrHistoryDisabled):
		writeError(w, http.StatusNotFound, "run history is disabled")
	default:
		writeError(w, http.StatusInternalServerError, "failed to read run history")
		slog.Error("history error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
