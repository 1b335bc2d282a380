// Package store keeps an audit log of pipeline runs in SQLite. Runs never
// read it; it exists for operators and the HTTP API.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is a row in the runs table.
type Run struct {
	ID                int64     `json:"-"`
	RunID             string    `json:"run_id"`
	Source            string    `json:"source"`
	Format            string    `json:"format,omitempty"`
	Method            string    `json:"method,omitempty"`
	ContentHash       string    `json:"content_hash,omitempty"`
	Pages             int       `json:"pages"`
	OCRPages          int       `json:"ocr_pages"`
	State             string    `json:"state"`
	FailedStage       string    `json:"failed_stage,omitempty"`
	FailureKind       string    `json:"failure_kind,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	SentencesTotal    int       `json:"sentences_total"`
	SentencesSelected int       `json:"sentences_selected"`
	Iterations        int       `json:"iterations"`
	Converged         bool      `json:"converged"`
	Summary           string    `json:"summary,omitempty"`
	SummaryWords      int       `json:"summary_words"`
	Model             string    `json:"model,omitempty"`
	Trace             string    `json:"trace,omitempty"`           // JSON array
	StageDurations    string    `json:"stage_durations,omitempty"` // JSON object
	ElapsedMS         int64     `json:"elapsed_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

// Stats counts recorded runs by outcome.
type Stats struct {
	Runs   int `json:"runs"`
	Done   int `json:"done"`
	Failed int `json:"failed"`
}

// Store wraps the SQLite run history.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies pending
// migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashContent returns the hex SHA-256 of a document's text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// RecordRun inserts r. A zero CreatedAt is set to now.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, source, format, method, content_hash, pages, ocr_pages,
			state, failed_stage, failure_kind, failure_reason,
			sentences_total, sentences_selected, iterations, converged,
			summary, summary_words, model, trace, stage_durations, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.Source, r.Format, r.Method, r.ContentHash, r.Pages, r.OCRPages,
		r.State, r.FailedStage, r.FailureKind, r.FailureReason,
		r.SentencesTotal, r.SentencesSelected, r.Iterations, r.Converged,
		r.Summary, r.SummaryWords, r.Model, nullJSON(r.Trace), nullJSON(r.StageDurations),
		r.ElapsedMS, r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.RunID, err)
	}
	return nil
}

const runColumns = `id, run_id, source, format, method, content_hash, pages, ocr_pages,
	state, failed_stage, failure_kind, failure_reason,
	sentences_total, sentences_selected, iterations, converged,
	summary, summary_words, model, trace, stage_durations, elapsed_ms, created_at`

// GetRun returns the run with the given ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes runs created before the cutoff and returns how many
// were removed.
func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE created_at < ?",
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts runs by outcome.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
		{"SELECT COUNT(*) FROM runs WHERE state = 'done'", &stats.Done},
		{"SELECT COUNT(*) FROM runs WHERE state = 'failed'", &stats.Failed},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                                         Run
		format, method, hash, stage, kind, reason sql.NullString
		summary, model, trace, durations          sql.NullString
		created                                   string
	)
	if err := sc.Scan(&r.ID, &r.RunID, &r.Source, &format, &method, &hash, &r.Pages, &r.OCRPages,
		&r.State, &stage, &kind, &reason,
		&r.SentencesTotal, &r.SentencesSelected, &r.Iterations, &r.Converged,
		&summary, &r.SummaryWords, &model, &trace, &durations, &r.ElapsedMS, &created); err != nil {
		return nil, err
	}
	r.Format, r.Method, r.ContentHash = format.String, method.String, hash.String
	r.FailedStage, r.FailureKind, r.FailureReason = stage.String, kind.String, reason.String
	r.Summary, r.Model = summary.String, model.String
	r.Trace, r.StageDurations = trace.String, durations.String

	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	r.CreatedAt = t
	return &r, nil
}

func nullJSON(s string) any {
	if s == "" {
		return nil
	}
	return s
}
