package store

// schemaSQL is the base DDL. Later changes go in migrations.
const schemaSQL = `
-- One row per pipeline run, completed or failed
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL UNIQUE,
    source TEXT NOT NULL,
    format TEXT,
    method TEXT,
    content_hash TEXT,
    pages INTEGER DEFAULT 0,
    ocr_pages INTEGER DEFAULT 0,
    state TEXT NOT NULL,
    failed_stage TEXT,
    failure_kind TEXT,
    failure_reason TEXT,
    sentences_total INTEGER DEFAULT 0,
    sentences_selected INTEGER DEFAULT 0,
    iterations INTEGER DEFAULT 0,
    converged INTEGER DEFAULT 0,
    summary TEXT,
    summary_words INTEGER DEFAULT 0,
    model TEXT,
    trace JSON,
    stage_durations JSON,
    elapsed_ms INTEGER DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`
