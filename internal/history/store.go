// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists lookup runs and PDF download outcomes.
// Implements: prd003-history (R1-R4);
//
//	docs/ARCHITECTURE § History.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/citation-engine/pkg/types"
)

const dbFile = "citation-engine.db"

// Run is one recorded lookup invocation.
type Run struct {
	ID                 string           `json:"id" yaml:"id"`
	CreatedAt          time.Time        `json:"created_at" yaml:"created_at"`
	Title              string           `json:"title" yaml:"title"`
	Author             string           `json:"author,omitempty" yaml:"author,omitempty"`
	Year               string           `json:"year,omitempty" yaml:"year,omitempty"`
	SourceMode         types.SourceMode `json:"source_mode" yaml:"source_mode"`
	DataSource         types.Source     `json:"data_source,omitempty" yaml:"data_source,omitempty"`
	CitationsFound     int              `json:"citations_found" yaml:"citations_found"`
	CitationsAvailable int              `json:"citations_available" yaml:"citations_available"`
	MaxResults         int              `json:"max_results" yaml:"max_results"`
	OutputPath         string           `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// Download is one recorded PDF download attempt, keyed by DOI when one
// was resolved, otherwise by article title.
type Download struct {
	Key        string    `json:"key" yaml:"key"`
	Title      string    `json:"title" yaml:"title"`
	DOI        string    `json:"doi,omitempty" yaml:"doi,omitempty"`
	PDFURL     string    `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
	Path       string    `json:"path,omitempty" yaml:"path,omitempty"`
	Downloaded bool      `json:"downloaded" yaml:"downloaded"`
	FailReason string    `json:"fail_reason,omitempty" yaml:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Store manages the history SQLite database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
}

// NewStore opens or creates the history database at dir/citation-engine.db.
// It creates the schema if it does not exist (R1.1).
func NewStore(cfg types.HistoryConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:         db,
		dir:        cfg.Dir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			title TEXT NOT NULL,
			author TEXT,
			year TEXT,
			source_mode TEXT,
			data_source TEXT,
			citations_found INTEGER,
			citations_available INTEGER,
			max_results INTEGER,
			output_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS downloads (
			key TEXT PRIMARY KEY,
			title TEXT,
			doi TEXT,
			pdf_url TEXT,
			path TEXT,
			downloaded INTEGER NOT NULL DEFAULT 0,
			fail_reason TEXT,
			created_at TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return nil
}

// RecordRun inserts one lookup run. An empty ID or zero timestamp is
// filled in before the insert (R1.2).
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, title, author, year, source_mode, data_source,
			citations_found, citations_available, max_results, output_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(time.RFC3339Nano), run.Title, run.Author, run.Year,
		string(run.SourceMode), string(run.DataSource),
		run.CitationsFound, run.CitationsAvailable, run.MaxResults, run.OutputPath,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// ListOptions narrows a run listing.
type ListOptions struct {
	// TitleContains filters runs whose query title contains the
	// substring, matched case-insensitively.
	TitleContains string

	// Limit caps the listing. Zero uses the store default (R2.3).
	Limit int
}

// ListRuns returns recorded runs, newest first (R2.1, R2.2).
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT id, created_at, title, author, year, source_mode, data_source,
			citations_found, citations_available, max_results, output_path
		FROM runs
		WHERE 1=1`)

	if opts.TitleContains != "" {
		qb.WriteString(` AND title LIKE ?`)
		args = append(args, "%"+opts.TitleContains+"%")
	}

	qb.WriteString(` ORDER BY created_at DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			createdAt string
			mode      string
			source    string
		)
		if err := rows.Scan(
			&run.ID, &createdAt, &run.Title, &run.Author, &run.Year,
			&mode, &source, &run.CitationsFound, &run.CitationsAvailable,
			&run.MaxResults, &run.OutputPath,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		run.SourceMode = types.SourceMode(mode)
		run.DataSource = types.Source(source)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RecordDownload upserts one download attempt (R3.1). A rerun of the
// same article replaces the previous record.
func (s *Store) RecordDownload(ctx context.Context, dl Download) error {
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	downloaded := 0
	if dl.Downloaded {
		downloaded = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (key, title, doi, pdf_url, path, downloaded, fail_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			title=excluded.title, doi=excluded.doi, pdf_url=excluded.pdf_url,
			path=excluded.path, downloaded=excluded.downloaded,
			fail_reason=excluded.fail_reason, created_at=excluded.created_at`,
		dl.Key, dl.Title, dl.DOI, dl.PDFURL, dl.Path, downloaded, dl.FailReason,
		dl.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting download: %w", err)
	}
	return nil
}

// IsDownloaded reports whether key has a successful download on record,
// so reruns can skip it (R3.3).
func (s *Store) IsDownloaded(ctx context.Context, key string) (bool, error) {
	var downloaded int
	err := s.db.QueryRowContext(ctx,
		`SELECT downloaded FROM downloads WHERE key = ?`, key,
	).Scan(&downloaded)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying download log: %w", err)
	}
	return downloaded == 1, nil
}

// ListDownloads returns recorded download attempts, newest first (R3.4).
func (s *Store) ListDownloads(ctx context.Context, limit int) ([]Download, error) {
	if limit <= 0 {
		limit = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, title, doi, pdf_url, path, downloaded, fail_reason, created_at
		FROM downloads
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying downloads: %w", err)
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		var (
			dl         Download
			downloaded int
			createdAt  string
		)
		if err := rows.Scan(
			&dl.Key, &dl.Title, &dl.DOI, &dl.PDFURL, &dl.Path,
			&downloaded, &dl.FailReason, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning download: %w", err)
		}

		dl.Downloaded = downloaded == 1
		dl.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		downloads = append(downloads, dl)
	}

	return downloads, rows.Err()
}
