// Package registry persists validation reports in SQLite.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/YARL-project/YARL/internal/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY,
	path          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	digest        TEXT NOT NULL,
	valid         INTEGER NOT NULL,
	errors_json   TEXT NOT NULL,
	warnings_json TEXT NOT NULL,
	checked_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS reports_digest ON reports(digest);
CREATE INDEX IF NOT EXISTS reports_checked_at ON reports(checked_at);
`

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var ErrNotFound = errors.New("report not found")

// Store keeps one row per validation run.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
// ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores r, assigning a fresh id when r has none, and returns the stored report.
func (s *Store) Save(ctx context.Context, r document.Report) (document.Report, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	errsJSON, err := json.Marshal(nonNil(r.Errors))
	if err != nil {
		return document.Report{}, fmt.Errorf("marshal errors: %w", err)
	}
	warnJSON, err := json.Marshal(nonNil(r.Warnings))
	if err != nil {
		return document.Report{}, fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, path, kind, digest, valid, errors_json, warnings_json, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Path, string(r.Kind), r.Digest, r.Valid, string(errsJSON), string(warnJSON),
		r.CheckedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return document.Report{}, fmt.Errorf("insert report: %w", err)
	}
	return r, nil
}

func (s *Store) Get(ctx context.Context, id string) (document.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, kind, digest, valid, errors_json, warnings_json, checked_at
		 FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Filter narrows List. Zero values match everything; Limit 0 means 100.
type Filter struct {
	Kind      document.Kind
	Digest    string
	OnlyValid *bool
	Limit     int
}

// List returns matching reports, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]document.Report, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Digest != "" {
		where = append(where, "digest = ?")
		args = append(args, f.Digest)
	}
	if f.OnlyValid != nil {
		where = append(where, "valid = ?")
		args = append(args, *f.OnlyValid)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, path, kind, digest, valid, errors_json, warnings_json, checked_at FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY checked_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []document.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (document.Report, error) {
	var (
		r                 document.Report
		kind, errs, warns string
		checkedAt         string
	)
	if err := row.Scan(&r.ID, &r.Path, &kind, &r.Digest, &r.Valid, &errs, &warns, &checkedAt); err != nil {
		return document.Report{}, err
	}
	r.Kind = document.Kind(kind)
	if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
		return document.Report{}, fmt.Errorf("decode errors: %w", err)
	}
	if err := json.Unmarshal([]byte(warns), &r.Warnings); err != nil {
		return document.Report{}, fmt.Errorf("decode warnings: %w", err)
	}
	t, err := time.Parse(timeFormat, checkedAt)
	if err != nil {
		return document.Report{}, fmt.Errorf("parse checked_at: %w", err)
	}
	r.CheckedAt = t
	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	if len(r.Warnings) == 0 {
		r.Warnings = nil
	}
	return r, nil
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
