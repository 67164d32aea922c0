// Package history keeps a SQLite record of classified steps so operators can
// see what ran on a host and how it ended.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/buildfarm/stepwatch/internal/outcome"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("step record not found")

// Record is one finished step.
type Record struct {
	ID       uuid.UUID    `json:"id" yaml:"id"`
	Step     string       `json:"step" yaml:"step"`
	Code     outcome.Code `json:"code" yaml:"code"`
	ExitCode int          `json:"exit_code" yaml:"exit_code"`
	Excerpt  string       `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	LogPath  string       `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	Started  time.Time    `json:"started" yaml:"started"`
	Finished time.Time    `json:"finished" yaml:"finished"`
}

// Duration is how long the step ran.
func (r Record) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Store is the SQLite-backed history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and a
	// single writer avoids SQLITE_BUSY between concurrent steps.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS steps (
		id TEXT PRIMARY KEY,
		step TEXT NOT NULL,
		code TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		excerpt TEXT NOT NULL,
		log_path TEXT NOT NULL,
		started INTEGER NOT NULL,
		finished INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_steps_finished ON steps(finished);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores r. A zero ID is replaced by a fresh one, which is returned.
func (s *Store) Record(ctx context.Context, r Record) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (id, step, code, exit_code, excerpt, log_path, started, finished)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Step, string(r.Code), r.ExitCode, r.Excerpt, r.LogPath,
		r.Started.UnixNano(), r.Finished.UnixNano(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert step: %w", err)
	}
	return r.ID, nil
}

const selectColumns = `SELECT id, step, code, exit_code, excerpt, log_path, started, finished FROM steps`

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY finished DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Get returns the record with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id.String())
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return r, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Record, error) {
	var (
		r                 Record
		id, code          string
		started, finished int64
	)
	if err := row.Scan(&id, &r.Step, &code, &r.ExitCode, &r.Excerpt, &r.LogPath, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan step: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("step id %q: %w", id, err)
	}
	r.ID = parsed
	r.Code = outcome.Code(code)
	r.Started = time.Unix(0, started)
	r.Finished = time.Unix(0, finished)
	return r, nil
}
