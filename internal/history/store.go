package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// Store records runs in SQLite.
type Store struct {
	db *sql.DB
}

var _ engine.Observer = (*Store)(nil)

// Run is a stored run row.
type Run struct {
	ID         string    `json:"id"`
	Started    time.Time `json:"started_at"`
	Finished   time.Time `json:"finished_at"`
	Entries    int       `json:"entries"`
	Signal     string    `json:"signal"`
	Message    string    `json:"message,omitempty"`
	Dispatched int       `json:"dispatched"`
}

// Transition is a stored status change.
type Transition struct {
	Seq           int64     `json:"seq"`
	RunID         string    `json:"run_id"`
	NodeID        string    `json:"node_id"`
	Kind          string    `json:"kind"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	PayloadDigest string    `json:"payload_digest"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) RunStarted(ctx context.Context, run engine.RunInfo) {
	_, err := s.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO runs (id, started_at, entries) VALUES (?, ?, ?)`,
		run.ID, run.Started.UnixNano(), run.Entries)
	logFailure(ctx, "record run start", err)
}

func (s *Store) NodeTransition(ctx context.Context, t engine.Transition) {
	_, err := s.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO transitions (run_id, node_id, kind, from_status, to_status, payload_digest, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.NodeID, string(t.Kind), t.From.String(), t.To.String(), t.PayloadDigest, t.Error, t.At.UnixNano())
	logFailure(ctx, "record node transition", err)
}

func (s *Store) RunFinished(ctx context.Context, run engine.RunInfo, out engine.Outcome) {
	// The row is written here too so a run whose start failed to record
	// still leaves a trace.
	_, err := s.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO runs (id, started_at, entries, finished_at, signal, message, dispatched)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   entries = excluded.entries,
		   finished_at = excluded.finished_at,
		   signal = excluded.signal,
		   message = excluded.message,
		   dispatched = excluded.dispatched`,
		run.ID, run.Started.UnixNano(), run.Entries, out.Finished.UnixNano(), out.Signal.String(), out.Message, out.Dispatched)
	logFailure(ctx, "record run finish", err)
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, entries, signal, message, dispatched
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			signal   sql.NullString
			message  sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Entries, &signal, &message, &r.Dispatched); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.Unix(0, started)
		if finished.Valid {
			r.Finished = time.Unix(0, finished.Int64)
		}
		r.Signal = signal.String
		r.Message = message.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrRunNotFound is returned by Run for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// Run returns one run by id.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
		signal   sql.NullString
		message  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, entries, signal, message, dispatched FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &started, &finished, &r.Entries, &signal, &message, &r.Dispatched)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	r.Started = time.Unix(0, started)
	if finished.Valid {
		r.Finished = time.Unix(0, finished.Int64)
	}
	r.Signal = signal.String
	r.Message = message.String
	return r, nil
}

// Transitions returns the transitions of one run in the order they happened.
func (s *Store) Transitions(ctx context.Context, runID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, run_id, node_id, kind, from_status, to_status, payload_digest, error, at
		 FROM transitions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t  Transition
			at int64
		)
		if err := rows.Scan(&t.Seq, &t.RunID, &t.NodeID, &t.Kind, &t.From, &t.To, &t.PayloadDigest, &t.Error, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.At = time.Unix(0, at)
		out = append(out, t)
	}
	return out, rows.Err()
}

func logFailure(ctx context.Context, what string, err error) {
	if err == nil {
		return
	}
	ctxlog.FromContext(ctx).Error("Failed to write run history.", "op", what, "error", err)
}
