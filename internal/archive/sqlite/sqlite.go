// Package sqlite implements [archive.Store] on an embedded SQLite database
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/MrWong99/mockflow/internal/archive"
)

// Schema is the SQL DDL for the interviews table. Collections are stored as
// JSON text and timestamps as Unix milliseconds so ordering stays numeric.
const Schema = `
CREATE TABLE IF NOT EXISTS interviews (
    id                  TEXT PRIMARY KEY,
    candidate_name      TEXT NOT NULL DEFAULT '',
    role                TEXT NOT NULL DEFAULT '',
    experience_level    TEXT NOT NULL DEFAULT '',
    has_resume          INTEGER NOT NULL DEFAULT 0,
    has_job_description INTEGER NOT NULL DEFAULT 0,
    final_stage         TEXT NOT NULL,
    ended_by            TEXT NOT NULL DEFAULT '',
    skipped_stages      TEXT NOT NULL DEFAULT '[]',
    questions_per_stage TEXT NOT NULL DEFAULT '{}',
    questions           TEXT NOT NULL DEFAULT '[]',
    key_points          TEXT NOT NULL DEFAULT '[]',
    transition_count    INTEGER NOT NULL DEFAULT 0,
    forced_transitions  INTEGER NOT NULL DEFAULT 0,
    transcript          TEXT NOT NULL DEFAULT '[]',
    feedback            TEXT NOT NULL DEFAULT '',
    started_at          INTEGER NOT NULL,
    ended_at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interviews_ended_at ON interviews(ended_at DESC);
`

// Store is an [archive.Store] backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ archive.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path, applies
// [Schema] and returns the store. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("archive/sqlite: open: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive/sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive/sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("archive/sqlite: close: %w", err)
	}
	return nil
}

// Save implements [archive.Store].
func (s *Store) Save(ctx context.Context, r archive.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	cols, err := r.EncodeColumns()
	if err != nil {
		return err
	}

	const query = `
		INSERT OR REPLACE INTO interviews (
			id, candidate_name, role, experience_level, has_resume, has_job_description,
			final_stage, ended_by, skipped_stages, questions_per_stage, questions, key_points,
			transition_count, forced_transitions, transcript, feedback, started_at, ended_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.CandidateName, r.Role, r.ExperienceLevel, r.HasResume, r.HasJobDescription,
		r.FinalStage, r.EndedBy, string(cols.SkippedStages), string(cols.QuestionsPerStage),
		string(cols.Questions), string(cols.KeyPoints),
		r.TransitionCount, r.ForcedTransitions, string(cols.Transcript), r.Feedback,
		toMillis(r.StartedAt), toMillis(r.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("archive/sqlite: save %q: %w", r.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, candidate_name, role, experience_level, has_resume, has_job_description,
	       final_stage, ended_by, skipped_stages, questions_per_stage, questions, key_points,
	       transition_count, forced_transitions, transcript, feedback, started_at, ended_at
	FROM interviews`

// Get implements [archive.Store].
func (s *Store) Get(ctx context.Context, id string) (*archive.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive/sqlite: get %q: %w", id, err)
	}
	return r, nil
}

// List implements [archive.Store].
func (s *Store) List(ctx context.Context, opts archive.ListOptions) ([]archive.Record, error) {
	query := selectColumns
	var args []any
	if opts.Role != "" {
		query += ` WHERE role = ? COLLATE NOCASE`
		args = append(args, opts.Role)
	}
	query += ` ORDER BY ended_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive/sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []archive.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("archive/sqlite: list scan: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive/sqlite: list: %w", err)
	}
	return out, nil
}

// Ping implements [archive.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("archive/sqlite: ping: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*archive.Record, error) {
	var (
		r              archive.Record
		skipped, qps   string
		questions, kps string
		transcript     string
		started, ended int64
	)
	if err := row.Scan(
		&r.ID, &r.CandidateName, &r.Role, &r.ExperienceLevel, &r.HasResume, &r.HasJobDescription,
		&r.FinalStage, &r.EndedBy, &skipped, &qps, &questions, &kps,
		&r.TransitionCount, &r.ForcedTransitions, &transcript, &r.Feedback, &started, &ended,
	); err != nil {
		return nil, err
	}
	err := r.DecodeColumns(archive.Columns{
		SkippedStages:     []byte(skipped),
		QuestionsPerStage: []byte(qps),
		Questions:         []byte(questions),
		KeyPoints:         []byte(kps),
		Transcript:        []byte(transcript),
	})
	if err != nil {
		return nil, err
	}
	r.StartedAt = fromMillis(started)
	r.EndedAt = fromMillis(ended)
	return &r, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
