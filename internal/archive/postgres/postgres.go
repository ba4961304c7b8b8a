// Package postgres implements [archive.Store] on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/mockflow/internal/archive"
)

// Schema is the SQL DDL for the interviews table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS interviews (
    id                  TEXT PRIMARY KEY,
    candidate_name      TEXT NOT NULL DEFAULT '',
    role                TEXT NOT NULL DEFAULT '',
    experience_level    TEXT NOT NULL DEFAULT '',
    has_resume          BOOLEAN NOT NULL DEFAULT FALSE,
    has_job_description BOOLEAN NOT NULL DEFAULT FALSE,
    final_stage         TEXT NOT NULL,
    ended_by            TEXT NOT NULL DEFAULT '',
    skipped_stages      JSONB NOT NULL DEFAULT '[]',
    questions_per_stage JSONB NOT NULL DEFAULT '{}',
    questions           JSONB NOT NULL DEFAULT '[]',
    key_points          JSONB NOT NULL DEFAULT '[]',
    transition_count    INTEGER NOT NULL DEFAULT 0,
    forced_transitions  INTEGER NOT NULL DEFAULT 0,
    transcript          JSONB NOT NULL DEFAULT '[]',
    feedback            TEXT NOT NULL DEFAULT '',
    started_at          TIMESTAMPTZ NOT NULL,
    ended_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interviews_ended_at ON interviews(ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_interviews_role ON interviews(lower(role));
`

// DB is the database interface used by [Store]. *pgxpool.Pool satisfies it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Store is an [archive.Store] backed by PostgreSQL.
type Store struct {
	db DB
}

var _ archive.Store = (*Store)(nil)

// New creates a Store over db. The caller is responsible for calling
// [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool to dsn, migrates the schema and returns the store
// with a function that closes the pool.
func Open(ctx context.Context, dsn string) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("archive/postgres: connect: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive/postgres: migrate: %w", err)
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
		INSERT INTO interviews (
			id, candidate_name, role, experience_level, has_resume, has_job_description,
			final_stage, ended_by, skipped_stages, questions_per_stage, questions, key_points,
			transition_count, forced_transitions, transcript, feedback, started_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			candidate_name = EXCLUDED.candidate_name,
			role = EXCLUDED.role,
			experience_level = EXCLUDED.experience_level,
			has_resume = EXCLUDED.has_resume,
			has_job_description = EXCLUDED.has_job_description,
			final_stage = EXCLUDED.final_stage,
			ended_by = EXCLUDED.ended_by,
			skipped_stages = EXCLUDED.skipped_stages,
			questions_per_stage = EXCLUDED.questions_per_stage,
			questions = EXCLUDED.questions,
			key_points = EXCLUDED.key_points,
			transition_count = EXCLUDED.transition_count,
			forced_transitions = EXCLUDED.forced_transitions,
			transcript = EXCLUDED.transcript,
			feedback = EXCLUDED.feedback,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at`

	_, err = s.db.Exec(ctx, query,
		r.ID, r.CandidateName, r.Role, r.ExperienceLevel, r.HasResume, r.HasJobDescription,
		r.FinalStage, r.EndedBy, cols.SkippedStages, cols.QuestionsPerStage, cols.Questions, cols.KeyPoints,
		r.TransitionCount, r.ForcedTransitions, cols.Transcript, r.Feedback, r.StartedAt, r.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("archive/postgres: save %q: %w", r.ID, err)
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
	r, err := scanRecord(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive/postgres: get %q: %w", id, err)
	}
	return r, nil
}

// List implements [archive.Store].
func (s *Store) List(ctx context.Context, opts archive.ListOptions) ([]archive.Record, error) {
	query := selectColumns
	var args []any
	if opts.Role != "" {
		args = append(args, opts.Role)
		query += ` WHERE lower(role) = lower($1)`
	}
	query += ` ORDER BY ended_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []archive.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("archive/postgres: list scan: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive/postgres: list: %w", err)
	}
	return out, nil
}

// Ping implements [archive.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("archive/postgres: ping: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*archive.Record, error) {
	var r archive.Record
	var cols archive.Columns
	if err := row.Scan(
		&r.ID, &r.CandidateName, &r.Role, &r.ExperienceLevel, &r.HasResume, &r.HasJobDescription,
		&r.FinalStage, &r.EndedBy, &cols.SkippedStages, &cols.QuestionsPerStage, &cols.Questions, &cols.KeyPoints,
		&r.TransitionCount, &r.ForcedTransitions, &cols.Transcript, &r.Feedback, &r.StartedAt, &r.EndedAt,
	); err != nil {
		return nil, err
	}
	if err := r.DecodeColumns(cols); err != nil {
		return nil, err
	}
	return &r, nil
}
