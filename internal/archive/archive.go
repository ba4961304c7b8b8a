// Package archive stores finalized interviews.
//
// A [Record] is built once per interview from the final state snapshot and
// the spoken transcript and handed to a [Store]. Three backends exist:
// [MemoryStore] (tests, ephemeral deployments), internal/archive/postgres
// (pgx) and internal/archive/sqlite (embedded, pure Go).
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/session"
)

// Record is the archived form of one interview. Candidate documents are not
// stored, only whether they were supplied.
type Record struct {
	ID                string               `json:"id"`
	CandidateName     string               `json:"candidate_name"`
	Role              string               `json:"role"`
	ExperienceLevel   string               `json:"experience_level"`
	HasResume         bool                 `json:"has_resume"`
	HasJobDescription bool                 `json:"has_job_description"`
	FinalStage        string               `json:"final_stage"`
	EndedBy           string               `json:"ended_by"`
	SkippedStages     []string             `json:"skipped_stages"`
	QuestionsPerStage map[string]int       `json:"questions_per_stage"`
	Questions         []string             `json:"questions"`
	KeyPoints         []interview.KeyPoint `json:"key_points"`
	TransitionCount   int                  `json:"transition_count"`
	ForcedTransitions int                  `json:"forced_transitions"`
	Transcript        []session.Entry      `json:"transcript"`
	Feedback          string               `json:"feedback,omitempty"`
	StartedAt         time.Time            `json:"started_at"`
	EndedAt           time.Time            `json:"ended_at"`
}

// NewRecord builds a Record from a final snapshot and transcript.
func NewRecord(id string, snap interview.Snapshot, transcript []session.Entry) Record {
	ended := snap.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	return Record{
		ID:                id,
		CandidateName:     snap.Profile.Name,
		Role:              snap.Profile.Role,
		ExperienceLevel:   snap.Profile.ExperienceLevel,
		HasResume:         strings.TrimSpace(snap.Profile.Resume) != "",
		HasJobDescription: strings.TrimSpace(snap.Profile.JobDescription) != "",
		FinalStage:        snap.CurrentStage,
		EndedBy:           snap.EndedBy,
		SkippedStages:     slices.Clone(snap.SkippedStages),
		QuestionsPerStage: maps.Clone(snap.QuestionsPerStage),
		Questions:         slices.Clone(snap.QuestionsAsked),
		KeyPoints:         slices.Clone(snap.KeyPoints),
		TransitionCount:   snap.TransitionCount,
		ForcedTransitions: snap.ForcedTransitions,
		Transcript:        slices.Clone(transcript),
		StartedAt:         snap.StartedAt,
		EndedAt:           ended,
	}
}

// Validate reports whether r can be stored.
func (r *Record) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if r.FinalStage == "" {
		errs = append(errs, errors.New("final stage is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("archive: invalid record: %w", err)
	}
	return nil
}

// ListOptions filters [Store.List]. The zero value lists everything, newest
// first.
type ListOptions struct {
	// Role matches records whose role equals Role (case-insensitive).
	Role string

	// Limit caps the number of records. Zero means no limit.
	Limit int
}

// Store persists archived interviews. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save inserts or replaces the record with r.ID.
	Save(ctx context.Context, r Record) error

	// Get returns the record with id, or (nil, nil) when none exists.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records ordered by EndedAt descending.
	List(ctx context.Context, opts ListOptions) ([]Record, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// ─── In-memory store ─────────────────────────────────────────────────────────

// MemoryStore is a [Store] that keeps records in a map.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save implements [Store].
func (s *MemoryStore) Save(_ context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return nil
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// List implements [Store].
func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if opts.Role != "" && !strings.EqualFold(r.Role, opts.Role) {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Ping implements [Store]. It always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// ─── SQL column encoding ─────────────────────────────────────────────────────

// Columns holds the JSON-encoded collection fields of a [Record] as stored by
// the SQL backends.
type Columns struct {
	SkippedStages     []byte
	QuestionsPerStage []byte
	Questions         []byte
	KeyPoints         []byte
	Transcript        []byte
}

// EncodeColumns marshals the collection fields of r. Nil collections are
// stored as empty JSON arrays or objects.
func (r *Record) EncodeColumns() (Columns, error) {
	var c Columns
	var err error
	if c.SkippedStages, err = json.Marshal(emptySlice(r.SkippedStages)); err != nil {
		return Columns{}, fmt.Errorf("archive: marshal skipped_stages: %w", err)
	}
	qps := r.QuestionsPerStage
	if qps == nil {
		qps = map[string]int{}
	}
	if c.QuestionsPerStage, err = json.Marshal(qps); err != nil {
		return Columns{}, fmt.Errorf("archive: marshal questions_per_stage: %w", err)
	}
	if c.Questions, err = json.Marshal(emptySlice(r.Questions)); err != nil {
		return Columns{}, fmt.Errorf("archive: marshal questions: %w", err)
	}
	if c.KeyPoints, err = json.Marshal(emptySlice(r.KeyPoints)); err != nil {
		return Columns{}, fmt.Errorf("archive: marshal key_points: %w", err)
	}
	if c.Transcript, err = json.Marshal(emptySlice(r.Transcript)); err != nil {
		return Columns{}, fmt.Errorf("archive: marshal transcript: %w", err)
	}
	return c, nil
}

// DecodeColumns unmarshals c into the collection fields of r.
func (r *Record) DecodeColumns(c Columns) error {
	fields := []struct {
		name string
		data []byte
		dst  any
	}{
		{"skipped_stages", c.SkippedStages, &r.SkippedStages},
		{"questions_per_stage", c.QuestionsPerStage, &r.QuestionsPerStage},
		{"questions", c.Questions, &r.Questions},
		{"key_points", c.KeyPoints, &r.KeyPoints},
		{"transcript", c.Transcript, &r.Transcript},
	}
	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return fmt.Errorf("archive: unmarshal %s: %w", f.name, err)
		}
	}
	return nil
}

func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
