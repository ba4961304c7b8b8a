// Package interview holds the live record of one interview session.
//
// A [State] is created when a session starts and is mutated only by the
// stage controller, which serialises access. State itself performs no
// locking and is not safe for concurrent use.
package interview

import (
	"slices"
	"time"
)

// Profile describes the candidate. It is supplied once at session start and
// never modified afterwards.
type Profile struct {
	Name            string `json:"name"`
	Role            string `json:"role"`
	ExperienceLevel string `json:"experience_level"`
	Resume          string `json:"resume,omitempty"`
	JobDescription  string `json:"job_description,omitempty"`

	// IncludeDocuments gates whether resume and job description excerpts are
	// injected into stage instructions.
	IncludeDocuments bool `json:"include_documents"`
}

// DisplayName returns the candidate name or a neutral fallback.
func (p Profile) DisplayName() string {
	if p.Name == "" {
		return "there"
	}
	return p.Name
}

// KeyPoint is one noteworthy statement recorded from a candidate answer.
type KeyPoint struct {
	Stage string `json:"stage"`
	Text  string `json:"text"`
}

// State is the mutable record of one interview.
type State struct {
	CurrentStage   string
	StartedAt      time.Time
	StageStartedAt time.Time

	// LastActivityAt is refreshed on stage entry, approved questions and
	// detected candidate speech. It drives inactivity-based fallback.
	LastActivityAt time.Time

	QuestionsAsked    []string
	QuestionsPerStage map[string]int
	LastDepthScore    int
	KeyPoints         []KeyPoint

	SkippedStages []string

	// SkipRequest is the single pending skip target; empty when none.
	SkipRequest string

	PendingAck      string
	PendingAckStage string
	AckDelivered    bool

	Profile Profile

	TransitionCount   int
	ForcedTransitions int

	// ClosingDelivered is set once closing content has been spoken in the
	// terminal stage.
	ClosingDelivered bool

	Finalized bool
	EndedBy   string
	EndedAt   time.Time
}

// NewState returns a State positioned at the first stage.
func NewState(first string, profile Profile, now time.Time) *State {
	s := &State{
		StartedAt:         now,
		QuestionsPerStage: make(map[string]int),
		Profile:           profile,
	}
	s.enter(first, now)
	return s
}

// EnterStage moves the interview to name. The caller is responsible for
// ordering checks. Per-stage counts already recorded for name are kept.
func (s *State) EnterStage(name string, now time.Time) {
	s.enter(name, now)
	s.TransitionCount++
}

func (s *State) enter(name string, now time.Time) {
	s.CurrentStage = name
	s.StageStartedAt = now
	s.LastActivityAt = now
	s.ClosingDelivered = false
	if _, ok := s.QuestionsPerStage[name]; !ok {
		s.QuestionsPerStage[name] = 0
	}
}

// RecordQuestion appends an already normalized question and increments the
// current stage's count.
func (s *State) RecordQuestion(normalized string, now time.Time) {
	s.QuestionsAsked = append(s.QuestionsAsked, normalized)
	s.QuestionsPerStage[s.CurrentStage]++
	s.LastActivityAt = now
}

// QuestionsInStage returns the number of questions asked in name.
func (s *State) QuestionsInStage(name string) int {
	return s.QuestionsPerStage[name]
}

// Touch records activity without any other change.
func (s *State) Touch(now time.Time) {
	s.LastActivityAt = now
}

// MarkSkipped records a stage that was bypassed by a skip request.
func (s *State) MarkSkipped(name string) {
	if !slices.Contains(s.SkippedStages, name) {
		s.SkippedStages = append(s.SkippedStages, name)
	}
}

// QueueAck sets the pending acknowledgement, replacing any undelivered one.
func (s *State) QueueAck(text, stage string) {
	s.PendingAck = text
	s.PendingAckStage = stage
	s.AckDelivered = false
}

// TakeAck returns the pending acknowledgement for stage and marks it
// delivered. It returns false when nothing is pending for that stage.
func (s *State) TakeAck(stage string) (string, bool) {
	if s.PendingAck == "" || s.AckDelivered || s.PendingAckStage != stage {
		return "", false
	}
	s.AckDelivered = true
	text := s.PendingAck
	s.PendingAck = ""
	return text, true
}

// HasPendingAck reports whether an undelivered acknowledgement exists.
func (s *State) HasPendingAck() bool {
	return s.PendingAck != "" && !s.AckDelivered
}

// Elapsed returns the time spent in the current stage.
func (s *State) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StageStartedAt)
}

// Inactive returns the time since the last recorded activity.
func (s *State) Inactive(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// Finalize marks the interview as finished.
func (s *State) Finalize(endedBy string, now time.Time) {
	s.Finalized = true
	s.EndedBy = endedBy
	s.EndedAt = now
}

// Snapshot returns a deep copy of the state suitable for serialisation.
func (s *State) Snapshot() Snapshot {
	perStage := make(map[string]int, len(s.QuestionsPerStage))
	for k, v := range s.QuestionsPerStage {
		perStage[k] = v
	}
	return Snapshot{
		CurrentStage:      s.CurrentStage,
		StartedAt:         s.StartedAt,
		StageStartedAt:    s.StageStartedAt,
		LastActivityAt:    s.LastActivityAt,
		QuestionsAsked:    slices.Clone(s.QuestionsAsked),
		QuestionsPerStage: perStage,
		LastDepthScore:    s.LastDepthScore,
		KeyPoints:         slices.Clone(s.KeyPoints),
		SkippedStages:     slices.Clone(s.SkippedStages),
		SkipRequest:       s.SkipRequest,
		PendingAck:        s.PendingAck,
		PendingAckStage:   s.PendingAckStage,
		AckDelivered:      s.AckDelivered,
		Profile:           s.Profile,
		TransitionCount:   s.TransitionCount,
		ForcedTransitions: s.ForcedTransitions,
		ClosingDelivered:  s.ClosingDelivered,
		Finalized:         s.Finalized,
		EndedBy:           s.EndedBy,
		EndedAt:           s.EndedAt,
	}
}

// Snapshot is a read-only copy of a [State].
type Snapshot struct {
	CurrentStage      string         `json:"current_stage"`
	StartedAt         time.Time      `json:"started_at"`
	StageStartedAt    time.Time      `json:"stage_started_at"`
	LastActivityAt    time.Time      `json:"last_activity_at"`
	QuestionsAsked    []string       `json:"questions_asked"`
	QuestionsPerStage map[string]int `json:"questions_per_stage"`
	LastDepthScore    int            `json:"last_depth_score"`
	KeyPoints         []KeyPoint     `json:"key_points"`
	SkippedStages     []string       `json:"skipped_stages"`
	SkipRequest       string         `json:"skip_request,omitempty"`
	PendingAck        string         `json:"pending_acknowledgement,omitempty"`
	PendingAckStage   string         `json:"pending_ack_stage,omitempty"`
	AckDelivered      bool           `json:"acknowledgement_delivered"`
	Profile           Profile        `json:"candidate_profile"`
	TransitionCount   int            `json:"transition_count"`
	ForcedTransitions int            `json:"forced_transitions"`
	ClosingDelivered  bool           `json:"closing_delivered"`
	Finalized         bool           `json:"finalized"`
	EndedBy           string         `json:"ended_by,omitempty"`
	EndedAt           time.Time      `json:"ended_at,omitzero"`
}
