// Package stage defines the ordered set of interview stages.
//
// A [Registry] is immutable once built. It answers ordering questions
// (next stage, relative position, stages in between) and resolves stage names
// coming from the turn producer. Unknown names fail with [UnknownStageError].
package stage

import (
	"errors"
	"fmt"
	"time"
)

// Well-known stage names used by [Default].
const (
	Welcome        = "welcome"
	SelfIntro      = "self_intro"
	PastExperience = "past_experience"
	CompanyFit     = "company_fit"
	Closing        = "closing"
)

// Stage is one phase of an interview.
type Stage struct {
	// Name is the stable identifier, e.g. "self_intro".
	Name string

	// DisplayName is shown to candidates and in progress summaries.
	DisplayName string

	// TimeLimit is the budget after which the fallback loop may force the
	// interview forward.
	TimeLimit time.Duration

	// MinQuestions is the number of distinct questions that must be asked
	// before a voluntary transition out of this stage is allowed.
	MinQuestions int

	// InstructionTemplate is the prompt text for the turn producer while this
	// stage is active. Placeholders are substituted by the prompt package.
	InstructionTemplate string

	// Fallback reports whether the fallback loop may force a transition out of
	// this stage.
	Fallback bool
}

// Label returns the display name, or the identifier when none is set.
func (s Stage) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// UnknownStageError is returned when a stage name is not registered.
type UnknownStageError struct {
	Name string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("stage: unknown stage %q", e.Name)
}

// Registry is an immutable, totally ordered list of stages.
// It is safe for concurrent use.
type Registry struct {
	stages []Stage
	index  map[string]int
}

// New builds a Registry from stages in interview order.
func New(stages ...Stage) (*Registry, error) {
	if len(stages) == 0 {
		return nil, errors.New("stage: at least one stage is required")
	}

	r := &Registry{
		stages: make([]Stage, len(stages)),
		index:  make(map[string]int, len(stages)),
	}
	var errs []error
	for i, s := range stages {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("stage[%d]: name is required", i))
			continue
		}
		if _, dup := r.index[s.Name]; dup {
			errs = append(errs, fmt.Errorf("stage[%d]: duplicate name %q", i, s.Name))
			continue
		}
		if s.TimeLimit <= 0 {
			errs = append(errs, fmt.Errorf("stage[%d] %q: time limit must be positive", i, s.Name))
		}
		if s.MinQuestions < 0 {
			errs = append(errs, fmt.Errorf("stage[%d] %q: min questions must not be negative", i, s.Name))
		}
		r.stages[i] = s
		r.index[s.Name] = i
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the stage called name.
func (r *Registry) Resolve(name string) (Stage, error) {
	i, ok := r.index[name]
	if !ok {
		return Stage{}, &UnknownStageError{Name: name}
	}
	return r.stages[i], nil
}

// Next returns the stage after name. The second return value is false when
// name is the terminal stage or is not registered.
func (r *Registry) Next(name string) (Stage, bool) {
	i, ok := r.index[name]
	if !ok || i+1 >= len(r.stages) {
		return Stage{}, false
	}
	return r.stages[i+1], true
}

// Index returns the position of name in the interview order, or -1.
func (r *Registry) Index(name string) int {
	i, ok := r.index[name]
	if !ok {
		return -1
	}
	return i
}

// First returns the initial stage.
func (r *Registry) First() Stage { return r.stages[0] }

// Terminal returns the last stage.
func (r *Registry) Terminal() Stage { return r.stages[len(r.stages)-1] }

// IsTerminal reports whether name is the last stage.
func (r *Registry) IsTerminal(name string) bool {
	return r.Index(name) == len(r.stages)-1
}

// Between returns the stages strictly after from and strictly before to.
// It returns nil when either name is unknown or to does not follow from.
func (r *Registry) Between(from, to string) []Stage {
	i, j := r.Index(from), r.Index(to)
	if i < 0 || j < 0 || j <= i+1 {
		return nil
	}
	out := make([]Stage, j-i-1)
	copy(out, r.stages[i+1:j])
	return out
}

// Stages returns a copy of all stages in order.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// Len returns the number of stages.
func (r *Registry) Len() int { return len(r.stages) }
