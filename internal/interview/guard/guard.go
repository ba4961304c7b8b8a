// Package guard decides whether an interview may, should, or must leave its
// current stage.
//
// Everything here is a pure function of the interview state, the stage
// definition and the current time. Nothing in this package mutates state;
// the stage controller applies the decisions.
package guard

import (
	"fmt"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/stage"
)

// Decision is the outcome of a transition check.
type Decision int

const (
	// Allow permits the transition.
	Allow Decision = iota

	// Deny rejects the transition because more data is needed.
	Deny

	// Force overrides every other gate (time limit exceeded).
	Force
)

// String returns the wire name of the decision.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case Deny:
		return "DENY"
	case Force:
		return "FORCE"
	default:
		return "UNKNOWN"
	}
}

// Result carries a [Decision] and the explanation for the turn producer.
type Result struct {
	Decision Decision

	// Message is empty for Allow.
	Message string

	// Remaining is the number of questions still required before Allow.
	Remaining int
}

// CanTransitionVoluntarily is the minimum-question gate. It allows leaving
// stg only when at least stg.MinQuestions questions were asked in it.
func CanTransitionVoluntarily(st *interview.State, stg stage.Stage) Result {
	asked := st.QuestionsInStage(stg.Name)
	if asked >= stg.MinQuestions {
		return Result{Decision: Allow}
	}
	remaining := stg.MinQuestions - asked
	noun := "questions"
	if remaining == 1 {
		noun = "question"
	}
	return Result{
		Decision:  Deny,
		Remaining: remaining,
		Message: fmt.Sprintf("Cannot leave %s yet: ask %d more %s first (%d/%d asked).",
			stg.Label(), remaining, noun, asked, stg.MinQuestions),
	}
}

// MinimumMet reports whether the minimum-question gate is open for stg.
func MinimumMet(st *interview.State, stg stage.Stage) bool {
	return st.QuestionsInStage(stg.Name) >= stg.MinQuestions
}

// ─── Time ────────────────────────────────────────────────────────────────────

// TimeStatus describes time spent against a stage's budget.
type TimeStatus struct {
	Elapsed           time.Duration `json:"elapsed"`
	Limit             time.Duration `json:"limit"`
	Remaining         time.Duration `json:"remaining"`
	RemainingFraction float64       `json:"remaining_fraction"`
	Overtime          bool          `json:"overtime"`
}

// Time computes the [TimeStatus] of the current stage at now.
func Time(st *interview.State, stg stage.Stage, now time.Time) TimeStatus {
	elapsed := st.Elapsed(now)
	if elapsed < 0 {
		elapsed = 0
	}
	ts := TimeStatus{
		Elapsed: elapsed,
		Limit:   stg.TimeLimit,
	}
	if stg.TimeLimit <= 0 {
		return ts
	}
	ts.Remaining = max(stg.TimeLimit-elapsed, 0)
	ts.RemainingFraction = max(1-elapsed.Seconds()/stg.TimeLimit.Seconds(), 0)
	ts.Overtime = elapsed >= stg.TimeLimit
	return ts
}

// SoonDue reports that the minimum is met and at least half of the stage's
// time has been used.
func SoonDue(st *interview.State, stg stage.Stage, now time.Time) bool {
	return MinimumMet(st, stg) && Time(st, stg, now).RemainingFraction <= 0.5
}

// ShouldWarn reports whether the stage has used more than threshold of its
// budget without exceeding it. A threshold outside (0,1) disables warnings.
func ShouldWarn(st *interview.State, stg stage.Stage, now time.Time, threshold float64) bool {
	if threshold <= 0 || threshold >= 1 {
		return false
	}
	ts := Time(st, stg, now)
	return !ts.Overtime && 1-ts.RemainingFraction >= threshold
}
