package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/mockflow/internal/interview/guard"
)

// ErrFinalized is returned by every request once the interview has ended.
var ErrFinalized = errors.New("controller: interview already finalized")

// ErrClosingTimeout is reported to the [Terminator] when the terminal stage
// ran past its grace period without closing content being spoken.
var ErrClosingTimeout = errors.New("controller: closing stage timed out")

// InvalidScoreError is returned for a depth score outside 1..5.
type InvalidScoreError struct {
	Score int
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("controller: depth score %d out of range [1,5]", e.Score)
}

// Outcome classifies the result of a request. Rejections are ordinary
// outcomes, not errors.
type Outcome string

const (
	Approved         Outcome = "APPROVED"
	Denied           Outcome = "DENY"
	Allowed          Outcome = "ALLOW"
	CannotTransition Outcome = "CANNOT_TRANSITION"
	Queued           Outcome = "QUEUED"
	Rejected         Outcome = "REJECTED"

	// Closing answers a question request when a pending skip moved the
	// interview into the terminal stage: the question is dropped and the
	// closing text is spoken instead.
	Closing Outcome = "CLOSING"
)

// Guidance is the advice returned after a response assessment.
type Guidance string

const (
	Continue          Guidance = "CONTINUE"
	SuggestTransition Guidance = "SUGGEST_TRANSITION"
	MustMeetMinimum   Guidance = "MUST_MEET_MINIMUM"
)

// Progress summarises the current stage for the turn producer.
type Progress struct {
	Stage             string      `json:"stage"`
	Asked             int         `json:"asked"`
	MinQuestions      int         `json:"min_questions"`
	RemainingFraction float64     `json:"remaining_fraction"`
	RemainingSeconds  int         `json:"remaining_seconds"`
	Urgency           guard.Level `json:"urgency"`

	// TransitionSoon is set once the minimum is met and half the stage time
	// is used.
	TransitionSoon bool `json:"transition_soon"`

	// Summary is the one-line human readable form.
	Summary string `json:"summary"`
}

// AskResult is returned by [Controller.AskQuestion].
type AskResult struct {
	Outcome  Outcome `json:"outcome"`
	Question string  `json:"question,omitempty"`

	// Acknowledgement is a queued transition announcement to speak before
	// the question. Empty when none was pending.
	Acknowledgement string `json:"acknowledgement,omitempty"`

	// Speak is the full text to speak: acknowledgement then question, or the
	// closing text when Outcome is [Closing].
	Speak    string   `json:"speak,omitempty"`
	Message  string   `json:"message,omitempty"`
	Progress Progress `json:"progress"`

	// Skip is set when a pending skip request was applied before the
	// question was recorded.
	Skip *TransitionResult `json:"skip,omitempty"`
}

// AssessResult is returned by [Controller.AssessResponse].
type AssessResult struct {
	Guidance Guidance `json:"guidance"`
	Message  string   `json:"message"`
	Progress Progress `json:"progress"`
}

// TransitionResult is returned by [Controller.RequestTransition] and
// describes any applied transition.
type TransitionResult struct {
	Outcome Outcome `json:"outcome"`
	From    string  `json:"from"`
	To      string  `json:"to,omitempty"`
	Message string  `json:"message,omitempty"`

	// Instructions is the rendered instruction text for the new stage.
	Instructions string `json:"instructions,omitempty"`

	// Acknowledgement is the announcement queued for the next question.
	Acknowledgement string `json:"acknowledgement,omitempty"`

	// Closing is set when the new stage is terminal: speak it now.
	Closing string `json:"closing,omitempty"`

	Forced  bool `json:"forced,omitempty"`
	Skipped bool `json:"skipped,omitempty"`
}

// SkipResult is returned by [Controller.ApplySkipRequest].
type SkipResult struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target"`
	Message string  `json:"message"`

	// Replaced names an older pending request that was overwritten.
	Replaced string `json:"replaced,omitempty"`
}

// Event reports a stage change to the presentation layer and analytics.
type Event struct {
	SessionID string    `json:"session_id"`
	From      string    `json:"from_stage"`
	To        string    `json:"to_stage"`
	Forced    bool      `json:"forced"`
	Skipped   bool      `json:"skipped"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// InstructionUpdate delivers new instructions to whatever drives the turn
// producer.
type InstructionUpdate struct {
	SessionID    string `json:"session_id"`
	Stage        string `json:"stage"`
	Instructions string `json:"instructions"`

	// Speak is text that must be spoken immediately (closing message).
	Speak string `json:"speak,omitempty"`
}

// EventSink receives controller output. Implementations must not block and
// must not call back into the controller: methods are invoked while the
// controller holds its lock so that delivery order matches transition order.
type EventSink interface {
	StageChanged(Event)
	InstructionsChanged(InstructionUpdate)
}

// Terminator is told when the controller ends an interview on its own. A
// nil err means the interview completed normally.
type Terminator interface {
	Terminate(sessionID string, err error)
}

type nopSink struct{}

func (nopSink) StageChanged(Event)                    {}
func (nopSink) InstructionsChanged(InstructionUpdate) {}

type nopTerminator struct{}

func (nopTerminator) Terminate(string, error) {}
