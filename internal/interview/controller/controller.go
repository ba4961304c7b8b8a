// Package controller drives one interview through its stages.
//
// A [Controller] owns a single [interview.State]. Requests from the turn
// producer (ask a question, assess a response, request a transition, request
// a skip) and ticks of the background fallback loop all go through the same
// mutex, so exactly one transition is ever in flight. The loser of a race is
// simply re-evaluated against the state the winner left behind.
//
// Three kinds of transition exist:
//
//   - voluntary: requested by the turn producer, gated by the minimum question
//     count of the current stage;
//   - forced: issued by the fallback loop once the stage deadline passes,
//     ignoring the question gate;
//   - skip: requested by the candidate, forward only, queued and applied at
//     the next checkpoint.
//
// Every transition resets the stage timer and, unless the new stage is
// terminal, queues an acknowledgement that is spoken before the next
// approved question.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/guard"
	"github.com/MrWong99/mockflow/internal/interview/prompt"
	"github.com/MrWong99/mockflow/internal/interview/stage"
	"github.com/MrWong99/mockflow/internal/observe"
)

// Defaults for the fallback loop.
const (
	DefaultPollInterval     = 25 * time.Second
	DefaultClosingGrace     = 30 * time.Second
	DefaultWarningThreshold = 0.8
)

// Termination reasons recorded on the state.
const (
	EndedCompleted      = "completed"
	EndedClosingTimeout = "closing_timeout"
	EndedTerminated     = "terminated"
)

type transitionKind string

const (
	kindVoluntary transitionKind = "voluntary"
	kindForced    transitionKind = "forced"
	kindSkip      transitionKind = "skip"
)

// Controller is the interview progression state machine for one session.
// All exported methods are safe for concurrent use.
type Controller struct {
	id       string
	stages   *stage.Registry
	render   *prompt.Renderer
	dup      guard.DuplicateChecker
	policy   guard.Policy
	now      func() time.Time
	sink     EventSink
	term     Terminator
	metrics  *observe.Metrics
	interval time.Duration
	grace    time.Duration
	warnAt   float64

	mu           sync.Mutex
	state        *interview.State
	instructions string

	// warned is set once the warning threshold was logged for the current
	// stage.
	warned bool

	started  bool
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// Option configures a [Controller].
type Option func(*Controller)

// WithStages sets the stage registry. Default: [stage.Default].
func WithStages(r *stage.Registry) Option {
	return func(c *Controller) { c.stages = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithEventSink sets the receiver for stage and instruction events.
func WithEventSink(s EventSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithTerminator sets the collaborator told about self-initiated endings.
func WithTerminator(t Terminator) Option {
	return func(c *Controller) { c.term = t }
}

// WithPolicy sets the fallback deadline policy.
func WithPolicy(p guard.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithDuplicateChecker sets the question duplicate detector.
func WithDuplicateChecker(d guard.DuplicateChecker) Option {
	return func(c *Controller) { c.dup = d }
}

// WithPollInterval sets how often the fallback loop checks the deadline.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClosingGrace sets how long the terminal stage may run past its time
// limit before the interview is ended without a spoken closing.
func WithClosingGrace(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.grace = d
		}
	}
}

// WithWarningThreshold sets the fraction of stage time after which a warning
// is logged. Zero disables the warning.
func WithWarningThreshold(f float64) Option {
	return func(c *Controller) { c.warnAt = f }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller for the session id positioned at the first stage.
func New(id string, profile interview.Profile, opts ...Option) *Controller {
	c := &Controller{
		id:       id,
		now:      time.Now,
		sink:     nopSink{},
		term:     nopTerminator{},
		interval: DefaultPollInterval,
		grace:    DefaultClosingGrace,
		warnAt:   DefaultWarningThreshold,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.stages == nil {
		c.stages = stage.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.render = prompt.NewRenderer(profile)

	first := c.stages.First()
	c.state = interview.NewState(first.Name, profile, c.now())
	c.instructions = c.render.Instructions(first)
	return c
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// Stages returns the stage registry.
func (c *Controller) Stages() *stage.Registry { return c.stages }

// Stage returns the current stage definition.
func (c *Controller) Stage() stage.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

// Instructions returns the rendered instructions for the current stage.
func (c *Controller) Instructions() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instructions
}

// Progress reports the current stage's question count, time budget and
// urgency.
func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked(c.currentLocked(), c.now())
}

// Snapshot returns a copy of the interview state.
func (c *Controller) Snapshot() interview.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// ─── Turn-producer requests ──────────────────────────────────────────────────

// AskQuestion approves or rejects a question before it is spoken. Duplicate
// questions are denied without touching state. An approved question counts
// toward the current stage and carries any pending acknowledgement.
func (c *Controller) AskQuestion(ctx context.Context, raw string) (AskResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Finalized {
		return AskResult{}, ErrFinalized
	}
	now := c.now()
	normalized := interview.Normalize(raw)

	if c.dup.IsDuplicate(c.state, normalized) {
		cur := c.currentLocked()
		c.metrics.RecordQuestion(ctx, cur.Name, "duplicate")
		c.log(ctx).Debug("interview: duplicate question denied",
			"stage", cur.Name, "question", raw)
		return AskResult{
			Outcome:  Denied,
			Message:  "This question was already asked. Ask something different.",
			Progress: c.progressLocked(cur, now),
		}, nil
	}

	skip := c.checkpointLocked(ctx, now)
	cur := c.currentLocked()

	if skip != nil && c.stages.IsTerminal(cur.Name) {
		c.log(ctx).Info("interview: question dropped, skip reached closing",
			"stage", cur.Name, "question", raw)
		return AskResult{
			Outcome:  Closing,
			Speak:    skip.Closing,
			Message:  "The interview moved to " + cur.Label() + ". Speak the closing instead of asking.",
			Progress: c.progressLocked(cur, now),
			Skip:     skip,
		}, nil
	}

	c.state.RecordQuestion(normalized, now)
	c.metrics.RecordQuestion(ctx, cur.Name, "approved")

	res := AskResult{
		Outcome:  Approved,
		Question: strings.TrimSpace(raw),
		Progress: c.progressLocked(cur, now),
		Skip:     skip,
	}
	res.Speak = res.Question
	if ack, ok := c.state.TakeAck(cur.Name); ok {
		res.Acknowledgement = ack
		res.Speak = ack + " " + res.Question
	}
	return res, nil
}

// AssessResponse records the depth of the candidate's latest answer and
// returns guidance. Callers invoke it once per completed candidate turn; the
// controller does not detect repeated calls.
func (c *Controller) AssessResponse(ctx context.Context, depth int, keyPoints []string) (AssessResult, error) {
	if depth < 1 || depth > 5 {
		return AssessResult{}, &InvalidScoreError{Score: depth}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Finalized {
		return AssessResult{}, ErrFinalized
	}
	now := c.now()
	cur := c.currentLocked()

	c.state.LastDepthScore = depth
	for _, kp := range keyPoints {
		if kp = strings.TrimSpace(kp); kp != "" {
			c.state.KeyPoints = append(c.state.KeyPoints, interview.KeyPoint{Stage: cur.Name, Text: kp})
		}
	}
	c.state.Touch(now)

	p := c.progressLocked(cur, now)
	res := AssessResult{Progress: p}
	switch {
	case !guard.MinimumMet(c.state, cur):
		res.Guidance = MustMeetMinimum
		res.Message = fmt.Sprintf("Keep going: %d of %d required questions asked in %s.",
			p.Asked, cur.MinQuestions, cur.Label())
	case p.Urgency >= guard.High:
		res.Guidance = SuggestTransition
		res.Message = "The stage objective looks met. Consider calling transition_stage."
	default:
		res.Guidance = Continue
		res.Message = "Ask a follow-up question."
	}
	return res, nil
}

// RequestTransition asks to move to the next stage. A pending skip request
// is applied first and, if it fires, is the transition reported.
func (c *Controller) RequestTransition(ctx context.Context, reason string) (TransitionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Finalized {
		return TransitionResult{}, ErrFinalized
	}
	now := c.now()

	if skip := c.checkpointLocked(ctx, now); skip != nil {
		return *skip, nil
	}

	cur := c.currentLocked()
	next, ok := c.stages.Next(cur.Name)
	if !ok {
		return TransitionResult{
			Outcome: CannotTransition,
			From:    cur.Name,
			Message: "This is the final stage. The interview ends when the session is closed.",
		}, nil
	}

	if g := guard.CanTransitionVoluntarily(c.state, cur); g.Decision == guard.Deny {
		c.metrics.RecordGuardDenial(ctx, cur.Name)
		c.log(ctx).Info("interview: transition denied",
			"stage", cur.Name, "remaining", g.Remaining, "reason", reason)
		return TransitionResult{Outcome: Denied, From: cur.Name, Message: g.Message}, nil
	}

	return c.transitionLocked(ctx, next, kindVoluntary, reason, now), nil
}

// ApplySkipRequest queues a forward jump to target. The jump happens at the
// next checkpoint (an approved question, a transition request or a fallback
// tick), never in the middle of a turn. Only one request is kept; a newer
// one replaces an older one.
func (c *Controller) ApplySkipRequest(ctx context.Context, target string) (SkipResult, error) {
	to, err := c.stages.Resolve(target)
	if err != nil {
		return SkipResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Finalized {
		return SkipResult{}, ErrFinalized
	}
	cur := c.currentLocked()
	if c.stages.Index(to.Name) <= c.stages.Index(cur.Name) {
		return SkipResult{
			Outcome: Rejected,
			Target:  to.Name,
			Message: fmt.Sprintf("Cannot skip to %s: only later stages can be skipped to.", to.Label()),
		}, nil
	}

	res := SkipResult{
		Outcome:  Queued,
		Target:   to.Name,
		Replaced: c.state.SkipRequest,
		Message:  fmt.Sprintf("Skip to %s queued; it takes effect at the next checkpoint.", to.Label()),
	}
	c.state.SkipRequest = to.Name
	c.log(ctx).Info("interview: skip queued",
		"from", cur.Name, "to", to.Name, "replaced", res.Replaced)
	return res, nil
}

// NotifyUserSpeech records candidate activity, which resets the inactivity
// deadline.
func (c *Controller) NotifyUserSpeech(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Finalized {
		c.state.Touch(c.now())
	}
}

// NotifyAgentSpeech records text spoken by the interviewer. In the terminal
// stage non-empty speech counts as the closing being delivered.
func (c *Controller) NotifyAgentSpeech(_ context.Context, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Finalized || strings.TrimSpace(text) == "" {
		return
	}
	if c.stages.IsTerminal(c.state.CurrentStage) {
		c.state.ClosingDelivered = true
	}
}

// Finalize ends the interview and returns the final snapshot. Calling it
// again returns the snapshot without changing the recorded reason.
func (c *Controller) Finalize(ctx context.Context, endedBy string) interview.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizeLocked(ctx, endedBy)
	return c.state.Snapshot()
}

func (c *Controller) finalizeLocked(ctx context.Context, endedBy string) {
	if c.state.Finalized {
		return
	}
	c.state.Finalize(endedBy, c.now())
	c.state.SkipRequest = ""
	c.metrics.RecordInterviewEnded(ctx, endedBy)
	c.log(ctx).Info("interview: finalized",
		"stage", c.state.CurrentStage, "ended_by", endedBy,
		"transitions", c.state.TransitionCount, "forced", c.state.ForcedTransitions)
}

// ─── Transition mechanics ────────────────────────────────────────────────────

// checkpointLocked applies a pending skip request. It returns nil when no
// skip fired. Must be called with c.mu held.
func (c *Controller) checkpointLocked(ctx context.Context, now time.Time) *TransitionResult {
	target := c.state.SkipRequest
	if target == "" {
		return nil
	}
	c.state.SkipRequest = ""

	to, err := c.stages.Resolve(target)
	if err != nil || c.stages.Index(to.Name) <= c.stages.Index(c.state.CurrentStage) {
		// The interview moved past the target since the request was queued.
		return nil
	}
	res := c.transitionLocked(ctx, to, kindSkip, "candidate requested skip to "+to.Label(), now)
	return &res
}

// transitionLocked moves the interview to `to` and emits the resulting
// events. Must be called with c.mu held.
func (c *Controller) transitionLocked(ctx context.Context, to stage.Stage, kind transitionKind, reason string, now time.Time) TransitionResult {
	from := c.state.CurrentStage

	var skipped []stage.Stage
	if kind == kindSkip {
		skipped = c.stages.Between(from, to.Name)
		for _, s := range skipped {
			c.state.MarkSkipped(s.Name)
		}
	}

	c.state.EnterStage(to.Name, now)
	if kind == kindForced {
		c.state.ForcedTransitions++
	}
	c.warned = false

	instructions := c.render.Instructions(to)
	if notice := prompt.SkipNotice(skipped); notice != "" {
		instructions += "\n\n" + notice
	}
	c.instructions = instructions

	res := TransitionResult{
		Outcome:      Allowed,
		From:         from,
		To:           to.Name,
		Instructions: instructions,
		Forced:       kind == kindForced,
		Skipped:      kind == kindSkip,
	}

	if c.stages.IsTerminal(to.Name) {
		c.state.QueueAck("", "")
		res.Closing = c.render.Closing(kind == kindForced)
	} else {
		ack := c.render.Acknowledgement(to)
		if kind == kindForced {
			ack = c.render.FallbackAcknowledgement(to)
		}
		c.state.QueueAck(ack, to.Name)
		res.Acknowledgement = ack
	}

	c.metrics.RecordTransition(ctx, from, to.Name, string(kind))
	c.log(ctx).Info("interview: stage transition",
		"from", from, "to", to.Name, "kind", kind, "reason", reason)

	// The state has moved; both notifications go out even if one panics.
	c.emit(ctx, "stage_changed", func() {
		c.sink.StageChanged(Event{
			SessionID: c.id,
			From:      from,
			To:        to.Name,
			Forced:    res.Forced,
			Skipped:   res.Skipped,
			Reason:    reason,
			Timestamp: now,
		})
	})
	c.emit(ctx, "instructions_changed", func() {
		c.sink.InstructionsChanged(InstructionUpdate{
			SessionID:    c.id,
			Stage:        to.Name,
			Instructions: instructions,
			Speak:        res.Closing,
		})
	})
	return res
}

// emit calls one sink method, logging instead of propagating a panic.
func (c *Controller) emit(ctx context.Context, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log(ctx).Error("interview: event sink panicked", "callback", what, "panic", r)
		}
	}()
	fn()
}

// currentLocked resolves the current stage. Must be called with c.mu held.
func (c *Controller) currentLocked() stage.Stage {
	s, err := c.stages.Resolve(c.state.CurrentStage)
	if err != nil {
		// The state only ever holds names taken from the registry.
		panic(err)
	}
	return s
}

// progressLocked builds the progress report. Must be called with c.mu held.
func (c *Controller) progressLocked(cur stage.Stage, now time.Time) Progress {
	ts := guard.Time(c.state, cur, now)
	urgency := guard.Urgency(c.state, cur, now)
	asked := c.state.QuestionsInStage(cur.Name)
	secs := int(ts.Remaining.Seconds())
	return Progress{
		Stage:             cur.Name,
		Asked:             asked,
		MinQuestions:      cur.MinQuestions,
		RemainingFraction: ts.RemainingFraction,
		RemainingSeconds:  secs,
		Urgency:           urgency,
		TransitionSoon:    guard.SoonDue(c.state, cur, now),
		Summary:           prompt.ProgressLine(cur, asked, ts.RemainingFraction, secs, urgency),
	}
}

func (c *Controller) log(ctx context.Context) *slog.Logger {
	return observe.Logger(observe.WithSession(ctx, c.id))
}
