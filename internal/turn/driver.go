package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/mockflow/internal/interview/controller"
	"github.com/MrWong99/mockflow/internal/mcp/tools"
	"github.com/MrWong99/mockflow/internal/observe"
	"github.com/MrWong99/mockflow/internal/session"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// DefaultMaxToolRounds bounds how many tool-call round trips one turn may
// take before the model is asked for plain text.
const DefaultMaxToolRounds = 6

// openingCue starts the conversation when the candidate has not spoken yet.
const openingCue = "[The candidate has joined the call.]"

// ToolTrace records one tool call made during a turn.
type ToolTrace struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Reply is the outcome of one interviewer turn.
type Reply struct {
	// Text is what the interviewer says.
	Text string `json:"text"`

	// Stage is the stage the interview is in after the turn.
	Stage string `json:"stage"`

	Tools []ToolTrace `json:"tools,omitempty"`
}

// DriverConfig holds the dependencies of a [Driver].
//
// Controls, LLM and Tools are required. A nil History gets an unbounded one.
type DriverConfig struct {
	Controls Controls
	LLM      llm.Provider
	Tools    *tools.Set
	History  *session.History

	// MaxToolRounds defaults to [DefaultMaxToolRounds].
	MaxToolRounds int

	// Temperature is passed to the provider. Zero uses its default.
	Temperature float64

	Metrics *observe.Metrics
}

// Driver is an in-process turn producer. Each call to [Driver.Turn] sends
// the current stage instructions and the conversation to the model, runs the
// tool calls it requests against the interview tools, and returns the text
// to speak.
//
// Turns are serialised. Driver also implements [Adapter] and
// [controller.EventSink]: text passed to [Driver.Say] or carried by an
// instruction update (the closing message) is spoken at the start of the
// next reply.
type Driver struct {
	ctl         Controls
	llm         llm.Provider
	tools       *tools.Set
	history     *session.History
	maxRounds   int
	temperature float64
	metrics     *observe.Metrics

	turnMu sync.Mutex

	sayMu  sync.Mutex
	queued []string
}

var (
	_ Adapter              = (*Driver)(nil)
	_ controller.EventSink = (*Driver)(nil)
)

// NewDriver validates cfg and returns a Driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Controls == nil {
		return nil, errors.New("turn: Controls must not be nil")
	}
	if cfg.LLM == nil {
		return nil, errors.New("turn: LLM must not be nil")
	}
	if cfg.Tools == nil {
		return nil, errors.New("turn: Tools must not be nil")
	}
	d := &Driver{
		ctl:         cfg.Controls,
		llm:         cfg.LLM,
		tools:       cfg.Tools,
		history:     cfg.History,
		maxRounds:   cfg.MaxToolRounds,
		temperature: cfg.Temperature,
		metrics:     cfg.Metrics,
	}
	if d.history == nil {
		d.history = session.NewHistory(session.HistoryConfig{})
	}
	if d.maxRounds <= 0 {
		d.maxRounds = DefaultMaxToolRounds
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d, nil
}

// History returns the conversation history.
func (d *Driver) History() *session.History { return d.history }

// UpdateInstructions implements [Adapter]. The driver reads instructions
// from the controller on every request, so there is nothing to store.
func (d *Driver) UpdateInstructions(ctx context.Context, _ string) error {
	observe.Logger(observe.WithSession(ctx, d.ctl.ID())).Debug("turn: instructions updated",
		"stage", d.ctl.Stage().Name)
	return nil
}

// Say implements [Adapter] by queueing text for the next reply.
func (d *Driver) Say(_ context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	d.sayMu.Lock()
	defer d.sayMu.Unlock()
	d.queued = append(d.queued, text)
	return nil
}

// StageChanged implements [controller.EventSink].
func (d *Driver) StageChanged(controller.Event) {}

// InstructionsChanged implements [controller.EventSink]. It runs under the
// controller lock and only queues text.
func (d *Driver) InstructionsChanged(u controller.InstructionUpdate) {
	_ = d.Say(context.Background(), u.Speak)
}

// Turn handles one candidate utterance and produces the interviewer's
// reply. An empty utterance opens the conversation.
//
// Text queued with [Driver.Say] replaces the model's reply: queued before
// the turn, the model is not called; queued while tool calls run (a
// transition into the closing stage), the tool loop ends there.
func (d *Driver) Turn(ctx context.Context, utterance string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, fmt.Errorf("turn: %w", err)
	}

	d.turnMu.Lock()
	defer d.turnMu.Unlock()

	// Check context again after acquiring the lock (we may have waited).
	if err := ctx.Err(); err != nil {
		return Reply{}, fmt.Errorf("turn: %w", err)
	}

	ctx = observe.WithSession(ctx, d.ctl.ID())
	ctx, span := observe.StartSpan(ctx, "turn")
	defer span.End()

	utterance = strings.TrimSpace(utterance)
	userMsg := llm.Message{Role: llm.RoleUser, Content: utterance}
	if utterance == "" {
		userMsg.Content = openingCue
	} else {
		d.ctl.NotifyUserSpeech(ctx)
		d.history.Record(session.Entry{
			Speaker: session.SpeakerCandidate,
			Stage:   d.ctl.Stage().Name,
			Text:    utterance,
			At:      time.Now(),
		})
	}
	if err := d.history.Add(ctx, userMsg); err != nil {
		observe.Logger(ctx).Warn("turn: history trim failed", "err", err)
	}

	var reply Reply
	if queued := d.takeQueued(); queued != "" {
		// The controller already decided what to say (the closing message
		// after a forced transition); the model is not consulted.
		if err := d.history.Add(ctx, llm.Message{Role: llm.RoleAssistant, Content: queued}); err != nil {
			observe.Logger(ctx).Warn("turn: history trim failed", "err", err)
		}
		reply.Text = queued
	} else {
		text, err := d.run(ctx, &reply)
		if err != nil {
			return Reply{}, err
		}
		reply.Text = text
	}

	if reply.Text != "" {
		d.ctl.NotifyAgentSpeech(ctx, reply.Text)
		d.history.Record(session.Entry{
			Speaker: session.SpeakerInterviewer,
			Stage:   d.ctl.Stage().Name,
			Text:    reply.Text,
			At:      time.Now(),
		})
	}
	reply.Stage = d.ctl.Stage().Name
	return reply, nil
}

// run performs the bounded tool-call loop and returns the model's text.
func (d *Driver) run(ctx context.Context, reply *Reply) (string, error) {
	for round := 0; ; round++ {
		offerTools := round < d.maxRounds
		resp, err := d.complete(ctx, offerTools)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 || !offerTools {
			text := strings.TrimSpace(resp.Content)
			if err := d.history.Add(ctx, llm.Message{Role: llm.RoleAssistant, Content: text}); err != nil {
				observe.Logger(ctx).Warn("turn: history trim failed", "err", err)
			}
			return text, nil
		}

		msgs := make([]llm.Message, 0, len(resp.ToolCalls)+1)
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			trace := d.call(ctx, tc)
			reply.Tools = append(reply.Tools, trace)
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, ToolCallID: tc.ID, Content: trace.Result})
		}
		if err := d.history.Add(ctx, msgs...); err != nil {
			observe.Logger(ctx).Warn("turn: history trim failed", "err", err)
		}

		if closing := d.takeQueued(); closing != "" {
			if err := d.history.Add(ctx, llm.Message{Role: llm.RoleAssistant, Content: closing}); err != nil {
				observe.Logger(ctx).Warn("turn: history trim failed", "err", err)
			}
			return closing, nil
		}
	}
}

func (d *Driver) complete(ctx context.Context, offerTools bool) (*llm.Response, error) {
	req := llm.Request{
		SystemPrompt: d.ctl.Instructions(),
		Messages:     d.history.Messages(),
		Temperature:  d.temperature,
	}
	if offerTools {
		req.Tools = d.tools.Definitions()
	}

	start := time.Now()
	resp, err := d.llm.Complete(ctx, req)
	d.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("turn: complete: %w", err)
	}
	if resp == nil {
		return nil, errors.New("turn: complete: provider returned no response")
	}
	return resp, nil
}

func (d *Driver) call(ctx context.Context, tc llm.ToolCall) ToolTrace {
	trace := ToolTrace{Name: tc.Name, Arguments: tc.Arguments}
	res, err := d.tools.Call(ctx, tc.Name, tc.Arguments)
	if err != nil {
		trace.Result = err.Error()
		trace.IsError = true
		return trace
	}
	trace.Result = res.Content
	trace.IsError = res.IsError
	return trace
}

func (d *Driver) takeQueued() string {
	d.sayMu.Lock()
	defer d.sayMu.Unlock()
	out := strings.Join(d.queued, " ")
	d.queued = nil
	return out
}
