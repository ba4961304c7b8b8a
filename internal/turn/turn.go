// Package turn connects a turn producer (the model speaking as the
// interviewer) to an interview controller.
//
// [Adapter] is what a voice pipeline implements so the controller can steer
// it; [Controls] is what the pipeline's tool layer calls back into.
// [Forwarder] relays controller output to an Adapter without blocking the
// controller, and [Driver] is the in-process text turn producer backed by an
// [llm.Provider].
package turn

import (
	"context"
	"sync"

	"github.com/MrWong99/mockflow/internal/interview/controller"
	"github.com/MrWong99/mockflow/internal/interview/stage"
	"github.com/MrWong99/mockflow/internal/observe"
)

// Adapter is implemented by whatever produces the interviewer's speech.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// UpdateInstructions replaces the turn producer's system instructions.
	UpdateInstructions(ctx context.Context, instructions string) error

	// Say speaks text verbatim, outside the normal model turn.
	Say(ctx context.Context, text string) error
}

// Controls is the controller surface a turn producer uses.
// [*controller.Controller] satisfies it.
type Controls interface {
	ID() string
	Stage() stage.Stage
	Instructions() string
	Dispatch(ctx context.Context, req controller.Request) (any, error)
	NotifyUserSpeech(ctx context.Context)
	NotifyAgentSpeech(ctx context.Context, text string)
}

var _ Controls = (*controller.Controller)(nil)

// Forwarder is a [controller.EventSink] that delivers instruction updates to
// an [Adapter] on its own goroutine. Updates are delivered in order and
// never dropped; the controller never waits on the adapter.
type Forwarder struct {
	adapter Adapter

	mu      sync.Mutex
	pending []controller.InstructionUpdate
	signal  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

var _ controller.EventSink = (*Forwarder)(nil)

// NewForwarder creates a Forwarder for a. Call [Forwarder.Run] to start
// delivery.
func NewForwarder(a Adapter) *Forwarder {
	return &Forwarder{
		adapter: a,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// StageChanged implements [controller.EventSink]. Stage events are not
// relevant to the adapter.
func (f *Forwarder) StageChanged(controller.Event) {}

// InstructionsChanged implements [controller.EventSink].
func (f *Forwarder) InstructionsChanged(u controller.InstructionUpdate) {
	f.mu.Lock()
	f.pending = append(f.pending, u)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Run delivers updates until ctx is cancelled or [Forwarder.Close] is
// called. Adapter errors are logged and delivery continues.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			f.flush(ctx)
			return
		case <-f.signal:
			f.flush(ctx)
		}
	}
}

// Close stops [Forwarder.Run] after delivering queued updates. Safe to
// call more than once.
func (f *Forwarder) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *Forwarder) flush(ctx context.Context) {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, u := range batch {
		log := observe.Logger(observe.WithSession(ctx, u.SessionID))
		if err := f.adapter.UpdateInstructions(ctx, u.Instructions); err != nil {
			log.Warn("turn: failed to update instructions", "stage", u.Stage, "err", err)
		}
		if u.Speak == "" {
			continue
		}
		if err := f.adapter.Say(ctx, u.Speak); err != nil {
			log.Warn("turn: failed to speak", "stage", u.Stage, "err", err)
		}
	}
}
