// Package mock provides recording test doubles for the controller's
// [controller.EventSink] and [controller.Terminator] collaborators.
//
// Both types are safe for concurrent use. Typical usage:
//
//	sink := &mock.Sink{}
//	term := &mock.Terminator{}
//	c := controller.New("s1", profile,
//	    controller.WithEventSink(sink),
//	    controller.WithTerminator(term))
//
//	// drive c …
//
//	if got := len(sink.Events()); got != 1 {
//	    t.Errorf("expected 1 stage event, got %d", got)
//	}
package mock

import (
	"sync"

	"github.com/MrWong99/mockflow/internal/interview/controller"
)

// Sink records every event it receives.
type Sink struct {
	mu      sync.Mutex
	events  []controller.Event
	updates []controller.InstructionUpdate

	// OnStageChanged, when set, is called after the event is recorded. It
	// runs under the controller's lock and must not block.
	OnStageChanged func(controller.Event)
}

// StageChanged implements [controller.EventSink].
func (s *Sink) StageChanged(e controller.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	fn := s.OnStageChanged
	s.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

// InstructionsChanged implements [controller.EventSink].
func (s *Sink) InstructionsChanged(u controller.InstructionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

// Events returns a copy of all recorded stage events in order.
func (s *Sink) Events() []controller.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]controller.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Updates returns a copy of all recorded instruction updates in order.
func (s *Sink) Updates() []controller.InstructionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]controller.InstructionUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

// Reset clears all recorded events and updates.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.updates = nil
}

// TerminateCall records one invocation of [Terminator.Terminate].
type TerminateCall struct {
	SessionID string
	Err       error
}

// Terminator records termination notices.
type Terminator struct {
	mu    sync.Mutex
	calls []TerminateCall
}

// Terminate implements [controller.Terminator].
func (t *Terminator) Terminate(sessionID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, TerminateCall{SessionID: sessionID, Err: err})
}

// Calls returns a copy of all recorded calls.
func (t *Terminator) Calls() []TerminateCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TerminateCall, len(t.calls))
	copy(out, t.calls)
	return out
}

// Compile-time interface assertions.
var (
	_ controller.EventSink  = (*Sink)(nil)
	_ controller.Terminator = (*Terminator)(nil)
)
