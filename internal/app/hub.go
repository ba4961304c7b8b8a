package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/controller"
	"github.com/MrWong99/mockflow/internal/turn"
)

// subscriberBuffer is the number of messages queued per subscriber before it
// is considered too slow and disconnected.
const subscriberBuffer = 32

// Message types sent to event subscribers.
const (
	MsgStageChanged = "stage_changed"
	MsgInstructions = "instructions"
	MsgSay          = "say"
	MsgEnded        = "ended"
)

// Message is one frame of the per-session event stream.
type Message struct {
	Type         string              `json:"type"`
	SessionID    string              `json:"session_id"`
	Stage        string              `json:"stage,omitempty"`
	Event        *controller.Event   `json:"event,omitempty"`
	Instructions string              `json:"instructions,omitempty"`
	Text         string              `json:"text,omitempty"`
	Snapshot     *interview.Snapshot `json:"snapshot,omitempty"`
	At           time.Time           `json:"at"`
}

// Hub fans the output of one interview out to any number of subscribers
// (the websocket event stream, an external voice pipeline).
//
// Stage events arrive through [controller.EventSink] and are published
// immediately. Instruction updates and spoken text arrive through the
// [turn.Adapter] methods, called by a [turn.Forwarder] off the controller
// lock. Publishing never blocks: a subscriber whose buffer is full is
// dropped.
type Hub struct {
	sessionID string

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	stage  string
	closed bool
}

type subscriber struct {
	msgs chan Message
	once sync.Once
}

func (s *subscriber) close() { s.once.Do(func() { close(s.msgs) }) }

var (
	_ controller.EventSink = (*Hub)(nil)
	_ turn.Adapter         = (*Hub)(nil)
)

// NewHub creates a Hub for the session id positioned at stage.
func NewHub(sessionID, stage string) *Hub {
	return &Hub{
		sessionID: sessionID,
		stage:     stage,
		subs:      make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a subscriber. The returned channel is closed when the
// interview ends, the subscriber falls behind, or cancel is called. A
// subscription on a closed hub returns an already closed channel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	s := &subscriber{msgs: make(chan Message, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s.msgs, func() {}
	}
	h.subs[s] = struct{}{}
	return s.msgs, func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		s.close()
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// StageChanged implements [controller.EventSink].
func (h *Hub) StageChanged(e controller.Event) {
	h.mu.Lock()
	h.stage = e.To
	h.mu.Unlock()
	h.publish(Message{Type: MsgStageChanged, Stage: e.To, Event: &e, At: e.Timestamp})
}

// InstructionsChanged implements [controller.EventSink]. Instruction updates
// are delivered through [Hub.UpdateInstructions] by a forwarder instead.
func (h *Hub) InstructionsChanged(controller.InstructionUpdate) {}

// UpdateInstructions implements [turn.Adapter].
func (h *Hub) UpdateInstructions(_ context.Context, instructions string) error {
	h.publish(Message{Type: MsgInstructions, Stage: h.currentStage(), Instructions: instructions, At: time.Now()})
	return nil
}

// Say implements [turn.Adapter].
func (h *Hub) Say(_ context.Context, text string) error {
	h.publish(Message{Type: MsgSay, Stage: h.currentStage(), Text: text, At: time.Now()})
	return nil
}

// End publishes the final snapshot and closes every subscription.
func (h *Hub) End(snap interview.Snapshot) {
	h.publish(Message{Type: MsgEnded, Stage: snap.CurrentStage, Snapshot: &snap, At: time.Now()})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.close()
		delete(h.subs, s)
	}
}

func (h *Hub) currentStage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stage
}

func (h *Hub) publish(m Message) {
	m.SessionID = h.sessionID

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		select {
		case s.msgs <- m:
		default:
			slog.Warn("events: dropping slow subscriber", "session_id", h.sessionID, "type", m.Type)
			delete(h.subs, s)
			s.close()
		}
	}
}

// fanout delivers controller output to several sinks in order.
type fanout []controller.EventSink

func (f fanout) StageChanged(e controller.Event) {
	for _, s := range f {
		s.StageChanged(e)
	}
}

func (f fanout) InstructionsChanged(u controller.InstructionUpdate) {
	for _, s := range f {
		s.InstructionsChanged(u)
	}
}
