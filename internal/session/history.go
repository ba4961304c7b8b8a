package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// Speakers recorded in the transcript.
const (
	SpeakerCandidate   = "candidate"
	SpeakerInterviewer = "interviewer"
)

// Entry is one spoken line of the interview transcript.
type Entry struct {
	Speaker string    `json:"speaker"`
	Stage   string    `json:"stage"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// History holds the working conversation sent to the turn producer and the
// full spoken transcript of the interview.
//
// The working set is bounded: once the estimated token count exceeds
// thresholdRatio × maxTokens the oldest half is either summarised (when a
// [Summariser] is configured) or dropped. The transcript is never trimmed.
//
// All methods are safe for concurrent use.
type History struct {
	maxTokens      int
	thresholdRatio float64
	summariser     Summariser

	mu            sync.Mutex
	currentTokens int
	messages      []llm.Message
	summaries     []string
	transcript    []Entry

	// trimming is set while a summariser call runs unlocked. Concurrent Adds
	// only append in that window.
	trimming bool
}

// HistoryConfig configures a [History].
type HistoryConfig struct {
	// MaxTokens is the provider's context window budget. Zero disables
	// trimming.
	MaxTokens int

	// ThresholdRatio is the fraction of MaxTokens at which trimming starts.
	// Defaults to 0.75 if zero or negative.
	ThresholdRatio float64

	// Summariser compresses trimmed messages. When nil they are dropped.
	Summariser Summariser
}

// NewHistory creates an empty [History].
func NewHistory(cfg HistoryConfig) *History {
	ratio := cfg.ThresholdRatio
	if ratio <= 0 {
		ratio = 0.75
	}
	return &History{
		maxTokens:      cfg.MaxTokens,
		thresholdRatio: ratio,
		summariser:     cfg.Summariser,
	}
}

// Add appends msgs to the working conversation and trims it when the token
// threshold is crossed.
func (h *History) Add(ctx context.Context, msgs ...llm.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
	h.currentTokens += llm.EstimateTokens(msgs)

	if h.maxTokens <= 0 {
		return nil
	}
	threshold := int(float64(h.maxTokens) * h.thresholdRatio)
	if h.currentTokens > threshold && len(h.messages) > 1 && !h.trimming {
		if err := h.trimOldest(ctx); err != nil {
			return fmt.Errorf("session: trim history: %w", err)
		}
	}
	return nil
}

// Record appends a spoken line to the transcript.
func (h *History) Record(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transcript = append(h.transcript, e)
}

// Messages returns the working conversation, prefixed with any summaries as
// system messages.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]llm.Message, 0, len(h.summaries)+len(h.messages))
	for _, s := range h.summaries {
		out = append(out, llm.Message{
			Role:    llm.RoleSystem,
			Content: "[Earlier in this interview]: " + s,
		})
	}
	return append(out, h.messages...)
}

// Transcript returns a copy of every recorded line.
func (h *History) Transcript() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.transcript)
}

// TokenEstimate returns the estimated size of the working conversation.
func (h *History) TokenEstimate() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentTokens
}

// Reset clears the working conversation and summaries. The transcript is
// kept.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.summaries = nil
	h.currentTokens = 0
}

// trimOldest removes the oldest half of the working conversation. The cut
// never separates an assistant tool call from its tool results, since
// providers reject orphaned tool messages. Must be called with h.mu held.
func (h *History) trimOldest(ctx context.Context) error {
	cut := max(len(h.messages)/2, 1)
	for cut < len(h.messages) && h.messages[cut].Role == llm.RoleTool {
		cut++
	}

	removed := slices.Clone(h.messages[:cut])

	var summary string
	if h.summariser != nil {
		// Release the lock for the (potentially slow) LLM call.
		h.trimming = true
		h.mu.Unlock()
		s, err := h.summariser.Summarise(ctx, removed)
		h.mu.Lock()
		h.trimming = false
		if err != nil {
			return err
		}
		summary = s
		if len(h.messages) < cut {
			// Reset while unlocked.
			return nil
		}
	}

	// Messages may have been appended while unlocked; they live after cut.
	h.messages = h.messages[cut:]
	h.currentTokens -= llm.EstimateTokens(removed)
	if summary != "" {
		h.summaries = append(h.summaries, summary)
		h.currentTokens += llm.EstimateTokens([]llm.Message{{Content: summary}})
	}
	return nil
}
