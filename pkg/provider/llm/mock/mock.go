// Package mock provides a test double for the [llm.Provider] interface.
//
// Use Provider in unit tests to feed scripted replies to the turn driver or
// the feedback generator without a live backend, and to assert on the
// requests they send.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.Response{
//	        {ToolCalls: []llm.ToolCall{{ID: "1", Name: "ask_question", Arguments: `{"question":"Hi?"}`}}},
//	        {Content: "Hi?"},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.Request
}

// Provider is a mock implementation of [llm.Provider].
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ModelName is returned by Model.
	ModelName string

	// Responses are returned by successive Complete calls in order. Once
	// exhausted, CompleteResponse is returned.
	Responses []*llm.Response

	// CompleteResponse is returned when Responses is exhausted. May be nil.
	CompleteResponse *llm.Response

	// CompleteErr, if non-nil, is returned by every Complete call.
	CompleteErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.Responses) > 0 {
		r := p.Responses[0]
		p.Responses = p.Responses[1:]
		return r, nil
	}
	return p.CompleteResponse, nil
}

// Model returns ModelName.
func (p *Provider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelName
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
