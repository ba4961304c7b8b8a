package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/mockflow/internal/observe"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across several LLM
// backends, each behind its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend. Every attempt is counted in metrics under the entry name.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig, metrics *observe.Metrics) *LLMFallback {
	if metrics != nil {
		user := cfg.OnAttempt
		cfg.OnAttempt = func(name string, err error) {
			recordAttempt(metrics, name, err)
			if user != nil {
				user(name, err)
			}
		}
	}
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

func recordAttempt(m *observe.Metrics, name string, err error) {
	ctx := context.Background()
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, name, "llm", "ok")
	case errors.Is(err, ErrCircuitOpen):
		m.RecordProviderRequest(ctx, name, "llm", "circuit_open")
	default:
		m.RecordProviderRequest(ctx, name, "llm", "error")
		m.RecordProviderError(ctx, name, "llm")
	}
}

// AddFallback registers an additional backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.Response, error) {
		return p.Complete(ctx, req)
	})
}

// Model returns the primary backend's model.
func (f *LLMFallback) Model() string { return f.group.Primary().Model() }

// States reports each backend's breaker state.
func (f *LLMFallback) States() map[string]State { return f.group.States() }
