// Package mock provides a test double for the [turn.Adapter] interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockflow/internal/turn"
)

// Adapter is a mock implementation of [turn.Adapter]. It records every call
// and returns the configured errors.
type Adapter struct {
	mu sync.Mutex

	// UpdateErr is returned by UpdateInstructions.
	UpdateErr error

	// SayErr is returned by Say.
	SayErr error

	// Instructions records UpdateInstructions arguments in order.
	Instructions []string

	// Said records Say arguments in order.
	Said []string

	// Notify, if non-nil, receives a value after every recorded call.
	Notify chan struct{}
}

// UpdateInstructions records the call.
func (a *Adapter) UpdateInstructions(_ context.Context, instructions string) error {
	a.mu.Lock()
	a.Instructions = append(a.Instructions, instructions)
	err := a.UpdateErr
	a.mu.Unlock()
	a.notify()
	return err
}

// Say records the call.
func (a *Adapter) Say(_ context.Context, text string) error {
	a.mu.Lock()
	a.Said = append(a.Said, text)
	err := a.SayErr
	a.mu.Unlock()
	a.notify()
	return err
}

// Snapshot returns copies of the recorded calls.
func (a *Adapter) Snapshot() (instructions, said []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Instructions...), append([]string(nil), a.Said...)
}

func (a *Adapter) notify() {
	if a.Notify == nil {
		return
	}
	select {
	case a.Notify <- struct{}{}:
	default:
	}
}

var _ turn.Adapter = (*Adapter)(nil)
