// Package mock provides a test double for the [archive.Store] interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockflow/internal/archive"
)

// Store is a mock implementation of [archive.Store]. Saved records are kept
// in memory so Get and List behave like a real store unless an error is
// configured.
type Store struct {
	mu sync.Mutex

	// --- Configurable errors ---

	SaveErr error
	GetErr  error
	ListErr error
	PingErr error

	// --- Call records (read after test) ---

	// Saved records every successful or failed Save in order.
	Saved []archive.Record

	// ListCalls records the options of every List call.
	ListCalls []archive.ListOptions

	// PingCalls counts Ping invocations.
	PingCalls int

	mem *archive.MemoryStore
}

var _ archive.Store = (*Store)(nil)

func (s *Store) store() *archive.MemoryStore {
	if s.mem == nil {
		s.mem = archive.NewMemoryStore()
	}
	return s.mem
}

// Save records r and stores it unless SaveErr is set.
func (s *Store) Save(ctx context.Context, r archive.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saved = append(s.Saved, r)
	if s.SaveErr != nil {
		return s.SaveErr
	}
	return s.store().Save(ctx, r)
}

// Get returns GetErr or the stored record.
func (s *Store) Get(ctx context.Context, id string) (*archive.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	return s.store().Get(ctx, id)
}

// List returns ListErr or the stored records.
func (s *Store) List(ctx context.Context, opts archive.ListOptions) ([]archive.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls = append(s.ListCalls, opts)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.store().List(ctx, opts)
}

// Ping returns PingErr.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingCalls++
	return s.PingErr
}

// SavedRecords returns a copy of Saved.
func (s *Store) SavedRecords() []archive.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]archive.Record, len(s.Saved))
	copy(out, s.Saved)
	return out
}
