package trial

import (
	"context"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu     sync.RWMutex
	byName map[string][]Record // insertion order preserved per pseudo
	total  int
	passed int
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		byName: make(map[string][]Record),
	}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// AddTrial appends a record to the pseudopotential's history.
func (m *MemStore) AddTrial(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byName[rec.Pseudo] = append(m.byName[rec.Pseudo], rec)
	m.total++
	if rec.OK {
		m.passed++
	}
	return nil
}

// ListTrials returns a copy of the pseudopotential's history.
func (m *MemStore) ListTrials(_ context.Context, pseudoName string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.byName[pseudoName]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

// LastTrial returns the newest record, or nil for an unknown pseudo.
func (m *MemStore) LastTrial(_ context.Context, pseudoName string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.byName[pseudoName]
	if len(recs) == 0 {
		return nil, nil
	}
	last := recs[len(recs)-1]
	return &last, nil
}

// Stats returns ledger-wide counts.
func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		Pseudos: len(m.byName),
		Trials:  m.total,
		Passed:  m.passed,
	}, nil
}
