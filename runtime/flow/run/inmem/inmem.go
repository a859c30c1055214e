// Package inmem provides an in-memory run.Store for tests and single-process
// deployments.
package inmem

import (
	"context"
	"errors"
	"sync"

	"goa.design/flowrun/runtime/flow/run"
)

// Store keeps execution records in memory, keyed by execution ID.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*run.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]*run.Record)}
}

// Save persists the record, replacing any previous version.
func (s *Store) Save(_ context.Context, rec *run.Record) (*run.Record, error) {
	if rec == nil || rec.ID == "" {
		return nil, errors.New("execution record id is required")
	}
	cp := *rec
	s.mu.Lock()
	s.records[cp.ID] = &cp
	s.mu.Unlock()
	return &cp, nil
}

// Load returns the stored record for the given execution ID.
func (s *Store) Load(_ context.Context, executionID string) (*run.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[executionID]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}
