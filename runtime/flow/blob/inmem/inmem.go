// Package inmem provides an in-memory blob.Store for tests and development.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"goa.design/flowrun/runtime/flow/blob"
	"goa.design/flowrun/runtime/flow/value"
)

// Store keeps objects in memory, keyed by generated IDs. Safe for concurrent
// use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*blob.Object
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]*blob.Object)}
}

// Write implements blob.Store.
func (s *Store) Write(_ context.Context, data []byte, opts blob.WriteOptions) (value.Ref, error) {
	mime := opts.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	ref := value.Ref{ID: uuid.NewString(), MimeType: mime, Filename: opts.Filename}
	s.mu.Lock()
	s.objects[ref.ID] = &blob.Object{Data: cp, MimeType: mime}
	s.mu.Unlock()
	return ref, nil
}

// Read implements blob.Store.
func (s *Store) Read(_ context.Context, ref value.Ref) (*blob.Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[ref.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", ref.ID)
	}
	return obj, nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
