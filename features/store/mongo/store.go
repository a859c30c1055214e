// Package mongo implements the execution store on MongoDB. Records are
// written once per execution by the driver's finalize step and read back by
// platform surfaces (history views, billing reconciliation).
package mongo

import (
	"context"
	"errors"

	mongoc "goa.design/flowrun/features/store/mongo/clients/mongo"
	"goa.design/flowrun/runtime/flow/run"
)

// Store implements run.Store by delegating to the Mongo client.
type Store struct {
	client mongoc.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client mongoc.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Save persists the execution record.
func (s *Store) Save(ctx context.Context, rec *run.Record) (*run.Record, error) {
	return s.client.SaveExecution(ctx, rec)
}

// Load retrieves an execution record by ID. Returns nil when absent.
func (s *Store) Load(ctx context.Context, executionID string) (*run.Record, error) {
	return s.client.LoadExecution(ctx, executionID)
}

// List returns a workflow's execution records, most recent first.
func (s *Store) List(ctx context.Context, workflowID string, limit int64) ([]*run.Record, error) {
	return s.client.ListExecutions(ctx, workflowID, limit)
}
