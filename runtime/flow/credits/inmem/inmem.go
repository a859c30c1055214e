// Package inmem provides an in-memory credit ledger for tests and
// single-tenant deployments.
package inmem

import (
	"context"
	"sync"
)

// Ledger tracks per-organization usage in memory. The pre-flight check
// allows spending while estimate <= available + overageLimit when the
// subscription is active, and estimate <= available otherwise.
type Ledger struct {
	mu    sync.Mutex
	spent map[string]int
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{spent: make(map[string]int)}
}

// HasEnoughCredits implements credits.Service.
func (l *Ledger) HasEnoughCredits(_ context.Context, _ string, available, estimate int, subscription string, overageLimit int) (bool, error) {
	limit := available
	if subscription == "active" {
		limit += overageLimit
	}
	return estimate <= limit, nil
}

// RecordUsage implements credits.Service.
func (l *Ledger) RecordUsage(_ context.Context, orgID string, total int) error {
	l.mu.Lock()
	l.spent[orgID] += total
	l.mu.Unlock()
	return nil
}

// Spent returns the usage recorded for the organization.
func (l *Ledger) Spent(orgID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent[orgID]
}
