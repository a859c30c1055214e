// Package static provides a secrets.Provider backed by fixed maps, for tests
// and single-tenant deployments.
package static

import (
	"context"
	"fmt"
	"sync"

	"goa.design/flowrun/runtime/flow/catalog"
)

// Provider serves secrets and integrations from in-memory maps.
type Provider struct {
	mu           sync.RWMutex
	secrets      map[string]string
	integrations map[string]catalog.Integration
	initialized  map[string]bool
}

// New returns a Provider over the given secrets and integrations. Either map
// may be nil.
func New(secrets map[string]string, integrations map[string]catalog.Integration) *Provider {
	if secrets == nil {
		secrets = map[string]string{}
	}
	if integrations == nil {
		integrations = map[string]catalog.Integration{}
	}
	return &Provider{
		secrets:      secrets,
		integrations: integrations,
		initialized:  make(map[string]bool),
	}
}

// Initialize implements secrets.Provider. For the static provider it only
// records that the organization was preloaded.
func (p *Provider) Initialize(_ context.Context, orgID string) error {
	p.mu.Lock()
	p.initialized[orgID] = true
	p.mu.Unlock()
	return nil
}

// Initialized reports whether Initialize ran for the organization.
func (p *Provider) Initialized(orgID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized[orgID]
}

// Secret implements secrets.Provider.
func (p *Provider) Secret(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.secrets[name]
	if !ok {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return s, nil
}

// Integration implements secrets.Provider.
func (p *Provider) Integration(_ context.Context, name string) (catalog.Integration, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	in, ok := p.integrations[name]
	if !ok {
		return catalog.Integration{}, fmt.Errorf("integration %q not found", name)
	}
	return in, nil
}
