// Package secrets defines the credential provider that preloads an
// organization's secrets and integrations before node execution and surfaces
// them through the node capability handles.
package secrets

import (
	"context"

	"goa.design/flowrun/runtime/flow/catalog"
)

// Provider resolves organization credentials. Initialize is called once per
// execution, before the first level runs, so lookups during node execution
// hit warm state. Implementations must be safe for concurrent use.
type Provider interface {
	// Initialize preloads secrets, integrations, and refresh tokens for the
	// organization.
	Initialize(ctx context.Context, orgID string) error

	// Secret resolves a named secret.
	Secret(ctx context.Context, name string) (string, error)

	// Integration resolves a named integration credential.
	Integration(ctx context.Context, name string) (catalog.Integration, error)
}
