// Package credits defines the credit accounting contract the driver consults
// before and after an execution. Policy (reserve-and-refund versus
// check-then-charge) lives above the engine; the driver checks before running
// any node and records only the usage actually incurred.
package credits

import "context"

// Service answers pre-flight credit checks and records post-flight usage.
// Implementations must be safe for concurrent use.
type Service interface {
	// HasEnoughCredits reports whether the organization may spend the
	// estimated amount given its available balance, subscription status, and
	// overage allowance.
	HasEnoughCredits(ctx context.Context, orgID string, available, estimate int, subscription string, overageLimit int) (bool, error)

	// RecordUsage charges the organization for the usage actually incurred.
	RecordUsage(ctx context.Context, orgID string, total int) error
}
