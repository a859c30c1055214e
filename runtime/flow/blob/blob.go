// Package blob defines the object store consumed by parameter transformation:
// binary node inputs and outputs are held out-of-band and referenced by
// value.Ref so only JSON-serializable values cross the durable-step boundary.
package blob

import (
	"context"

	"goa.design/flowrun/runtime/flow/value"
)

type (
	// Store reads and writes binary objects. Implementations must be safe
	// for concurrent use.
	Store interface {
		// Write stores the bytes and returns a reference to them.
		Write(ctx context.Context, data []byte, opts WriteOptions) (value.Ref, error)
		// Read dereferences a stored object.
		Read(ctx context.Context, ref value.Ref) (*Object, error)
	}

	// WriteOptions qualifies a stored object.
	WriteOptions struct {
		// MimeType describes the content. Defaults to application/octet-stream.
		MimeType string
		// OrganizationID scopes the object to its owning organization.
		OrganizationID string
		// ExecutionID associates the object with an execution, when set.
		ExecutionID string
		// Filename preserves the original file name, when known.
		Filename string
	}

	// Object is a dereferenced blob.
	Object struct {
		// Data is the object content.
		Data []byte
		// MimeType describes the content.
		MimeType string
	}
)
