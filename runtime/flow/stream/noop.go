package stream

import "context"

// Noop is a Sink that discards all updates.
type Noop struct{}

// NewNoop constructs a Sink that discards all updates.
func NewNoop() Noop { return Noop{} }

// Send discards the update.
func (Noop) Send(context.Context, *Update) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
