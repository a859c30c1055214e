// Package pulse exposes a stream.Sink implementation that publishes execution
// monitor updates to goa.design/pulse streams. Services build a Redis client,
// pass it to the Pulse client, and hand the resulting sink to the driver so
// monitoring surfaces can follow executions in near real time.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	clientspulse "goa.design/flowrun/features/stream/pulse/clients/pulse"
	"goa.design/flowrun/runtime/flow/stream"
)

type (
	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish updates. Required.
		Client clientspulse.Client
		// StreamID derives the target Pulse stream from an update. Defaults
		// to `execution/<ExecutionID>`.
		StreamID func(*stream.Update) (string, error)
		// Marshal overrides the update serialization, primarily for tests.
		Marshal func(*stream.Update) ([]byte, error)
	}

	// Sink publishes monitor updates into Pulse streams. Safe for concurrent
	// Send calls.
	Sink struct {
		client   clientspulse.Client
		streamID func(*stream.Update) (string, error)
		marshal  func(*stream.Update) ([]byte, error)
	}
)

// NewSink constructs a Pulse-backed monitor sink.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	s := &Sink{
		client:   opts.Client,
		streamID: defaultStreamID,
		marshal:  defaultMarshal,
	}
	if opts.StreamID != nil {
		s.streamID = opts.StreamID
	}
	if opts.Marshal != nil {
		s.marshal = opts.Marshal
	}
	return s, nil
}

// Send publishes the update to the derived Pulse stream. The update type is
// used as the Pulse event name so consumers can filter without decoding.
func (s *Sink) Send(ctx context.Context, u *stream.Update) error {
	streamID, err := s.streamID(u)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	payload, err := s.marshal(u)
	if err != nil {
		return err
	}
	if _, err := handle.Add(ctx, string(u.Type), payload); err != nil {
		return err
	}
	return nil
}

// Close delegates to the Pulse client.
func (s *Sink) Close() error {
	return s.client.Close(context.Background())
}

func defaultStreamID(u *stream.Update) (string, error) {
	if u.ExecutionID == "" {
		return "", errors.New("monitor update missing execution id")
	}
	return fmt.Sprintf("execution/%s", u.ExecutionID), nil
}

func defaultMarshal(u *stream.Update) ([]byte, error) {
	return json.Marshal(u)
}
