package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	streamopts "goa.design/pulse/streaming/options"

	clientspulse "goa.design/flowrun/features/stream/pulse/clients/pulse"
	"goa.design/flowrun/runtime/flow/stream"
)

type (
	// SubscriberOptions configures a Pulse-backed monitor subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume updates. Required.
		Client clientspulse.Client
		// SinkName identifies the Pulse consumer group. Defaults to
		// "flowrun_monitor".
		SinkName string
		// Buffer specifies the update channel capacity. Defaults to 64.
		Buffer int
	}

	// Subscriber consumes a monitor stream and emits decoded updates. UI
	// surfaces attach one per watched execution.
	Subscriber struct {
		client clientspulse.Client
		buffer int
		name   string
	}
)

// NewSubscriber constructs a Pulse-backed monitor subscriber.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "flowrun_monitor"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscriber{client: opts.Client, buffer: buffer, name: name}, nil
}

// Subscribe opens a consumer group on the execution's monitor stream and
// returns channels for updates and errors. The returned cancel function stops
// consumption and closes both channels.
func (s *Subscriber) Subscribe(
	ctx context.Context,
	executionID string,
	opts ...streamopts.Sink,
) (<-chan *stream.Update, <-chan error, context.CancelFunc, error) {
	if executionID == "" {
		return nil, nil, nil, errors.New("execution id is required")
	}
	str, err := s.client.Stream(fmt.Sprintf("execution/%s", executionID))
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	updates := make(chan *stream.Update, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, updates, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return updates, errs, cancelFunc, nil
}

func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- *stream.Update, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			var u stream.Update
			if err := json.Unmarshal(evt.Payload, &u); err != nil {
				errs <- fmt.Errorf("pulse decode update: %w", err)
				return
			}
			select {
			case out <- &u:
			case <-ctx.Done():
				return
			}
			if ackErr := sink.Ack(ctx, evt); ackErr != nil {
				errs <- fmt.Errorf("pulse ack: %w", ackErr)
				return
			}
		}
	}
}
