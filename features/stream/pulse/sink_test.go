package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "goa.design/flowrun/features/stream/pulse/clients/pulse"
	"goa.design/flowrun/runtime/flow/run"
	"goa.design/flowrun/runtime/flow/stream"
)

// fakeClient hands out fake streams keyed by name and records close calls.
type fakeClient struct {
	streams   map[string]*fakeStream
	streamErr error
	closed    bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{streams: make(map[string]*fakeStream)}
}

func (c *fakeClient) Stream(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	str, ok := c.streams[name]
	if !ok {
		str = &fakeStream{}
		c.streams[name] = str
	}
	return str, nil
}

func (c *fakeClient) Close(context.Context) error {
	c.closed = true
	return nil
}

type addedEntry struct {
	event   string
	payload []byte
}

type fakeStream struct {
	added  []addedEntry
	addErr error
	sink   *fakeSink
}

func (s *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	if s.addErr != nil {
		return "", s.addErr
	}
	s.added = append(s.added, addedEntry{event: event, payload: payload})
	return "1-0", nil
}

func (s *fakeStream) NewSink(context.Context, string, ...streamopts.Sink) (clientspulse.Sink, error) {
	if s.sink == nil {
		s.sink = newFakeSink()
	}
	return s.sink, nil
}

func (s *fakeStream) Destroy(context.Context) error { return nil }

type fakeSink struct {
	ch     chan *streaming.Event
	acked  []string
	closed bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan *streaming.Event, 16)}
}

func (s *fakeSink) Subscribe() <-chan *streaming.Event { return s.ch }

func (s *fakeSink) Ack(_ context.Context, evt *streaming.Event) error {
	s.acked = append(s.acked, evt.ID)
	return nil
}

func (s *fakeSink) Close(context.Context) { s.closed = true }

func levelUpdate(executionID string) *stream.Update {
	return &stream.Update{
		Type:        stream.UpdateLevelCompleted,
		ExecutionID: executionID,
		WorkflowID:  "wf-1",
		SessionID:   "sess-1",
		Timestamp:   time.Now().UTC(),
		Record:      &run.Record{ID: executionID, WorkflowID: "wf-1", Status: run.StatusExecuting},
	}
}

func TestSendPublishesUpdate(t *testing.T) {
	cli := newFakeClient()
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), levelUpdate("exec-1")))

	str := cli.streams["execution/exec-1"]
	require.NotNil(t, str)
	require.Len(t, str.added, 1)
	require.Equal(t, "level_completed", str.added[0].event)

	var decoded stream.Update
	require.NoError(t, json.Unmarshal(str.added[0].payload, &decoded))
	require.Equal(t, "exec-1", decoded.ExecutionID)
	require.NotNil(t, decoded.Record)
	require.Equal(t, run.StatusExecuting, decoded.Record.Status)
}

func TestSendRequiresExecutionID(t *testing.T) {
	sink, err := NewSink(Options{Client: newFakeClient()})
	require.NoError(t, err)
	err = sink.Send(context.Background(), &stream.Update{Type: stream.UpdateExecutionStarted})
	require.EqualError(t, err, "monitor update missing execution id")
}

func TestCustomStreamID(t *testing.T) {
	cli := newFakeClient()
	sink, err := NewSink(Options{
		Client: cli,
		StreamID: func(u *stream.Update) (string, error) {
			return "monitor/" + u.WorkflowID, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), levelUpdate("exec-1")))
	require.Contains(t, cli.streams, "monitor/wf-1")
}

func TestStreamCreationError(t *testing.T) {
	cli := newFakeClient()
	cli.streamErr = errors.New("boom")
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	require.EqualError(t, sink.Send(context.Background(), levelUpdate("exec-1")), "boom")
}

func TestAddError(t *testing.T) {
	cli := newFakeClient()
	cli.streams["execution/exec-1"] = &fakeStream{addErr: errors.New("add-failed")}
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	require.EqualError(t, sink.Send(context.Background(), levelUpdate("exec-1")), "add-failed")
}

func TestCloseDelegates(t *testing.T) {
	cli := newFakeClient()
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.True(t, cli.closed)
}

func TestNewSinkRequiresClient(t *testing.T) {
	_, err := NewSink(Options{})
	require.Error(t, err)
}
