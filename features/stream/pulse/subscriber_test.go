package pulse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"

	"goa.design/flowrun/runtime/flow/stream"
)

func TestSubscribeDecodesUpdates(t *testing.T) {
	cli := newFakeClient()
	sink := newFakeSink()
	cli.streams["execution/exec-1"] = &fakeStream{sink: sink}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)

	updates, errs, cancel, err := sub.Subscribe(context.Background(), "exec-1")
	require.NoError(t, err)
	defer cancel()

	payload, err := json.Marshal(levelUpdate("exec-1"))
	require.NoError(t, err)
	sink.ch <- &streaming.Event{ID: "1-0", EventName: "level_completed", Payload: payload}

	select {
	case u := <-updates:
		require.Equal(t, stream.UpdateLevelCompleted, u.Type)
		require.Equal(t, "exec-1", u.ExecutionID)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	require.Equal(t, []string{"1-0"}, sink.acked)
}

func TestSubscribeMalformedPayload(t *testing.T) {
	cli := newFakeClient()
	sink := newFakeSink()
	cli.streams["execution/exec-1"] = &fakeStream{sink: sink}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)

	updates, errs, cancel, err := sub.Subscribe(context.Background(), "exec-1")
	require.NoError(t, err)
	defer cancel()

	sink.ch <- &streaming.Event{ID: "1-0", Payload: []byte("not-json")}

	select {
	case err := <-errs:
		require.ErrorContains(t, err, "pulse decode update")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
	_, open := <-updates
	require.False(t, open, "updates channel should close after decode error")
}

func TestSubscribeCancelClosesSink(t *testing.T) {
	cli := newFakeClient()
	sink := newFakeSink()
	cli.streams["execution/exec-1"] = &fakeStream{sink: sink}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)

	updates, _, cancel, err := sub.Subscribe(context.Background(), "exec-1")
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-updates:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
	require.True(t, sink.closed)
}

func TestSubscribeRequiresExecutionID(t *testing.T) {
	sub, err := NewSubscriber(SubscriberOptions{Client: newFakeClient()})
	require.NoError(t, err)
	_, _, _, err = sub.Subscribe(context.Background(), "")
	require.Error(t, err)
}
