package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"goa.design/flowrun/runtime/flow/run"
)

// captureSink records every update it receives.
type captureSink struct {
	mu      sync.Mutex
	updates []*Update
}

func (s *captureSink) Send(_ context.Context, u *Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) all() []*Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Update(nil), s.updates...)
}

func TestNoopSink(t *testing.T) {
	sink := NewNoop()
	require.NoError(t, sink.Send(context.Background(), &Update{Type: UpdateExecutionStarted}))
	require.NoError(t, sink.Close())
}

func TestThrottlePreservesOrder(t *testing.T) {
	inner := &captureSink{}
	throttled := NewThrottle(inner, rate.Limit(1000), 1)

	for i := 0; i < 5; i++ {
		u := &Update{
			Type:        UpdateLevelCompleted,
			ExecutionID: "exec-1",
			Timestamp:   time.Now(),
			Record:      &run.Record{ID: "exec-1"},
		}
		require.NoError(t, throttled.Send(context.Background(), u))
	}

	got := inner.all()
	require.Len(t, got, 5)
	for _, u := range got {
		assert.Equal(t, UpdateLevelCompleted, u.Type)
	}
}

func TestThrottleHonorsCancellation(t *testing.T) {
	inner := &captureSink{}
	// One token, no refill to speak of: the second send must block.
	throttled := NewThrottle(inner, rate.Limit(0.001), 1)

	require.NoError(t, throttled.Send(context.Background(), &Update{Type: UpdateExecutionStarted}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := throttled.Send(ctx, &Update{Type: UpdateExecutionFinished})
	require.Error(t, err)
	assert.Len(t, inner.all(), 1)
}
