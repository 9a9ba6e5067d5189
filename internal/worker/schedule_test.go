package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTrigger struct{ calls atomic.Int32 }

func (c *countingTrigger) RunToday(context.Context) Summary {
	c.calls.Add(1)
	return Summary{Success: true}
}

func TestNewScheduler_RejectsBadExpression(t *testing.T) {
	_, err := NewScheduler(&countingTrigger{}, "every morning", time.UTC, discardLogger())
	assert.Error(t, err)
}

func TestScheduler_TickRunsTrigger(t *testing.T) {
	trig := &countingTrigger{}
	s, err := NewScheduler(trig, "@daily", nil, discardLogger())
	require.NoError(t, err)

	s.tick()
	assert.Equal(t, int32(1), trig.calls.Load())
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	s, err := NewScheduler(&countingTrigger{}, "0 7 * * *", time.UTC, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
