package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unlimited(t *testing.T) {
	l := New(0, 0)
	assert.Nil(t, l)

	// a nil limiter never blocks
	for i := 0; i < 1000; i++ {
		assert.True(t, l.Allow())
	}
	assert.NoError(t, l.Wait(context.Background()))
	assert.Zero(t, l.Limit())
}

func TestNew_DefaultBurst(t *testing.T) {
	l := New(5, 0)
	require.NotNil(t, l)
	assert.Equal(t, 5.0, l.Limit())

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(), "op %d is within the burst", i)
	}
	assert.False(t, l.Allow(), "burst exhausted")
}

func TestWait_Paces(t *testing.T) {
	l := New(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	// first token is immediate, the next two take ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWait_Cancelled(t *testing.T) {
	l := New(1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))

	cancelled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	var unlimited *Limiter
	assert.ErrorIs(t, unlimited.Wait(cancelled), context.Canceled)
}
