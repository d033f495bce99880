package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllow_ConsumesBurstThenBlocks(t *testing.T) {
	l := New(60, 2, time.Minute)
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())
}

func TestWait_UnblocksWhenContextCancelled(t *testing.T) {
	l := New(1, 0, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitN_ErrorsWhenNExceedsBurst(t *testing.T) {
	l := New(60, 5, time.Minute)
	err := l.WaitN(context.Background(), 6)
	require.Error(t, err)
}

func TestReset_RestoresFullBurst(t *testing.T) {
	l := New(60, 3, time.Minute)
	l.Allow()
	l.Allow()
	l.Allow()
	require.False(t, l.Allow())
	l.Reset()
	require.True(t, l.Allow())
}

func TestStats_ReportsAvailableTokensAndWindow(t *testing.T) {
	l := New(60, 2, time.Minute)
	l.Allow()
	stats := l.Stats()
	require.Equal(t, 60, stats.MaxPerWindow)
	require.Equal(t, 2, stats.Burst)
	require.Equal(t, 1, stats.RequestsInWindow)
}
