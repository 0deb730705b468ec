package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurstThenThrottles(t *testing.T) {
	limiter := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		require.True(t, limiter.allow(), "burst token %d", i)
	}
	require.False(t, limiter.allow())
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := newRateLimiter(1, 10*time.Millisecond)

	require.True(t, limiter.allow())
	require.False(t, limiter.allow())

	time.Sleep(20 * time.Millisecond)
	require.True(t, limiter.allow())
}

func TestRateLimiterSanitizesArguments(t *testing.T) {
	limiter := newRateLimiter(0, 0)
	require.True(t, limiter.allow())
}
