package asyncgrpc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc"
)

func TestLimitedRetryIndicator(t *testing.T) {
	var indicator = asyncgrpc.LimitedRetryIndicator(3)
	var st = status.New(codes.Unavailable, "try again")

	require.True(t, indicator(1, st))
	require.True(t, indicator(2, st))
	require.False(t, indicator(3, st))
}

func TestUnlimitedRetryIndicatorExceptCodes(t *testing.T) {
	var indicator = asyncgrpc.UnlimitedRetryIndicatorExceptCodes(codes.Internal, codes.Unauthenticated)

	require.True(t, indicator(100, status.New(codes.Unavailable, "")))
	require.False(t, indicator(1, status.New(codes.Internal, "")))
	require.False(t, indicator(1, status.New(codes.Unauthenticated, "")))
}

func TestBackoffDelayCalculator(t *testing.T) {
	var calculator = asyncgrpc.BackoffDelayCalculator(100*time.Millisecond, 2)

	// Attempt counting starts at 1 on the first failure, which is
	// delayed by exactly the minimum.
	require.Equal(t, 100*time.Millisecond, calculator(1))
	require.Equal(t, 200*time.Millisecond, calculator(2))
	require.Equal(t, 400*time.Millisecond, calculator(3))
}

func TestRetryWithStrategyEventuallySucceeds(t *testing.T) {
	var attempts, resets int
	var op = func() *status.Status {
		attempts++
		if attempts < 3 {
			return status.New(codes.Unavailable, "not yet")
		}
		return status.New(codes.OK, "")
	}

	var delay = 10 * time.Millisecond
	var started = time.Now()
	var ok = asyncgrpc.RetryWithStrategy(
		asyncgrpc.UnlimitedConstantDelayStrategy(delay),
		op,
		func() { resets++ },
	)
	require.True(t, ok)
	require.Equal(t, 3, attempts)
	require.Equal(t, 2, resets)
	// Total wall time covers the sleeps of both failed attempts.
	require.GreaterOrEqual(t, time.Since(started), 2*delay)
}

func TestRetryWithStrategyExhaustsAttempts(t *testing.T) {
	var attempts int
	var op = func() *status.Status {
		attempts++
		return status.New(codes.Unavailable, "never")
	}

	var ok = asyncgrpc.RetryWithStrategy(
		asyncgrpc.LimitedBackoffStrategy(time.Millisecond, 2, 3), op, nil)
	require.False(t, ok)
	require.Equal(t, 3, attempts)
}

func TestRetryWithNilStrategyIsSingleAttempt(t *testing.T) {
	var attempts int
	var op = func() *status.Status {
		attempts++
		return status.New(codes.Unavailable, "no")
	}

	require.False(t, asyncgrpc.RetryWithStrategy(nil, op, nil))
	require.Equal(t, 1, attempts)
}

func TestRetryStopsOnUnrecoverableCode(t *testing.T) {
	var attempts int
	var op = func() *status.Status {
		attempts++
		return status.New(codes.Internal, "broken")
	}

	var started = time.Now()
	var ok = asyncgrpc.RetryWithStrategy(
		asyncgrpc.UnlimitedConstantDelayStrategyExceptCodes(time.Second, codes.Internal),
		op, nil)
	require.False(t, ok)
	require.Equal(t, 1, attempts)
	require.Less(t, time.Since(started), time.Second)
}
