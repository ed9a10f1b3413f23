package asyncgrpc

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryStrategy decides, from the number of failed attempts so far and
// the last status, whether to retry and after which delay. It returns
// ok=false to give up. Attempt counting starts at 1 on the first
// failure.
type RetryStrategy func(failedAttempts int, st *status.Status) (delay time.Duration, ok bool)

// RetryIndicator decides whether a failed attempt should be retried.
type RetryIndicator func(failedAttempts int, st *status.Status) bool

// RetryDelayCalculator computes the delay before the next attempt.
type RetryDelayCalculator func(failedAttempts int) time.Duration

// NewRetryStrategy composes an indicator and a delay calculator.
func NewRetryStrategy(indicator RetryIndicator, delayCalculator RetryDelayCalculator) RetryStrategy {
	return func(failedAttempts int, st *status.Status) (time.Duration, bool) {
		if !indicator(failedAttempts, st) {
			return 0, false
		}
		return delayCalculator(failedAttempts), true
	}
}

// LimitedRetryIndicator retries up to maxAttempts failed attempts.
func LimitedRetryIndicator(maxAttempts int) RetryIndicator {
	return func(failedAttempts int, _ *status.Status) bool {
		return failedAttempts < maxAttempts
	}
}

// UnlimitedRetryIndicator always retries.
func UnlimitedRetryIndicator() RetryIndicator {
	return func(int, *status.Status) bool { return true }
}

// UnlimitedRetryIndicatorExceptCodes always retries, unless the status
// carries one of the given unrecoverable codes.
func UnlimitedRetryIndicatorExceptCodes(unrecoverable ...codes.Code) RetryIndicator {
	var set = make(map[codes.Code]struct{}, len(unrecoverable))
	for _, code := range unrecoverable {
		set[code] = struct{}{}
	}
	return func(_ int, st *status.Status) bool {
		var _, isUnrecoverable = set[st.Code()]
		return !isUnrecoverable
	}
}

// ConstantDelayCalculator delays every retry by the same duration.
func ConstantDelayCalculator(delay time.Duration) RetryDelayCalculator {
	return func(int) time.Duration { return delay }
}

// BackoffDelayCalculator delays the attempt'th retry by
// backoffFactor^(attempt-1) * minDelay.
func BackoffDelayCalculator(minDelay time.Duration, backoffFactor float64) RetryDelayCalculator {
	return func(failedAttempts int) time.Duration {
		var scale = math.Pow(backoffFactor, float64(failedAttempts-1))
		return time.Duration(scale * float64(minDelay))
	}
}

// LimitedBackoffStrategy composes exponential backoff with an attempt
// limit.
func LimitedBackoffStrategy(minDelay time.Duration, backoffFactor float64, maxAttempts int) RetryStrategy {
	return NewRetryStrategy(
		LimitedRetryIndicator(maxAttempts),
		BackoffDelayCalculator(minDelay, backoffFactor))
}

// UnlimitedConstantDelayStrategy retries forever with a fixed delay.
func UnlimitedConstantDelayStrategy(delay time.Duration) RetryStrategy {
	return NewRetryStrategy(UnlimitedRetryIndicator(), ConstantDelayCalculator(delay))
}

// UnlimitedConstantDelayStrategyExceptCodes retries forever with a
// fixed delay, except on the given unrecoverable codes.
func UnlimitedConstantDelayStrategyExceptCodes(delay time.Duration, unrecoverable ...codes.Code) RetryStrategy {
	return NewRetryStrategy(
		UnlimitedRetryIndicatorExceptCodes(unrecoverable...),
		ConstantDelayCalculator(delay))
}

// RetryWithStrategy runs op until it succeeds or the strategy gives
// up. Between attempts it sleeps the strategy's delay and then calls
// reset, which refreshes caller-scoped state such as a fresh call
// context. A nil strategy means a single attempt.
func RetryWithStrategy(strategy RetryStrategy, op func() *status.Status, reset func()) bool {
	var failedAttempts int
	for {
		var st = op()
		if st.Code() == codes.OK {
			return true
		}
		if strategy == nil {
			return false
		}
		failedAttempts++
		var delay, retry = strategy(failedAttempts, st)
		if !retry {
			return false
		}
		log.WithFields(log.Fields{
			"attempts": failedAttempts,
			"delay":    delay,
			"status":   st.Code(),
		}).Info("retrying after delay")
		time.Sleep(delay)

		if reset != nil {
			reset()
		}
	}
}
