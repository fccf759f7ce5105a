package dispatch

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/viant/spawner/model/task"
)

// linearBackOff grows the delay by the base delay on every attempt.
type linearBackOff struct {
	policy  *task.RetryPolicy
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	delay := b.policy.Delay(b.attempt)
	b.attempt++
	return delay
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// newBackOff returns the delay sequence of policy: fixed base, base*(n+1) or
// base*2^n for the n-th retry.
func newBackOff(policy *task.RetryPolicy) backoff.BackOff {
	switch policy.Backoff {
	case task.BackoffFixed:
		return backoff.NewConstantBackOff(policy.BaseDelay)
	case task.BackoffLinear:
		return &linearBackOff{policy: policy}
	}
	ret := &backoff.ExponentialBackOff{
		InitialInterval:     policy.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	ret.Reset()
	return ret
}
