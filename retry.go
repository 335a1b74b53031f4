package couch

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/json420/couch.go/pkg/constants"
)

// Retryer decides whether and when a failed long-poll is retried. It is only
// consulted for failures that Retryable reports as transient.
type Retryer interface {
	// NextDelay returns the delay before retry number attempt (0-based) and
	// whether to retry at all.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a poll succeeds.
	Reset()
}

// Retryable reports whether a poll failure may go away on its own: transport
// failures and 5xx replies. A 4xx reply or a malformed response will not.
func Retryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, constants.ErrClient), errors.Is(err, constants.ErrProtocol):
		return false
	}
	return errors.Is(err, constants.ErrTransport) || errors.Is(err, constants.ErrServer)
}

// ExponentialBackoffRetryer doubles (by Multiplier) the delay after every
// consecutive failure, capped at MaxDelay.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxRetries caps consecutive retries. Zero retries forever.
	MaxRetries int
	Jitter     bool
	// JitterFactor is the largest deviation as a fraction of the delay.
	JitterFactor float64
}

func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		Jitter:       true,
		JitterFactor: 0.2,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if exhausted(attempt, r.MaxRetries) {
		return 0, false
	}

	base := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	base = math.Min(base, float64(r.MaxDelay))
	if !r.Jitter || r.JitterFactor <= 0 {
		return time.Duration(base), true
	}

	//nolint:gosec // jitter
	d := base * (1 + r.JitterFactor*(2*rand.Float64()-1))
	if d < 0 {
		d = float64(r.InitialDelay)
	}
	return time.Duration(d), true
}

func (r *ExponentialBackoffRetryer) Reset() {}

// FixedDelayRetryer waits Delay before every retry.
type FixedDelayRetryer struct {
	Delay      time.Duration
	MaxRetries int
}

func NewFixedDelayRetryer(delay time.Duration, maxRetries int) *FixedDelayRetryer {
	return &FixedDelayRetryer{Delay: delay, MaxRetries: maxRetries}
}

func (r *FixedDelayRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if exhausted(attempt, r.MaxRetries) {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedDelayRetryer) Reset() {}

func exhausted(attempt, limit int) bool {
	return limit > 0 && attempt >= limit
}
