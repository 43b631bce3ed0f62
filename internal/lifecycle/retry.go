package lifecycle

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy bounds the transport retries of one submission.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// AttemptTimeout caps a single request, including the status check that may precede it.
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2,
		AttemptTimeout: 15 * time.Second,
	}
}

func (p RetryPolicy) Validate() error {
	var errs []error

	if p.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}

	if p.InitialBackoff < 0 || p.MaxBackoff < p.InitialBackoff {
		errs = append(errs, errors.New("backoff must satisfy 0 <= initial <= max"))
	}

	if p.Multiplier < 1 {
		errs = append(errs, errors.New("multiplier must be at least 1"))
	}

	if p.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("attempt timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Backoff is the wait after the n-th failed attempt (n starts at 1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}

	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(n-1))
	if d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}

	return time.Duration(d)
}
