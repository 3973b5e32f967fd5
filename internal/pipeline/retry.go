package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/holdgrid/bookingwatch/internal/extract"
	"github.com/holdgrid/bookingwatch/internal/mail"
	"github.com/holdgrid/bookingwatch/internal/sink"
)

// RetryPolicy decides whether and when a failed step should run again. It is
// a pure decision function: the orchestration loop owns the actual waiting,
// so the policy is testable without sleeping.
type RetryPolicy struct {
	// MaxAttempts caps total tries per step, including the first.
	MaxAttempts int

	// BackoffInitial is the delay before the first retry.
	BackoffInitial time.Duration
	// BackoffMax caps exponential growth.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to delays (0.2 = +/-20%).
	BackoffJitterFrac float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BackoffInitial <= 0 {
		p.BackoffInitial = 500 * time.Millisecond
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 10 * time.Second
	}
	if p.BackoffJitterFrac < 0 {
		p.BackoffJitterFrac = 0
	}
	return p
}

// Next reports whether attempt number `attempt` (1-based, already failed with
// err) should be followed by another try, and after what delay.
func (p RetryPolicy) Next(attempt int, err error) (time.Duration, bool) {
	p = p.withDefaults()
	if err == nil || attempt >= p.MaxAttempts {
		return 0, false
	}
	if !Retryable(err) {
		return 0, false
	}
	return backoffDelay(p.BackoffInitial, p.BackoffMax, p.BackoffJitterFrac, attempt-1), true
}

// Retryable reports whether an error belongs to a retryable kind of the
// taxonomy. Auth and validation failures are deliberately excluded.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var fetchErr *mail.TransientFetchError
	if errors.As(err, &fetchErr) {
		return true
	}
	var extractErr *extract.ExtractionError
	if errors.As(err, &extractErr) {
		return true
	}
	var sinkErr *sink.SinkError
	if errors.As(err, &sinkErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func backoffDelay(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	delay := initial
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
		if delay > max {
			delay = max
			break
		}
	}
	if jitterFrac <= 0 {
		return delay
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(delay) * j)
}
