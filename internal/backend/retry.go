package backend

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"

	errx "github.com/Chative-reservations/server/internal/core/error"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// RetryPolicy retries operations against a backend that may be cold-starting.
type RetryPolicy struct {
	// MaxAttempts counts every attempt, the first included.
	MaxAttempts    int
	InitialDelay   time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
	// FirstAttemptGrace extends the timeout of one extra try when the very first
	// attempt times out; that extra try does not consume the attempt budget.
	FirstAttemptGrace time.Duration
	Retryable         func(error) bool
}

// DefaultRetryPolicy is 3 attempts, 2s initial delay growing by 1.5, 30s per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      2 * time.Second,
		Multiplier:        1.5,
		AttemptTimeout:    30 * time.Second,
		FirstAttemptGrace: 15 * time.Second,
		Retryable:         IsTransient,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	delay := p.InitialDelay
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		d := delay
		delay = time.Duration(float64(delay) * mult)
		return d, false
	})
	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), next)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

func (p RetryPolicy) attempt(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(actx)
}

// Do runs op until it succeeds, returns a non-retryable error, the budget is spent or
// ctx ends. op receives a context bounded by AttemptTimeout.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := p.attempt(ctx, p.AttemptTimeout, op)
		if err != nil && attempt == 1 && p.FirstAttemptGrace > 0 && isTimeout(err) && ctx.Err() == nil {
			logx.Warn().Err(err).Dur("grace", p.FirstAttemptGrace).Msg("first backend attempt timed out, retrying with grace period")
			err = p.attempt(ctx, p.AttemptTimeout+p.FirstAttemptGrace, op)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if p.retryable(err) {
			logx.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", p.MaxAttempts).Msg("backend not ready, backing off")
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsTransient reports whether err looks like a cold or unreachable dependency:
// connection failures, timeouts and 503 responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errx.StatusOf(err) == http.StatusServiceUnavailable {
		return true
	}
	if isTimeout(err) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
