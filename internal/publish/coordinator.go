package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/floegw/floe/internal/logger"
)

// Outcome classifies a finished publish attempt for the coordinator's
// metrics surface, grounded on the teacher's health package's habit of
// counting successes/failures per component rather than just logging them.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeBalanceTooLow Outcome = "balance_too_low"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeRetryExceeded Outcome = "retry_exceeded"
	OutcomeCanceled      Outcome = "canceled"
	OutcomeError         Outcome = "error"
)

// Metrics is a snapshot of the coordinator's lifetime outcome counts.
type Metrics struct {
	Attempted     int64
	Succeeded     int64
	BalanceTooLow int64
	TimedOut      int64
	RetryExceeded int64
	Canceled      int64
	Errored       int64
	InFlight      int64
}

// Coordinator bounds how many publish attempts run concurrently, paces
// them with a token-bucket limiter, and retries failed attempts with
// linear backoff up to a fixed cap — the combination the teacher's
// compliance scheduler and replication health checks each do half of,
// here composed for the outbound publish path.
type Coordinator struct {
	client *Client
	log    *logger.Logger

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	maxRetries int
	baseDelay  time.Duration
	deadline   time.Duration

	attempted, succeeded, balanceTooLow, timedOut, retryExceeded, canceled, errored, inFlight int64
}

type CoordinatorConfig struct {
	Concurrency int64
	RateLimit   rate.Limit
	RateBurst   int
	MaxRetries  int
	BaseDelay   time.Duration
	Deadline    time.Duration
}

func NewCoordinator(client *Client, cfg CoordinatorConfig, log *logger.Logger) *Coordinator {
	return &Coordinator{
		client:     client,
		log:        log,
		sem:        semaphore.NewWeighted(cfg.Concurrency),
		limiter:    rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		deadline:   cfg.Deadline,
	}
}

// Publish acquires a concurrency slot and a rate-limiter token, then
// attempts the upload with bounded linear-backoff retries. bodyFn must
// return a fresh reader positioned at the start of the object on every
// call, since a failed attempt can't reuse a partially-consumed body.
func (co *Coordinator) Publish(ctx context.Context, bodyFn func() (io.ReadCloser, error), sizeBytes int64, epochs int) (blobID string, outcome Outcome, err error) {
	if err := co.sem.Acquire(ctx, 1); err != nil {
		return "", OutcomeCanceled, err
	}
	defer co.sem.Release(1)

	atomic.AddInt64(&co.inFlight, 1)
	defer atomic.AddInt64(&co.inFlight, -1)
	atomic.AddInt64(&co.attempted, 1)

	var lastErr error
	for attempt := 0; attempt <= co.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * co.baseDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				atomic.AddInt64(&co.canceled, 1)
				return "", OutcomeCanceled, ctx.Err()
			}
		}

		if err := co.limiter.Wait(ctx); err != nil {
			atomic.AddInt64(&co.canceled, 1)
			return "", OutcomeCanceled, err
		}

		body, err := bodyFn()
		if err != nil {
			lastErr = err
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, co.deadline)
		blobID, err = co.client.Upload(attemptCtx, body, sizeBytes, epochs)
		cancel()
		body.Close()

		if err == nil {
			atomic.AddInt64(&co.succeeded, 1)
			return blobID, OutcomeSuccess, nil
		}

		lastErr = err
		if errors.Is(err, ErrBalanceTooLow) {
			atomic.AddInt64(&co.balanceTooLow, 1)
			return "", OutcomeBalanceTooLow, err
		}
		if ctx.Err() != nil {
			atomic.AddInt64(&co.canceled, 1)
			return "", OutcomeCanceled, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			co.log.Error(fmt.Sprintf("publish attempt %d timed out", attempt), err)
			continue
		}
		co.log.Error(fmt.Sprintf("publish attempt %d failed", attempt), err)
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		atomic.AddInt64(&co.timedOut, 1)
		return "", OutcomeTimeout, lastErr
	}
	atomic.AddInt64(&co.retryExceeded, 1)
	return "", OutcomeRetryExceeded, lastErr
}

// Snapshot returns the coordinator's current lifetime counters.
func (co *Coordinator) Snapshot() Metrics {
	return Metrics{
		Attempted:     atomic.LoadInt64(&co.attempted),
		Succeeded:     atomic.LoadInt64(&co.succeeded),
		BalanceTooLow: atomic.LoadInt64(&co.balanceTooLow),
		TimedOut:      atomic.LoadInt64(&co.timedOut),
		RetryExceeded: atomic.LoadInt64(&co.retryExceeded),
		Canceled:      atomic.LoadInt64(&co.canceled),
		Errored:       atomic.LoadInt64(&co.errored),
		InFlight:      atomic.LoadInt64(&co.inFlight),
	}
}
