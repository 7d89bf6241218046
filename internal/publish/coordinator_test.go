package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/floegw/floe/internal/logger"
)

func newTestCoordinator(t *testing.T, client *Client, maxRetries int) *Coordinator {
	t.Helper()
	return &Coordinator{
		client:     client,
		log:        logger.New(),
		sem:        semaphore.NewWeighted(4),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: maxRetries,
		baseDelay:  time.Millisecond,
		deadline:   5 * time.Second,
	}
}

func bodyFnFor(payload string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte(payload))), nil
	}
}

func TestCoordinatorPublish_SucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		json.NewEncoder(w).Encode(map[string]string{"blobId": "blob-ok"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	co := newTestCoordinator(t, client, 3)

	blobID, outcome, err := co.Publish(context.Background(), bodyFnFor("payload"), 7, 5)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if outcome != OutcomeSuccess || blobID != "blob-ok" {
		t.Fatalf("got (%q, %s), want (blob-ok, success)", blobID, outcome)
	}
	if snap := co.Snapshot(); snap.Attempted != 1 || snap.Succeeded != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCoordinatorPublish_RetriesThenSucceeds(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"blobId": "blob-after-retries"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	co := newTestCoordinator(t, client, 5)

	blobID, outcome, err := co.Publish(context.Background(), bodyFnFor("payload"), 7, 5)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if outcome != OutcomeSuccess || blobID != "blob-after-retries" {
		t.Fatalf("got (%q, %s), want (blob-after-retries, success)", blobID, outcome)
	}
	if atomic.LoadInt64(&calls) != 3 {
		t.Fatalf("expected exactly 3 attempts, saw %d", calls)
	}
}

func TestCoordinatorPublish_BalanceTooLowDoesNotRetry(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/balance":
			json.NewEncoder(w).Encode(map[string]uint64{"balance": 1})
		default:
			atomic.AddInt64(&calls, 1)
			json.NewEncoder(w).Encode(map[string]string{"blobId": "should-not-happen"})
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1_000_000)
	co := newTestCoordinator(t, client, 5)

	_, outcome, err := co.Publish(context.Background(), bodyFnFor("payload"), 7, 5)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if outcome != OutcomeBalanceTooLow {
		t.Fatalf("got outcome %s, want balance_too_low", outcome)
	}
	if atomic.LoadInt64(&calls) != 0 {
		t.Fatalf("expected no upload attempts, saw %d", calls)
	}
	if snap := co.Snapshot(); snap.BalanceTooLow != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCoordinatorPublish_RetryExceededAfterPersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	co := newTestCoordinator(t, client, 2)

	_, outcome, err := co.Publish(context.Background(), bodyFnFor("payload"), 7, 5)
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if outcome != OutcomeRetryExceeded {
		t.Fatalf("got outcome %s, want retry_exceeded", outcome)
	}
	if snap := co.Snapshot(); snap.RetryExceeded != 1 || snap.Attempted != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCoordinatorPublish_ContextCanceledBeforeAcquire(t *testing.T) {
	client := newTestClient(t, "http://unused.invalid", 0)
	co := newTestCoordinator(t, client, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, outcome, err := co.Publish(ctx, bodyFnFor("payload"), 7, 5)
	if err == nil {
		t.Fatalf("expected an error for an already-canceled context")
	}
	if outcome != OutcomeCanceled {
		t.Fatalf("got outcome %s, want canceled", outcome)
	}
}
