package readproxy

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/floegw/floe/internal/logger"
)

// segFloor is the smallest segment size the stitcher will fall back to
// before giving up on an aggregator.
const segFloor = 256 * 1024

// segmentOutcome classifies a fetch attempt for the stitcher's retry logic.
type segmentOutcome int

const (
	outcomeOK segmentOutcome = iota
	outcomeShortRead
	outcomeRetryable // 429/5xx/network — worth a backoff-and-retry
	outcomeNotFound
	outcomeFatal // anything else non-2xx
)

// Pool holds an ordered list of aggregator base URLs and remembers which
// one last served a request successfully, the way the teacher's
// UnifiedReplicator caches a working ReplicationService per tenant instead
// of re-resolving one on every call.
type Pool struct {
	urls []string
	http *http.Client
	log  *logger.Logger

	mu       sync.Mutex
	lastGood int

	retryBudget int
	baseDelay   time.Duration
}

func NewPool(urls []string, timeout time.Duration, retryBudget int, baseDelay time.Duration, log *logger.Logger) *Pool {
	return &Pool{
		urls:        urls,
		http:        &http.Client{Timeout: timeout},
		log:         log,
		retryBudget: retryBudget,
		baseDelay:   baseDelay,
	}
}

func (p *Pool) startIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastGood
}

func (p *Pool) recordGood(idx int) {
	p.mu.Lock()
	p.lastGood = idx
	p.mu.Unlock()
}

// fetch issues one ranged GET to urls[idx] for blobID and returns the raw
// response for the caller to classify and stream from.
func (p *Pool) fetch(ctx context.Context, idx int, blobID string, start, end int64) (*http.Response, error) {
	url := fmt.Sprintf("%s/v1/blobs/%s", p.urls[idx], blobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	return p.http.Do(req)
}

// classify maps an HTTP response's status to a segmentOutcome, given
// whether this segment is supposed to cover the entire object.
func classify(resp *http.Response, isFullObjectRequest bool) segmentOutcome {
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		return outcomeOK
	case resp.StatusCode == http.StatusOK && isFullObjectRequest:
		return outcomeOK
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return outcomeShortRead
	case resp.StatusCode == http.StatusNotFound:
		return outcomeNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode/100 == 5:
		return outcomeRetryable
	default:
		return outcomeFatal
	}
}
