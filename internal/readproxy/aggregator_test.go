package readproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/floegw/floe/internal/logger"
)

func TestClassify_PartialContentIsOK(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusPartialContent}
	if got := classify(resp, false); got != outcomeOK {
		t.Fatalf("got %v, want outcomeOK", got)
	}
}

func TestClassify_FullObjectOKOnlyWhenRequested(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusOK}
	if got := classify(resp, true); got != outcomeOK {
		t.Fatalf("got %v, want outcomeOK for a full-object 200", got)
	}
	if got := classify(resp, false); got == outcomeOK {
		t.Fatalf("a bare 200 for a ranged request should not classify as OK")
	}
}

func TestClassify_RangeNotSatisfiableIsShortRead(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusRequestedRangeNotSatisfiable}
	if got := classify(resp, false); got != outcomeShortRead {
		t.Fatalf("got %v, want outcomeShortRead", got)
	}
}

func TestClassify_NotFound(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusNotFound}
	if got := classify(resp, false); got != outcomeNotFound {
		t.Fatalf("got %v, want outcomeNotFound", got)
	}
}

func TestClassify_TooManyRequestsAndServerErrorsAreRetryable(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable} {
		resp := &http.Response{StatusCode: code}
		if got := classify(resp, false); got != outcomeRetryable {
			t.Fatalf("status %d: got %v, want outcomeRetryable", code, got)
		}
	}
}

func TestClassify_OtherStatusesAreFatal(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusForbidden}
	if got := classify(resp, false); got != outcomeFatal {
		t.Fatalf("got %v, want outcomeFatal", got)
	}
}

func TestPool_StartIndexAndRecordGood(t *testing.T) {
	p := NewPool([]string{"http://a", "http://b", "http://c"}, time.Second, 3, time.Millisecond, logger.New())
	if got := p.startIndex(); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
	p.recordGood(2)
	if got := p.startIndex(); got != 2 {
		t.Fatalf("got %d, want 2 after recordGood(2)", got)
	}
}

func TestPool_Fetch_SetsRangeHeaderAndHitsCorrectAggregator(t *testing.T) {
	var gotRange, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	p := NewPool([]string{srv.URL}, time.Second, 3, time.Millisecond, logger.New())
	resp, err := p.fetch(context.Background(), 0, "blob-123", 10, 20)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer resp.Body.Close()

	if gotRange != "bytes=10-20" {
		t.Fatalf("got Range %q, want bytes=10-20", gotRange)
	}
	if gotPath != "/v1/blobs/blob-123" {
		t.Fatalf("got path %q, want /v1/blobs/blob-123", gotPath)
	}
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("got status %d, want 206", resp.StatusCode)
	}
}
