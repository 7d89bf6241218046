package readproxy

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/floegw/floe/internal/apierr"
)

func TestShrink_HalvesUntilFloor(t *testing.T) {
	if got := shrink(1024 * 1024); got != 512*1024 {
		t.Fatalf("got %d, want %d", got, 512*1024)
	}
	if got := shrink(segFloor); got != segFloor {
		t.Fatalf("expected shrink to clamp at the floor, got %d", got)
	}
	if got := shrink(segFloor + 100); got != segFloor {
		t.Fatalf("expected a near-floor size to clamp down, got %d", got)
	}
}

func TestFailoverOrBackoff_RetriesSameAggregatorWithinBudget(t *testing.T) {
	p := NewPool([]string{"http://a", "http://b"}, time.Second, 2, time.Millisecond, nil)
	s := NewStitcher(p, 1024)

	idx, attempts, err := s.failoverOrBackoff(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("failoverOrBackoff: %v", err)
	}
	if idx != 0 || attempts != 1 {
		t.Fatalf("got (%d, %d), want (0, 1)", idx, attempts)
	}
}

func TestFailoverOrBackoff_AdvancesToNextAggregatorAfterBudget(t *testing.T) {
	p := NewPool([]string{"http://a", "http://b"}, time.Second, 1, time.Millisecond, nil)
	s := NewStitcher(p, 1024)

	idx, attempts, err := s.failoverOrBackoff(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("failoverOrBackoff: %v", err)
	}
	if idx != 1 || attempts != 0 {
		t.Fatalf("got (%d, %d), want (1, 0)", idx, attempts)
	}
}

func TestFailoverOrBackoff_SingleAggregatorExhaustsImmediately(t *testing.T) {
	p := NewPool([]string{"http://only"}, time.Second, 1, time.Millisecond, nil)
	s := NewStitcher(p, 1024)

	_, _, err := s.failoverOrBackoff(context.Background(), 0, 1)
	apiErr := apierr.As(err)
	if apiErr == nil || apiErr.Code != apierr.CodeWalrusReadFailed {
		t.Fatalf("expected a WALRUS_READ_FAILED error, got %v", err)
	}
}

func TestStitcher_Stream_SingleSegmentFullObject(t *testing.T) {
	const payload = "hello world, this is the full object body"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	p := NewPool([]string{srv.URL}, time.Second, 2, time.Millisecond, nil)
	s := NewStitcher(p, int64(len(payload)))

	var buf bytes.Buffer
	err := s.Stream(context.Background(), "blob-1", 0, int64(len(payload))-1, int64(len(payload)), &buf)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if buf.String() != payload {
		t.Fatalf("got %q, want %q", buf.String(), payload)
	}
}

func TestStitcher_Stream_NotFoundPropagatesAsFileContentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewPool([]string{srv.URL}, time.Second, 2, time.Millisecond, nil)
	s := NewStitcher(p, 1024)

	var buf bytes.Buffer
	err := s.Stream(context.Background(), "blob-missing", 0, 99, 100, &buf)
	apiErr := apierr.As(err)
	if apiErr == nil || apiErr.Code != apierr.CodeFileContentNotFound || apiErr.HTTPStatus != 404 {
		t.Fatalf("expected a 404 FILE_CONTENT_NOT_FOUND error, got %v", err)
	}
}

func TestStitcher_Stream_MultiSegmentAdvancesOffsets(t *testing.T) {
	const total = "0123456789ABCDEFGHIJ" // 20 bytes
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := strings.TrimPrefix(r.Header.Get("Range"), "bytes=")
		var start, end int64
		if _, err := fmt.Sscanf(rng, "%d-%d", &start, &end); err != nil {
			t.Fatalf("bad range header %q: %v", rng, err)
		}
		if end > int64(len(total))-1 {
			end = int64(len(total)) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/20", start, end))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(total[start : end+1]))
	}))
	defer srv.Close()

	p := NewPool([]string{srv.URL}, time.Second, 2, time.Millisecond, nil)
	s := NewStitcher(p, 7) // force multiple segments across a 20-byte object

	var buf bytes.Buffer
	err := s.Stream(context.Background(), "blob-multi", 0, int64(len(total))-1, int64(len(total)), &buf)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if buf.String() != total {
		t.Fatalf("got %q, want %q", buf.String(), total)
	}
}
