package readproxy

import (
	"context"
	"io"
	"time"

	"github.com/floegw/floe/internal/apierr"
)

// Stitcher serves a [start, end] span of an object by issuing a sequence
// of ranged upstream GETs against the aggregator pool, halving segment
// size on 416/short reads and failing over to the next aggregator once a
// retry budget is exhausted.
type Stitcher struct {
	pool          *Pool
	maxRangeBytes int64
}

func NewStitcher(pool *Pool, maxRangeBytes int64) *Stitcher {
	return &Stitcher{pool: pool, maxRangeBytes: maxRangeBytes}
}

// Stream writes bytes [start, end] of the size-byte object blobID to w, in
// ascending offset order. ctx should carry both the request deadline and
// the client-disconnect abort signal.
func (s *Stitcher) Stream(ctx context.Context, blobID string, start, end, size int64, w io.Writer) error {
	off := start
	aggIdx := s.pool.startIndex()
	attemptsAtAgg := 0
	segBudget := s.maxRangeBytes // call-local; never mutates the shared Stitcher

	for off <= end {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		segSize := segBudget
		if remaining := end - off + 1; remaining < segSize {
			segSize = remaining
		}
		segEnd := off + segSize - 1
		isFullObject := off == 0 && segEnd == size-1

		resp, err := s.pool.fetch(ctx, aggIdx, blobID, off, segEnd)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			aggIdx, attemptsAtAgg, err = s.failoverOrBackoff(ctx, aggIdx, attemptsAtAgg)
			if err != nil {
				return err
			}
			continue
		}

		outcome := classify(resp, isFullObject)
		switch outcome {
		case outcomeOK:
			read, rerr := s.drain(resp.Body, w, segSize)
			resp.Body.Close()
			if read == 0 {
				return apierr.New(apierr.CodeWalrusReadFailed, 502, true, "upstream returned zero bytes")
			}
			if rerr != nil && rerr != io.EOF {
				return apierr.Wrap(apierr.CodeWalrusReadFailed, 502, true, "upstream stream error", rerr)
			}
			off += read
			if read < segSize && off <= end {
				// short read: narrow the next segment rather than treating
				// it as a failure.
				segBudget = shrink(segBudget)
			}
			s.pool.recordGood(aggIdx)
			attemptsAtAgg = 0

		case outcomeShortRead:
			resp.Body.Close()
			segBudget = shrink(segBudget)
			if segBudget <= segFloor && segSize <= segFloor {
				aggIdx, attemptsAtAgg, err = s.failoverOrBackoff(ctx, aggIdx, attemptsAtAgg)
				if err != nil {
					return err
				}
			}

		case outcomeNotFound:
			resp.Body.Close()
			return apierr.New(apierr.CodeFileContentNotFound, 404, false, "file content not found upstream")

		case outcomeRetryable:
			resp.Body.Close()
			aggIdx, attemptsAtAgg, err = s.failoverOrBackoff(ctx, aggIdx, attemptsAtAgg)
			if err != nil {
				return err
			}

		default: // outcomeFatal
			resp.Body.Close()
			return apierr.New(apierr.CodeWalrusReadFailed, 502, true, "upstream returned an unexpected status")
		}
	}
	return nil
}

// drain copies up to want bytes from r into w, returning how many bytes
// were actually copied (a short read is not itself an error here — the
// caller decides what to do with it).
func (s *Stitcher) drain(r io.Reader, w io.Writer, want int64) (int64, error) {
	return io.CopyN(w, r, want)
}

func shrink(segSize int64) int64 {
	next := segSize / 2
	if next < segFloor {
		return segFloor
	}
	return next
}

// failoverOrBackoff either backs off and retries the same aggregator (if
// under its retry budget) or advances to the next aggregator in the pool.
// Returns an error only when every aggregator has been exhausted, i.e. the
// next aggregator would wrap back around to the pool's last-known-good one.
func (s *Stitcher) failoverOrBackoff(ctx context.Context, aggIdx, attempts int) (int, int, error) {
	attempts++
	if attempts <= s.pool.retryBudget {
		delay := time.Duration(attempts) * s.pool.baseDelay
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return aggIdx, attempts, ctx.Err()
		}
		return aggIdx, attempts, nil
	}

	next := (aggIdx + 1) % len(s.pool.urls)
	if next == aggIdx || next == s.pool.startIndex() {
		return aggIdx, 0, apierr.New(apierr.CodeWalrusReadFailed, 502, true, "all aggregators exhausted")
	}
	return next, 0, nil
}
