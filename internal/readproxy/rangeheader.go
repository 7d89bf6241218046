// Package readproxy serves bytes back to clients over HTTP range
// semantics, stitching bounded sub-range fetches from a pool of aggregator
// endpoints. Grounded on the teacher's replicate.UnifiedReplicator for the
// last-known-good-index caching pattern and ReplicationService's
// NodeHealth/failure tracking, here applied to read-path failover instead
// of write-path replication.
package readproxy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/floegw/floe/internal/apierr"
)

// Range is a resolved, inclusive byte range within [0, size).
type Range struct {
	Start, End int64 // inclusive
}

// Len returns the number of bytes the range covers.
func (r Range) Len() int64 { return r.End - r.Start + 1 }

// ParseRange parses a single-range `Range` header value (`bytes=A-B`,
// `bytes=A-`, or `bytes=-N`) against an object of the given size. Returns
// (nil, nil) when header is empty, meaning "serve the full object".
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(header, "bytes=") {
		return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "unsupported range unit")
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "multiple ranges not supported")
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "malformed range")
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr != "":
		// suffix form: bytes=-N
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "malformed suffix range")
		}
		if n == 0 {
			return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "empty suffix range")
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	case startStr != "" && endStr == "":
		// open-ended form: bytes=A-
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "malformed range start")
		}
		start = s
		end = size - 1
	case startStr != "" && endStr != "":
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s {
			return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "malformed range bounds")
		}
		start, end = s, e
		if end > size-1 {
			end = size - 1
		}
	default:
		return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "malformed range")
	}

	if size == 0 || start >= size || start > end {
		return nil, apierr.New(apierr.CodeInvalidRange, 416, false, "range not satisfiable")
	}
	return &Range{Start: start, End: end}, nil
}

// ContentRangeHeader renders the `Content-Range` response header value.
func ContentRangeHeader(r Range, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}
