package readproxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/floegw/floe/internal/apierr"
	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/logger"
	"github.com/floegw/floe/internal/model"
	"github.com/floegw/floe/internal/registry"
)

// Resolver resolves and caches the normalized on-chain fields for a
// fileId, the read-path counterpart of the finalization engine's eager
// cache write.
type Resolver struct {
	kv       *kv.Client
	registry registry.Registry
	log      *logger.Logger
	cacheTTL time.Duration
}

func NewResolver(kvc *kv.Client, reg registry.Registry, log *logger.Logger, cacheTTL time.Duration) *Resolver {
	return &Resolver{kv: kvc, registry: reg, log: log, cacheTTL: cacheTTL}
}

// GetFileFields returns the normalized asset fields for fileID, preferring
// the cache and falling back to the registry on a miss or unparseable
// cache entry.
func (r *Resolver) GetFileFields(ctx context.Context, fileID string) (*model.AssetFields, error) {
	var cached model.AssetFields
	if err := r.kv.GetFileFields(ctx, fileID, &cached); err == nil {
		if valid(&cached) {
			return &cached, nil
		}
		r.log.Debug("discarding unparseable cached fields for %s", fileID)
	} else if err != kv.ErrKeyNotFound {
		r.log.Error(fmt.Sprintf("file-fields cache read error for %s", fileID), err)
	}

	fields, err := r.registry.Resolve(ctx, fileID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, apierr.New(apierr.CodeFileNotFound, 404, false, "file not found")
		}
		return nil, apierr.Wrap(apierr.CodeSuiUnavailable, 503, true, "registry unavailable", err)
	}

	normalized, err := normalize(fields)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidFileMetadata, 502, false, "upstream returned invalid file metadata", err)
	}

	if err := r.kv.SetFileFields(ctx, fileID, normalized, r.cacheTTL); err != nil {
		r.log.Error(fmt.Sprintf("failed to cache file fields for %s", fileID), err)
	}
	return normalized, nil
}

func valid(f *model.AssetFields) bool {
	return strings.TrimSpace(f.BlobID) != "" && f.SizeBytes > 0
}

func normalize(f *model.AssetFields) (*model.AssetFields, error) {
	blobID := strings.TrimSpace(f.BlobID)
	if blobID == "" {
		return nil, errors.New("missing blob_id")
	}
	if f.SizeBytes <= 0 {
		return nil, errors.New("non-positive size_bytes")
	}
	mime := f.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	return &model.AssetFields{
		BlobID:    blobID,
		SizeBytes: f.SizeBytes,
		Mime:      mime,
		CreatedAt: f.CreatedAt,
		Owner:     f.Owner,
	}, nil
}
