// Package upload implements the chunk upload handler (§4.3) and the
// finalization engine (§4.4) — the two pieces of the upload-and-finalize
// state machine that sit between the session service and the publish
// coordinator. Grounded on the teacher's chunked_upload_handler.go for the
// handler shape and ComplianceScheduler for the lock-refresher task shape.
package upload

import (
	"context"
	"errors"
	"io"

	"github.com/floegw/floe/internal/apierr"
	"github.com/floegw/floe/internal/chunkstore"
	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/model"
	"github.com/floegw/floe/internal/session"
)

// ChunkHandler validates and persists one chunk, per §4.3.
type ChunkHandler struct {
	sessions *session.Service
	kv       *kv.Client
	chunks   *chunkstore.Store
}

func NewChunkHandler(sessions *session.Service, kvc *kv.Client, chunks *chunkstore.Store) *ChunkHandler {
	return &ChunkHandler{sessions: sessions, kv: kvc, chunks: chunks}
}

// UploadChunk persists chunk index of uploadID from r, verifying it
// against expectedHash (lowercase hex SHA-256), and records receipt.
func (h *ChunkHandler) UploadChunk(ctx context.Context, uploadID string, index int, expectedHash string, r io.Reader) error {
	sess, err := h.sessions.Get(ctx, uploadID)
	if err != nil {
		return err
	}
	if sess.Status == model.StatusCompleted {
		return apierr.New(apierr.CodeUploadAlreadyCompleted, 409, false, "upload already completed")
	}
	if index < 0 || index >= sess.TotalChunks {
		return apierr.New(apierr.CodeInvalidChunk, 400, false, "chunk index out of range")
	}

	isLast := index == sess.TotalChunks-1
	expectedSize := sess.ExpectedChunkSize(index)

	err = h.chunks.WriteChunk(uploadID, index, r, expectedHash, expectedSize, isLast)
	switch {
	case err == nil, errors.Is(err, chunkstore.ErrChunkExists):
		// idempotent replay: fall through to ensure set membership
	case errors.Is(err, chunkstore.ErrInProgress):
		return apierr.New(apierr.CodeChunkInProgress, 409, true, "chunk write already in progress")
	case errors.Is(err, chunkstore.ErrHashMismatch),
		errors.Is(err, chunkstore.ErrSizeMismatch),
		errors.Is(err, chunkstore.ErrTooLarge):
		return apierr.Wrap(apierr.CodeInvalidChunk, 400, false, "chunk failed integrity check", err)
	default:
		return apierr.Wrap(apierr.CodeChunkUploadFailed, 500, true, "chunk upload failed", err)
	}

	if err := h.kv.AddReceivedChunk(ctx, uploadID, index); err != nil {
		return apierr.Wrap(apierr.CodeChunkUploadFailed, 500, true, "failed to record chunk receipt", err)
	}

	if count, cerr := h.kv.ReceivedChunksCount(ctx, uploadID); cerr == nil {
		h.kv.PublishProgress(ctx, uploadID, map[string]interface{}{
			"uploadId":       uploadID,
			"chunkIndex":     index,
			"receivedCount":  count,
			"totalChunks":    sess.TotalChunks,
		})
	}
	return nil
}

// Status reports received chunk indices and session/meta lifecycle state
// for the status endpoint.
type StatusReport struct {
	UploadID        string
	ChunkSize       int64
	TotalChunks     int
	ReceivedChunks  []int
	Status          model.Status
	FileID          string
	BlobID          string
	Error           string
}

func (h *ChunkHandler) Status(ctx context.Context, uploadID string) (*StatusReport, error) {
	sess, sessErr := h.sessions.Get(ctx, uploadID)
	if sessErr == nil {
		received, err := h.kv.ReceivedChunks(ctx, uploadID)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to read chunk receipts", err)
		}
		return &StatusReport{
			UploadID:       uploadID,
			ChunkSize:      sess.ChunkSize,
			TotalChunks:    sess.TotalChunks,
			ReceivedChunks: received,
			Status:         sess.Status,
		}, nil
	}

	apiErr := apierr.As(sessErr)
	if apiErr.Code != apierr.CodeUploadNotFound {
		return nil, sessErr
	}

	meta, err := h.sessions.GetMeta(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	return &StatusReport{
		UploadID: uploadID,
		Status:   meta.Status,
		FileID:   meta.FileID,
		BlobID:   meta.BlobID,
		Error:    meta.Error,
	}, nil
}
