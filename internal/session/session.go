// Package session implements the control-plane session/meta service
// described in spec §4.2: creating a session record (on-disk chunk
// directory, then one atomic KV multi-op) and reading it back defensively,
// the way the teacher's CacheService composes RedisClient calls into
// domain-shaped operations.
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/floegw/floe/internal/apierr"
	"github.com/floegw/floe/internal/chunkstore"
	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/logger"
	"github.com/floegw/floe/internal/model"
)

// Service creates and reads upload sessions, keeping the KV hash and the
// on-disk chunk directory in lockstep.
type Service struct {
	kv     *kv.Client
	chunks *chunkstore.Store
	log    *logger.Logger

	sessionTTL   time.Duration
	metaTTLExtra time.Duration
}

func New(kvc *kv.Client, chunks *chunkstore.Store, log *logger.Logger, sessionTTL, metaTTLExtra time.Duration) *Service {
	return &Service{kv: kvc, chunks: chunks, log: log, sessionTTL: sessionTTL, metaTTLExtra: metaTTLExtra}
}

// Create records a brand-new session: it makes the chunk directory first
// (cheap, locally reversible) and only then writes the KV hash, so a crash
// between the two leaves an empty, harmless directory rather than a KV
// record pointing at a missing one.
func (s *Service) Create(ctx context.Context, sess *model.Session) error {
	if err := s.chunks.EnsureUploadDir(sess.UploadID); err != nil {
		return apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to allocate upload directory", err)
	}

	metaTTL := s.sessionTTL + s.metaTTLExtra
	sessionFields := map[string]string{
		"uploadId":    sess.UploadID,
		"filename":    sess.Filename,
		"contentType": sess.ContentType,
		"sizeBytes":   strconv.FormatInt(sess.SizeBytes, 10),
		"chunkSize":   strconv.FormatInt(sess.ChunkSize, 10),
		"totalChunks": strconv.Itoa(sess.TotalChunks),
		"epochs":      strconv.Itoa(sess.Epochs),
		"status":      string(model.StatusUploading),
		"createdAt":   sess.CreatedAt.UTC().Format(time.RFC3339),
	}
	metaFields := map[string]string{
		"status":    string(model.StatusUploading),
		"createdAt": sess.CreatedAt.UTC().Format(time.RFC3339),
		"sizeBytes": strconv.FormatInt(sess.SizeBytes, 10),
	}

	if err := s.kv.CreateSession(ctx, sess.UploadID, sessionFields, s.sessionTTL, metaFields, metaTTL); err != nil {
		return apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to record upload session", err)
	}
	return nil
}

// Get reads back the session hash and parses it defensively: any
// malformed numeric field yields CORRUPT_UPLOAD_SESSION rather than a
// panic or a silently wrong zero value, per §4.2's edge case.
func (s *Service) Get(ctx context.Context, uploadID string) (*model.Session, error) {
	fields, err := s.kv.GetSessionHash(ctx, uploadID)
	if err != nil {
		if err == kv.ErrKeyNotFound {
			return nil, apierr.New(apierr.CodeUploadNotFound, 404, false, "upload session not found")
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to read upload session", err)
	}

	sess, err := parseSession(uploadID, fields)
	if err != nil {
		s.log.Error(fmt.Sprintf("corrupt session %s", uploadID), err)
		return nil, apierr.New(apierr.CodeCorruptUploadSession, 500, false, "upload session is corrupt")
	}
	return sess, nil
}

// GetMeta reads and parses the durable meta hash. It never resurrects a
// terminal session — the caller decides what a terminal status means.
func (s *Service) GetMeta(ctx context.Context, uploadID string) (*model.Meta, error) {
	fields, err := s.kv.GetMetaHash(ctx, uploadID)
	if err != nil {
		if err == kv.ErrKeyNotFound {
			return nil, apierr.New(apierr.CodeUploadNotFound, 404, false, "upload not found")
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to read upload metadata", err)
	}
	return parseMeta(fields)
}

func parseSession(uploadID string, f map[string]string) (*model.Session, error) {
	size, err := strconv.ParseInt(f["sizeBytes"], 10, 64)
	if err != nil {
		return nil, err
	}
	chunkSize, err := strconv.ParseInt(f["chunkSize"], 10, 64)
	if err != nil {
		return nil, err
	}
	total, err := strconv.Atoi(f["totalChunks"])
	if err != nil {
		return nil, err
	}
	epochs, err := strconv.Atoi(f["epochs"])
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, f["createdAt"])
	if err != nil {
		return nil, err
	}

	return &model.Session{
		UploadID:    uploadID,
		Filename:    f["filename"],
		ContentType: f["contentType"],
		SizeBytes:   size,
		ChunkSize:   chunkSize,
		TotalChunks: total,
		Epochs:      epochs,
		Status:      model.Status(f["status"]),
		CreatedAt:   createdAt,
	}, nil
}

func parseMeta(f map[string]string) (*model.Meta, error) {
	m := &model.Meta{
		Status: model.Status(f["status"]),
		FileID: f["fileId"],
		BlobID: f["blobId"],
		Error:  f["error"],
	}
	if v, ok := f["sizeBytes"]; ok && v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		m.SizeBytes = size
	}
	if v, ok := f["createdAt"]; ok && v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		m.CreatedAt = t
	}
	m.CompletedAt = parseOptionalTime(f["completedAt"])
	m.FailedAt = parseOptionalTime(f["failedAt"])
	m.CanceledAt = parseOptionalTime(f["canceledAt"])
	m.ExpiredAt = parseOptionalTime(f["expiredAt"])
	m.FinalizingAt = parseOptionalTime(f["finalizingAt"])
	return m, nil
}

func parseOptionalTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// MetaFieldsForStatus builds the HSet field map for a status transition,
// stamping the matching timestamp field.
func MetaFieldsForStatus(status model.Status, now time.Time) map[string]string {
	f := map[string]string{"status": string(status)}
	ts := now.UTC().Format(time.RFC3339)
	switch status {
	case model.StatusFinalizing:
		f["finalizingAt"] = ts
	case model.StatusCompleted:
		f["completedAt"] = ts
	case model.StatusFailed:
		f["failedAt"] = ts
	case model.StatusCanceled:
		f["canceledAt"] = ts
	case model.StatusExpired:
		f["expiredAt"] = ts
	}
	return f
}
