package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/floegw/floe/internal/apierr"
	"github.com/floegw/floe/internal/chunkstore"
	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/logger"
	"github.com/floegw/floe/internal/model"
	"github.com/floegw/floe/internal/publish"
	"github.com/floegw/floe/internal/registry"
	"github.com/floegw/floe/internal/session"
)

// errLockLost signals that the finalize lock was lost mid-protocol to
// another actor — the caller must NOT mark the session failed, per §4.4's
// failure semantics.
var errLockLost = errors.New("upload: finalize lock lost")

// Result is the commit triple returned to the complete endpoint.
type Result struct {
	FileID    string
	BlobID    string
	SizeBytes int64
}

// Engine runs the finalization protocol: lock, assemble, publish, mint,
// commit, release — grounded on the teacher's ComplianceScheduler for the
// background lease-refresher shape and CacheService for the KV checkpoint
// writes.
type Engine struct {
	sessions    *session.Service
	kv          *kv.Client
	chunks      *chunkstore.Store
	coordinator *publish.Coordinator
	registry    registry.Registry
	log         *logger.Logger

	lockTTL         time.Duration
	refreshInterval time.Duration
	metaTTL         time.Duration
	fieldsCacheTTL  time.Duration
	exposeBlobID    bool
}

type Config struct {
	LockTTL         time.Duration
	RefreshInterval time.Duration
	MetaTTL         time.Duration
	FieldsCacheTTL  time.Duration
}

func NewEngine(sessions *session.Service, kvc *kv.Client, chunks *chunkstore.Store, coordinator *publish.Coordinator, reg registry.Registry, log *logger.Logger, cfg Config) *Engine {
	return &Engine{
		sessions:        sessions,
		kv:              kvc,
		chunks:          chunks,
		coordinator:     coordinator,
		registry:        reg,
		log:             log,
		lockTTL:         cfg.LockTTL,
		refreshInterval: cfg.RefreshInterval,
		metaTTL:         cfg.MetaTTL,
		fieldsCacheTTL:  cfg.FieldsCacheTTL,
	}
}

// Complete runs the full finalization protocol for uploadID, idempotently.
func (e *Engine) Complete(ctx context.Context, uploadID string) (*Result, error) {
	meta, err := e.sessions.GetMeta(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if meta.Status == model.StatusCompleted {
		return e.resultFromMeta(meta)
	}

	token := uuid.NewString()
	acquired, err := e.kv.TryAcquireLock(ctx, uploadID, token, e.lockTTL)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to acquire finalize lock", err)
	}
	if !acquired {
		return nil, apierr.New(apierr.CodeFinalizationInProgress, 409, true, "finalization already in progress")
	}

	lockCtx, cancelRefresh := context.WithCancel(ctx)
	var lost int32
	var wg sync.WaitGroup
	wg.Add(1)
	go e.refreshLease(lockCtx, &wg, uploadID, token, &lost)

	result, err := e.run(ctx, uploadID, token, &lost)

	cancelRefresh()
	wg.Wait()

	if lockStillOwned, relErr := e.kv.ReleaseLock(context.Background(), uploadID, token); relErr == nil && lockStillOwned {
		e.log.Debug("released finalize lock for %s", uploadID)
	}

	if err != nil && !errors.Is(err, errLockLost) {
		e.markFailed(context.Background(), uploadID, err)
		return nil, err
	}
	if errors.Is(err, errLockLost) {
		return nil, apierr.New(apierr.CodeFinalizationInProgress, 409, true, "finalize lease was lost to another worker")
	}
	return result, nil
}

// refreshLease re-reads the lock every refreshInterval and extends its TTL
// as long as this process still owns it; on loss, it sets *lost and stops.
func (e *Engine) refreshLease(ctx context.Context, wg *sync.WaitGroup, uploadID, token string, lost *int32) {
	defer wg.Done()
	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := e.kv.RefreshLock(context.Background(), uploadID, token, e.lockTTL)
			if err != nil {
				e.log.Error(fmt.Sprintf("lock refresh error for %s", uploadID), err)
				continue
			}
			if !ok {
				atomic.StoreInt32(lost, 1)
				return
			}
		}
	}
}

func (e *Engine) leaseLost(lost *int32) bool {
	return atomic.LoadInt32(lost) == 1
}

func (e *Engine) run(ctx context.Context, uploadID, token string, lost *int32) (*Result, error) {
	meta, err := e.sessions.GetMeta(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if meta.Status == model.StatusCompleted {
		return e.resultFromMeta(meta)
	}
	if e.leaseLost(lost) {
		return nil, errLockLost
	}

	sess, err := e.sessions.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	if err := e.kv.SetMetaFields(ctx, uploadID, session.MetaFieldsForStatus(model.StatusFinalizing, time.Now())); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to mark finalizing", err)
	}

	if err := e.checkIntegrity(ctx, uploadID, sess.TotalChunks); err != nil {
		return nil, err
	}
	if e.leaseLost(lost) {
		return nil, errLockLost
	}

	if meta.BlobID == "" {
		if err := e.assemble(uploadID, sess.TotalChunks); err != nil {
			return nil, apierr.Wrap(apierr.CodeUploadFailed, 500, true, "failed to assemble upload", err)
		}
		if e.leaseLost(lost) {
			return nil, errLockLost
		}

		blobID, err := e.publishAssembled(ctx, uploadID, sess.SizeBytes, sess.Epochs)
		if err != nil {
			return nil, err
		}
		meta.BlobID = blobID

		fields := map[string]string{
			"blobId":           blobID,
			"walrusUploadedAt": time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.kv.SetMetaFields(ctx, uploadID, fields); err != nil {
			return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to checkpoint blobId", err)
		}
	}
	if e.leaseLost(lost) {
		return nil, errLockLost
	}

	if meta.FileID == "" {
		fileID, err := e.registry.Mint(ctx, uploadID, meta.BlobID, sess.SizeBytes, sess.ContentType, sess.Epochs)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInternalError, 502, true, "registry mint failed", err)
		}
		meta.FileID = fileID

		fields := map[string]string{
			"fileId":              fileID,
			"metadataFinalizedAt": time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.kv.SetMetaFields(ctx, uploadID, fields); err != nil {
			return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to checkpoint fileId", err)
		}

		assetFields := model.AssetFields{
			BlobID:    meta.BlobID,
			SizeBytes: sess.SizeBytes,
			Mime:      sess.ContentType,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.kv.SetFileFields(ctx, fileID, assetFields, e.fieldsCacheTTL); err != nil {
			e.log.Error(fmt.Sprintf("failed to seed asset-fields cache for %s", fileID), err)
		}
	}

	e.chunks.Cleanup(uploadID)
	e.chunks.RemoveAssembled(uploadID)

	commitFields := session.MetaFieldsForStatus(model.StatusCompleted, time.Now())
	commitFields["fileId"] = meta.FileID
	commitFields["blobId"] = meta.BlobID
	commitFields["sizeBytes"] = strconv.FormatInt(sess.SizeBytes, 10)
	if err := e.kv.CommitCompletion(ctx, uploadID, commitFields, e.metaTTL); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to commit completion", err)
	}

	return &Result{FileID: meta.FileID, BlobID: meta.BlobID, SizeBytes: sess.SizeBytes}, nil
}

func (e *Engine) checkIntegrity(ctx context.Context, uploadID string, totalChunks int) error {
	count, err := e.kv.ReceivedChunksCount(ctx, uploadID)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to read chunk receipts", err)
	}
	if int(count) != totalChunks {
		return apierr.New(apierr.CodeIncompleteChunks, 400, false, "not all chunks have been received")
	}
	onDisk, err := e.chunks.ListChunks(uploadID)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to list chunks on disk", err)
	}
	if len(onDisk) != totalChunks {
		return apierr.New(apierr.CodeMissingChunks, 400, false, "chunk files missing from disk")
	}
	for i, idx := range onDisk {
		if idx != i {
			return apierr.New(apierr.CodeMissingChunks, 400, false, "chunk files missing from disk")
		}
	}
	return nil
}

func (e *Engine) assemble(uploadID string, totalChunks int) error {
	out, err := os.OpenFile(e.chunks.AssembledPath(uploadID), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer out.Close()

	for i := 0; i < totalChunks; i++ {
		if err := e.copyChunk(out, uploadID, i); err != nil {
			return err
		}
	}
	return out.Sync()
}

func (e *Engine) copyChunk(out io.Writer, uploadID string, index int) error {
	in, err := e.chunks.OpenChunk(uploadID, index)
	if err != nil {
		return fmt.Errorf("open chunk %d: %w", index, err)
	}
	defer in.Close()
	_, err = io.Copy(out, in)
	return err
}

func (e *Engine) publishAssembled(ctx context.Context, uploadID string, sizeBytes int64, epochs int) (string, error) {
	bodyFn := func() (io.ReadCloser, error) {
		return os.Open(e.chunks.AssembledPath(uploadID))
	}
	blobID, outcome, err := e.coordinator.Publish(ctx, bodyFn, sizeBytes, epochs)
	if err != nil {
		switch outcome {
		case publish.OutcomeBalanceTooLow:
			return "", apierr.Wrap(apierr.CodeUploadFailed, 502, true, "publisher account balance too low", err)
		case publish.OutcomeCanceled:
			return "", apierr.Wrap(apierr.CodeUploadFailed, 499, false, "publish canceled", err)
		default:
			return "", apierr.Wrap(apierr.CodeUploadFailed, 502, true, "publish failed", err)
		}
	}
	return blobID, nil
}

func (e *Engine) markFailed(ctx context.Context, uploadID string, cause error) {
	fields := session.MetaFieldsForStatus(model.StatusFailed, time.Now())
	fields["error"] = apierr.As(cause).Error()
	if err := e.kv.SetMetaFields(ctx, uploadID, fields); err != nil {
		e.log.Error(fmt.Sprintf("failed to mark %s failed", uploadID), err)
	}
}

func (e *Engine) resultFromMeta(meta *model.Meta) (*Result, error) {
	if meta.FileID == "" || meta.BlobID == "" {
		return nil, apierr.New(apierr.CodeCorruptCompletedUpload, 500, false, "completed upload is missing its commit fields")
	}
	return &Result{FileID: meta.FileID, BlobID: meta.BlobID, SizeBytes: meta.SizeBytes}, nil
}
