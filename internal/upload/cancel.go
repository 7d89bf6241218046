package upload

import (
	"context"
	"time"

	"github.com/floegw/floe/internal/apierr"
	"github.com/floegw/floe/internal/model"
	"github.com/floegw/floe/internal/session"
)

// Cancel idempotently cancels uploadID: refuses while a finalize lock is
// held, otherwise marks meta canceled and best-effort cleans up session,
// chunk set, GC membership, and on-disk chunks.
func (e *Engine) Cancel(ctx context.Context, uploadID string) error {
	held, err := e.kv.LockExists(ctx, uploadID)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to check finalize lock", err)
	}
	if held {
		return apierr.New(apierr.CodeFinalizationInProgress, 409, true, "cannot cancel while finalization is in progress")
	}

	if _, err := e.sessions.Get(ctx, uploadID); err != nil {
		apiErr := apierr.As(err)
		if apiErr.Code != apierr.CodeUploadNotFound {
			return err
		}
	}

	fields := session.MetaFieldsForStatus(model.StatusCanceled, time.Now())
	if err := e.kv.CancelSession(ctx, uploadID, fields, e.metaTTL); err != nil {
		return apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to cancel upload", err)
	}

	e.chunks.Cleanup(uploadID)
	return nil
}
