// Package reaper implements the GC reaper and the startup orphan
// reconciler (§4.8), modeled on the teacher's ComplianceScheduler: a
// ticker-driven background job with a stop channel, a WaitGroup, and a
// running+mutex guard — generalized here with an additional in-flight
// flag so a slow scan never overlaps the next tick.
package reaper

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/floegw/floe/internal/chunkstore"
	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/logger"
	"github.com/floegw/floe/internal/model"
)

// collectibleStatuses are the only Meta states the reaper may delete.
var collectibleStatuses = map[model.Status]bool{
	model.StatusFailed:   true,
	model.StatusExpired:  true,
	model.StatusCanceled: true,
}

// Reaper periodically scans the GC index and deletes eligible artifacts.
type Reaper struct {
	kv     *kv.Client
	chunks *chunkstore.Store
	log    *logger.Logger

	interval time.Duration
	grace    time.Duration

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	inFlight int32
	mu       sync.Mutex
}

func New(kvc *kv.Client, chunks *chunkstore.Store, log *logger.Logger, interval, grace time.Duration) *Reaper {
	return &Reaper{
		kv:       kvc,
		chunks:   chunks,
		log:      log,
		interval: interval,
		grace:    grace,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic scan loop.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reaper: already running")
	}
	r.running = true
	r.ticker = time.NewTicker(r.interval)

	r.log.Info("reaper starting, interval=%v grace=%v", r.interval, r.grace)
	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return fmt.Errorf("reaper: not running")
	}
	close(r.stopChan)
	r.wg.Wait()
	r.ticker.Stop()
	r.running = false
	return nil
}

func (r *Reaper) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			r.runScan()
		case <-r.stopChan:
			return
		}
	}
}

// runScan runs one pass over the GC index, skipping entirely if a prior
// scan is still in flight — the overlap-prevention rule in §4.8.
func (r *Reaper) runScan() {
	if !atomic.CompareAndSwapInt32(&r.inFlight, 0, 1) {
		r.log.Debug("reaper scan skipped: prior scan still in flight")
		return
	}
	defer atomic.StoreInt32(&r.inFlight, 0)

	ctx := context.Background()
	ids, err := r.kv.GCIndexMembers(ctx)
	if err != nil {
		r.log.Error("reaper: failed to list gc index", err)
		return
	}

	for _, id := range ids {
		r.processOne(ctx, id)
		runtime.Gosched()
	}
}

func (r *Reaper) processOne(ctx context.Context, uploadID string) {
	held, err := r.kv.LockExists(ctx, uploadID)
	if err != nil {
		r.log.Error(fmt.Sprintf("reaper: lock check failed for %s", uploadID), err)
		return
	}
	if held {
		return
	}

	meta, err := r.kv.GetMetaHash(ctx, uploadID)
	if err != nil {
		if err == kv.ErrKeyNotFound {
			r.kv.GCIndexRemove(ctx, uploadID)
		}
		return
	}
	status := model.Status(meta["status"])

	_, sessErr := r.kv.GetSessionHash(ctx, uploadID)
	sessionGone := sessErr == kv.ErrKeyNotFound

	if sessionGone && (status == model.StatusUploading || status == model.StatusFinalizing) {
		if err := r.kv.SetMetaFields(ctx, uploadID, map[string]string{
			"status":    string(model.StatusExpired),
			"expiredAt": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			r.log.Error(fmt.Sprintf("reaper: failed to expire %s", uploadID), err)
			return
		}
		status = model.StatusExpired
	}

	if !collectibleStatuses[status] {
		return
	}

	age, hasArtifact := r.artifactAge(uploadID)
	if !hasArtifact {
		r.purge(ctx, uploadID)
		return
	}
	if age < r.grace {
		return
	}

	r.chunks.Cleanup(uploadID)
	r.chunks.RemoveAssembled(uploadID)
	r.purge(ctx, uploadID)
}

func (r *Reaper) purge(ctx context.Context, uploadID string) {
	if err := r.kv.PurgeArtifactKeys(ctx, uploadID); err != nil {
		r.log.Error(fmt.Sprintf("reaper: failed to purge keys for %s", uploadID), err)
	}
}

// artifactAge returns the age of the assembled file or chunk directory,
// preferring the assembled file's mtime per §4.8. The bool is false when
// neither artifact exists on disk.
func (r *Reaper) artifactAge(uploadID string) (time.Duration, bool) {
	if info, err := os.Stat(r.chunks.AssembledPath(uploadID)); err == nil {
		return time.Since(info.ModTime()), true
	}
	if age, err := r.chunks.DirAge(uploadID); err == nil {
		return age, true
	}
	return 0, false
}

// ReconcileOrphans runs once at startup: it scans the chunk-store root for
// UUID-named entries not already in the GC index and adopts them as
// expired, recovered artifacts.
func ReconcileOrphans(ctx context.Context, root string, kvc *kv.Client, log *logger.Logger) error {
	known := map[string]bool{}
	members, err := kvc.GCIndexMembers(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		known[m] = true
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	adopted := 0
	for _, e := range entries {
		name := e.Name()
		id := name
		if !e.IsDir() {
			id = trimAssembledSuffix(name)
			if id == name {
				continue // not a <uuid>.assembled file
			}
		}
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		if known[id] {
			continue
		}

		if err := kvc.GCIndexAdd(ctx, id); err != nil {
			log.Error(fmt.Sprintf("orphan reconciler: failed to add %s to gc index", id), err)
			continue
		}
		if err := kvc.SetMetaFields(ctx, id, map[string]string{
			"status":      string(model.StatusExpired),
			"recoveredAt": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			log.Error(fmt.Sprintf("orphan reconciler: failed to set meta for %s", id), err)
			continue
		}
		known[id] = true
		adopted++
	}

	if adopted > 0 {
		log.Info("orphan reconciler: adopted %d orphaned artifact(s) from %s", adopted, root)
	}
	return nil
}

const assembledSuffix = ".assembled"

func trimAssembledSuffix(name string) string {
	if strings.HasSuffix(name, assembledSuffix) {
		return strings.TrimSuffix(name, assembledSuffix)
	}
	return name
}
